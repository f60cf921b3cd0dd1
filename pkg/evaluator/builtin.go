package evaluator

import (
	"fmt"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// Param declares one formal of a native function. A Param named "..."
// collects unmatched actuals.
type Param struct {
	Name     string
	Default  Value // bound when the actual is missing
	Optional bool  // missing without a default is allowed
	Lazy     bool  // bind the unevaluated code as a Language value
	Accept   Kind  // zero accepts anything
	Futures  bool  // an unresolved future may be passed through
}

// Builtin is a native function.
type Builtin struct {
	Name   string
	Params []Param
	Fn     func(c *Call) (Value, error)
}

func (*Builtin) value() {}

func (b *Builtin) variadic() bool {
	for _, p := range b.Params {
		if p.Name == "..." {
			return true
		}
	}
	return false
}

func (b *Builtin) paramNames() []string {
	names := make([]string, len(b.Params))
	for i, p := range b.Params {
		names[i] = p.Name
	}
	return names
}

// invocation is the pending native call carried by an invoke continuation.
type invocation struct {
	builtin *Builtin
	caller  *Frame
	span    ast.Span
}

// Call is what a native function sees of its invocation.
type Call struct {
	Name   string
	Span   *ast.Span
	Frame  *Frame // the native frame holding the arguments
	Caller *Frame
	State  *State

	m    *Machine
	tail *tailEval
	next ContID
}

type tailEval struct {
	expr  ast.Expr
	frame *Frame
	force bool // resolve a future result before the call returns
}

// Arg returns the named argument, or nil when it is missing.
func (c *Call) Arg(name string) Value {
	for i, p := range c.Frame.params {
		if p.Name == name {
			return c.Frame.args[i]
		}
	}
	return nil
}

// Has reports whether the named argument was supplied or defaulted.
func (c *Call) Has(name string) bool {
	return c.Arg(name) != nil
}

// Dots returns the arguments collected by '...'.
func (c *Call) Dots() []EllipsisArg {
	return c.Frame.ellipsis
}

// Machine returns the machine running the call.
func (c *Call) Machine() *Machine { return c.m }

// Working returns the state's working frame.
func (c *Call) Working() *Frame { return c.State.Working }

// Invisible marks the result as not to be echoed.
func (c *Call) Invisible() { c.State.visible = false }

// Eval replaces the call's result with the value of expr evaluated in
// frame. The value returned by the native function is then ignored.
func (c *Call) Eval(expr ast.Expr, frame *Frame) {
	c.tail = &tailEval{expr: expr, frame: frame}
}

// Errorf builds an evaluation error located at the call.
func (c *Call) Errorf(code, format string, args ...any) error {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Span: c.Span}
}

// Number extracts a single number argument.
func (c *Call) Number(name string) (float64, error) {
	v, ok := c.Arg(name).(Numeric)
	if !ok || v.Len() != 1 {
		return 0, c.Errorf(diagnostics.EArgType, "invalid '%s' argument: expected a single number", name)
	}
	return v.Data[0], nil
}

// String extracts a single string argument.
func (c *Call) String(name string) (string, error) {
	v, ok := c.Arg(name).(Character)
	if !ok || v.Len() != 1 {
		return "", c.Errorf(diagnostics.EArgType, "invalid '%s' argument: expected a single string", name)
	}
	return v.Data[0], nil
}
