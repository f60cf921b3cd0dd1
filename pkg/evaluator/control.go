package evaluator

import (
	"github.com/thomasrohde/chrono/pkg/ast"
)

// controlBuiltins are the natives that manipulate continuations and
// therefore live next to the machine.
func controlBuiltins() []*Builtin {
	quit := func(c *Call) (Value, error) { return nil, ErrQuit }
	return []*Builtin{
		{
			Name: "tryCatch",
			Params: []Param{
				{Name: "expr", Lazy: true},
				{Name: "catch", Lazy: true, Optional: true},
			},
			Fn: tryCatch,
		},
		{
			Name:   "substitute",
			Params: []Param{{Name: "expr", Lazy: true}},
			Fn: func(c *Call) (Value, error) {
				return c.Arg("expr"), nil
			},
		},
		{
			Name:   "eval",
			Params: []Param{{Name: "expr"}},
			Fn: func(c *Call) (Value, error) {
				v := c.Arg("expr")
				if l, ok := v.(Language); ok {
					c.Eval(l.Expr, l.Frame)
					return nil, nil
				}
				return v, nil
			},
		},
		{Name: "q", Fn: quit},
		{Name: "quit", Fn: quit},
	}
}

// tryCatch installs an escape continuation on its own frame that evaluates
// catch in the caller's frame, then evaluates expr. Errors raised while
// expr runs unwind to the escape, including the failure of a future that
// expr evaluates to; .Last.error holds the message.
func tryCatch(c *Call) (Value, error) {
	expr, _ := c.Arg("expr").(Language)
	var handler ast.Expr = &ast.NullLit{}
	frame := c.Caller
	if l, ok := c.Arg("catch").(Language); ok {
		handler, frame = l.Expr, l.Frame
	}
	st := c.State
	c.Frame.escape = st.arena.alloc(cont{control: handler, frame: frame, next: c.next, slot: -1})
	if expr.Expr == nil {
		return Null{}, nil
	}
	c.tail = &tailEval{expr: expr.Expr, frame: expr.Frame, force: true}
	return nil, nil
}
