package stdlib

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
)

var nullDefault = evaluator.Null{}

// RegisterDefaults adds all standard library functions.
func RegisterDefaults(r *Registry) {
	dots := evaluator.Param{Name: "..."}
	x := evaluator.Param{Name: "x"}

	// Core
	r.Register(evaluator.Builtin{Name: "identity", Params: []evaluator.Param{x}, Fn: stdlibIdentity})
	r.Register(evaluator.Builtin{Name: "invisible", Params: []evaluator.Param{{Name: "x", Default: nullDefault}}, Fn: stdlibInvisible})
	r.Register(evaluator.Builtin{Name: "print", Params: []evaluator.Param{x}, Fn: r.stdlibPrint})
	r.Register(evaluator.Builtin{Name: "stop", Params: []evaluator.Param{dots}, Fn: stdlibStop})
	r.Register(evaluator.Builtin{Name: "rm", Params: []evaluator.Param{
		{Name: "x", Lazy: true},
		{Name: "inherits", Default: evaluator.NewBool(false), Accept: evaluator.KindLogical},
	}, Fn: stdlibRm})
	r.Register(evaluator.Builtin{Name: "exists", Params: []evaluator.Param{
		{Name: "x", Accept: evaluator.KindCharacter},
	}, Fn: stdlibExists})

	// Vectors and lists
	r.Register(evaluator.Builtin{Name: "c", Params: []evaluator.Param{dots}, Fn: stdlibC})
	r.Register(evaluator.Builtin{Name: "list", Params: []evaluator.Param{dots}, Fn: stdlibList})
	r.Register(evaluator.Builtin{Name: "append", Params: []evaluator.Param{
		{Name: "x", Accept: evaluator.KindList | evaluator.KindNull},
		{Name: "values"},
	}, Fn: stdlibAppend})
	r.Register(evaluator.Builtin{Name: "length", Params: []evaluator.Param{x}, Fn: stdlibLength})
	r.Register(evaluator.Builtin{Name: "names", Params: []evaluator.Param{x}, Fn: stdlibNames})
	r.Register(evaluator.Builtin{Name: "seq", Params: []evaluator.Param{
		{Name: "from", Accept: evaluator.KindNumeric},
		{Name: "to", Accept: evaluator.KindNumeric},
		{Name: "by", Default: evaluator.NewNumber(1), Accept: evaluator.KindNumeric},
	}, Fn: stdlibSeq})
	r.Register(evaluator.Builtin{Name: "seq_len", Params: []evaluator.Param{
		{Name: "length.out", Accept: evaluator.KindNumeric},
	}, Fn: stdlibSeqLen})

	// Strings
	r.Register(evaluator.Builtin{Name: "paste", Params: []evaluator.Param{
		dots,
		{Name: "sep", Default: evaluator.NewString(" "), Accept: evaluator.KindCharacter},
		{Name: "collapse", Optional: true, Accept: evaluator.KindCharacter | evaluator.KindNull},
	}, Fn: stdlibPaste})
	r.Register(evaluator.Builtin{Name: "paste0", Params: []evaluator.Param{
		dots,
		{Name: "collapse", Optional: true, Accept: evaluator.KindCharacter | evaluator.KindNull},
	}, Fn: stdlibPaste0})
	r.Register(evaluator.Builtin{Name: "nchar", Params: []evaluator.Param{{Name: "x", Accept: evaluator.KindCharacter}}, Fn: stdlibNchar})
	r.Register(evaluator.Builtin{Name: "toupper", Params: []evaluator.Param{{Name: "x", Accept: evaluator.KindCharacter}}, Fn: stdlibToUpper})
	r.Register(evaluator.Builtin{Name: "tolower", Params: []evaluator.Param{{Name: "x", Accept: evaluator.KindCharacter}}, Fn: stdlibToLower})

	// Predicates
	r.Register(evaluator.Builtin{Name: "is.null", Params: []evaluator.Param{x}, Fn: isKind(evaluator.KindNull)})
	r.Register(evaluator.Builtin{Name: "is.function", Params: []evaluator.Param{x}, Fn: isKind(evaluator.KindFunction)})
	r.Register(evaluator.Builtin{Name: "is.numeric", Params: []evaluator.Param{x}, Fn: isKind(evaluator.KindNumeric)})
	r.Register(evaluator.Builtin{Name: "is.character", Params: []evaluator.Param{x}, Fn: isKind(evaluator.KindCharacter)})
	r.Register(evaluator.Builtin{Name: "is.list", Params: []evaluator.Param{x}, Fn: isKind(evaluator.KindList)})
	r.Register(evaluator.Builtin{Name: "identical", Params: []evaluator.Param{{Name: "x"}, {Name: "y"}}, Fn: stdlibIdentical})
	r.Register(evaluator.Builtin{Name: "typeof", Params: []evaluator.Param{x}, Fn: stdlibTypeof})

	// Futures
	r.Register(evaluator.Builtin{Name: "is.future", Params: []evaluator.Param{{Name: "x", Futures: true}}, Fn: isKind(evaluator.KindFuture)})
	r.Register(evaluator.Builtin{Name: "resolved", Params: []evaluator.Param{{Name: "x", Futures: true}}, Fn: stdlibResolved})

	// Time
	r.Register(evaluator.Builtin{Name: "Sys.time", Fn: r.stdlibSysTime})
	r.Register(evaluator.Builtin{Name: "as.time", Params: []evaluator.Param{
		{Name: "x", Accept: evaluator.KindCharacter | evaluator.KindNumeric | evaluator.KindTime},
	}, Fn: stdlibAsTime})
	r.Register(evaluator.Builtin{Name: "as.duration", Params: []evaluator.Param{
		{Name: "x", Accept: evaluator.KindCharacter | evaluator.KindNumeric | evaluator.KindDuration},
		{Name: "units", Default: evaluator.NewString("secs"), Accept: evaluator.KindCharacter},
	}, Fn: stdlibAsDuration})
	r.Register(evaluator.Builtin{Name: "interval", Params: []evaluator.Param{
		{Name: "from", Accept: evaluator.KindTime},
		{Name: "to", Accept: evaluator.KindTime | evaluator.KindDuration},
	}, Fn: stdlibInterval})
	r.Register(evaluator.Builtin{Name: "ts", Params: []evaluator.Param{
		{Name: "times", Accept: evaluator.KindTime},
		{Name: "values", Accept: evaluator.KindNumeric},
	}, Fn: stdlibTs})
	r.Register(evaluator.Builtin{Name: "window", Params: []evaluator.Param{
		{Name: "x", Accept: evaluator.KindTimeSeries},
		{Name: "interval", Accept: evaluator.KindInterval},
	}, Fn: stdlibWindow})

	// Math
	r.Register(evaluator.Builtin{Name: "sum", Params: []evaluator.Param{dots}, Fn: stdlibSum})
	r.Register(evaluator.Builtin{Name: "max", Params: []evaluator.Param{dots}, Fn: stdlibMax})
	r.Register(evaluator.Builtin{Name: "min", Params: []evaluator.Param{dots}, Fn: stdlibMin})
	r.Register(evaluator.Builtin{Name: "mean", Params: []evaluator.Param{{Name: "x", Accept: evaluator.KindNumeric | evaluator.KindTimeSeries}}, Fn: stdlibMean})

	// JSON
	r.Register(evaluator.Builtin{Name: "toJSON", Params: []evaluator.Param{x}, Fn: stdlibToJSON})
	r.Register(evaluator.Builtin{Name: "fromJSON", Params: []evaluator.Param{{Name: "x", Accept: evaluator.KindCharacter}}, Fn: stdlibFromJSON})
}

// identity(x) → x
func stdlibIdentity(c *evaluator.Call) (evaluator.Value, error) {
	return c.Arg("x"), nil
}

// invisible(x) → x, not echoed
func stdlibInvisible(c *evaluator.Call) (evaluator.Value, error) {
	c.Invisible()
	return c.Arg("x"), nil
}

// print(x) → x, not echoed
func (r *Registry) stdlibPrint(c *evaluator.Call) (evaluator.Value, error) {
	v := c.Arg("x")
	fmt.Fprintln(r.out, evaluator.Display(v))
	c.Invisible()
	return v, nil
}

// stop(...) → error with the pasted message
func stdlibStop(c *evaluator.Call) (evaluator.Value, error) {
	var parts []string
	for _, d := range c.Dots() {
		parts = append(parts, asStrings(d.Value)...)
	}
	return nil, c.Errorf(diagnostics.EUser, "%s", strings.Join(parts, ""))
}

// rm(x, inherits = FALSE) → whether a binding was removed
func stdlibRm(c *evaluator.Call) (evaluator.Value, error) {
	lang, ok := c.Arg("x").(evaluator.Language)
	if !ok {
		return nil, c.Errorf(diagnostics.EArgType, "rm() needs a name")
	}
	var name string
	switch e := lang.Expr.(type) {
	case *ast.Symbol:
		name = e.Name
	case *ast.StrLit:
		name = e.Value
	default:
		return nil, c.Errorf(diagnostics.EArgType, "rm() needs a name")
	}
	var removed bool
	if inherits := c.Arg("inherits").(evaluator.Logical); inherits.Len() > 0 && inherits.Data[0] {
		removed = lang.Frame.RemoveSpecial(name)
	} else {
		removed = lang.Frame.Remove(name)
	}
	c.Invisible()
	return evaluator.NewBool(removed), nil
}

// exists(x) → whether x names a visible binding
func stdlibExists(c *evaluator.Call) (evaluator.Value, error) {
	name, err := c.String("x")
	if err != nil {
		return nil, err
	}
	_, ok := c.Caller.Find(name)
	return evaluator.NewBool(ok), nil
}
