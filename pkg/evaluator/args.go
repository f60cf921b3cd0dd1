package evaluator

import (
	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/formatter"
)

// actual is one argument at a call site. Arguments forwarded through an
// actual '...' arrive already evaluated.
type actual struct {
	name      string
	expr      ast.Expr
	value     Value
	evaluated bool
	byRef     bool
	span      ast.Span
}

func (a actual) describe() string {
	var s string
	if a.evaluated {
		s = Display(a.value)
	} else {
		s = formatter.Format(a.expr)
	}
	if a.name != "" {
		return a.name + " = " + s
	}
	return s
}

// binding plan for one call
type argPlan struct {
	formals []int // per formal: index into actuals, or -1
	dots    []int // actuals collected by '...', in call order
}

// expandActuals turns call arguments into actuals, replacing an actual
// '...' with the caller's collected arguments.
func expandActuals(args []*ast.Arg, caller *Frame, span ast.Span) ([]actual, error) {
	out := make([]actual, 0, len(args))
	for _, a := range args {
		if sym, ok := a.Value.(*ast.Symbol); ok && sym.Name == "..." {
			entries, ok := caller.Ellipsis()
			if !ok {
				sp := a.Span
				return nil, evalErrorf(diagnostics.EUnbound, &sp, "'...' used in an incorrect context")
			}
			for _, e := range entries {
				out = append(out, actual{name: e.Name, value: e.Value, evaluated: true, byRef: e.ByRef, span: span})
			}
			continue
		}
		_, isSym := a.Value.(*ast.Symbol)
		out = append(out, actual{name: a.Name, expr: a.Value, byRef: isSym, span: a.Span})
	}
	return out, nil
}

// matchArgs matches actuals to formals: by exact name first, then by
// position among formals before '...'; leftovers go to '...' when present.
func matchArgs(formals []string, actuals []actual, span ast.Span) (argPlan, error) {
	plan := argPlan{formals: make([]int, len(formals))}
	for i := range plan.formals {
		plan.formals[i] = -1
	}

	dotsAt := -1
	for i, f := range formals {
		if f == "..." {
			dotsAt = i
			break
		}
	}

	if len(actuals) == 0 {
		return plan, nil
	}
	if len(formals) == 0 {
		return plan, unusedArgument(actuals[0])
	}

	used := make([]bool, len(actuals))

	// 1. named actuals
	for ai, a := range actuals {
		if a.name == "" {
			continue
		}
		for fi, f := range formals {
			if f == "..." || f != a.name {
				continue
			}
			if plan.formals[fi] >= 0 {
				sp := a.span
				return plan, evalErrorf(diagnostics.EArgDup, &sp,
					"formal argument \"%s\" matched by multiple actual arguments", f)
			}
			plan.formals[fi] = ai
			used[ai] = true
			break
		}
	}

	// 2. positional actuals to formals before '...'
	limit := len(formals)
	if dotsAt >= 0 {
		limit = dotsAt
	}
	fi := 0
	for ai, a := range actuals {
		if used[ai] || a.name != "" {
			continue
		}
		for fi < limit && plan.formals[fi] >= 0 {
			fi++
		}
		if fi >= limit {
			break
		}
		plan.formals[fi] = ai
		used[ai] = true
		fi++
	}

	// 3. leftovers
	for ai, a := range actuals {
		if used[ai] {
			continue
		}
		if dotsAt < 0 {
			return plan, unusedArgument(a)
		}
		plan.dots = append(plan.dots, ai)
	}
	return plan, nil
}

func unusedArgument(a actual) error {
	sp := a.span
	return evalErrorf(diagnostics.EArgUnused, &sp, "unused argument (%s)", a.describe())
}

func missingArgument(name string, span ast.Span) error {
	return evalErrorf(diagnostics.EArgMissing, &span, "argument \"%s\" is missing, with no default", name)
}

func formalNames(fn *ast.FuncLit) []string {
	names := make([]string, len(fn.Formals))
	for i, f := range fn.Formals {
		names[i] = f.Name
	}
	return names
}

func typeError(fn, param string, want Kind, got Value, span ast.Span) error {
	return evalErrorf(diagnostics.EArgType, &span,
		"invalid '%s' argument to %s(): expected %s, got %s", param, fn, want, KindOf(got))
}
