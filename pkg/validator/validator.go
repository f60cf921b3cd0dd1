// Package validator implements static checks on chrono programs that the
// parser does not enforce.
package validator

import (
	"fmt"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// implicit names are bound by the evaluator as a program runs.
var implicit = []string{".Last.value", ".Last.error"}

type validator struct {
	diags   []diagnostics.Diagnostic
	defined map[string]bool
	bound   func(string) bool
}

// Validate performs static analysis on a program and returns diagnostics.
// bound reports the names that exist before the program runs, such as
// builtins; it may be nil.
//
// Checks are conservative: a name assigned anywhere in the program counts
// as defined everywhere, and nothing inside a request body is resolved
// locally except its $-variables.
func Validate(program *ast.Seq, bound func(string) bool) []diagnostics.Diagnostic {
	v := &validator{defined: make(map[string]bool), bound: bound}
	for _, name := range implicit {
		v.defined[name] = true
	}
	v.collect(program)
	v.check(program)
	return v.diags
}

func (v *validator) addDiag(code, msg string, span ast.Span) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, &span, ""))
}

func (v *validator) known(name string) bool {
	return v.defined[name] || (v.bound != nil && v.bound(name))
}

// collect records every name the program binds locally. Request bodies
// bind on the peer.
func (v *validator) collect(e ast.Expr) {
	ast.Walk(e, func(x ast.Expr) bool {
		switch n := x.(type) {
		case *ast.Assign:
			v.defined[n.Target.Name] = true
		case *ast.For:
			v.defined[n.Var] = true
		case *ast.FuncLit:
			for _, f := range n.Formals {
				v.defined[f.Name] = true
			}
		case *ast.Request:
			v.collect(n.Peer)
			return false
		}
		return true
	})
}

func (v *validator) check(e ast.Expr) {
	ast.Walk(e, func(x ast.Expr) bool {
		switch n := x.(type) {
		case *ast.Quote:
			return false
		case *ast.BoundVar:
			v.addDiag(diagnostics.EBoundVar, fmt.Sprintf("'$%s' is only meaningful inside a request", n.Name), n.Span)
		case *ast.Call:
			if s, ok := n.Callee.(*ast.Symbol); ok && !v.known(s.Name) {
				v.addDiag(diagnostics.EUnbound, fmt.Sprintf("could not find function '%s'", s.Name), s.Span)
			}
		case *ast.Request:
			v.check(n.Peer)
			v.checkRequest(n)
			return false
		}
		return true
	})
}

func (v *validator) checkRequest(n *ast.Request) {
	switch n.Peer.(type) {
	case *ast.NumLit, *ast.StrLit, *ast.BoolLit, *ast.NullLit:
		v.addDiag(diagnostics.EType, "invalid request target: expected connection", n.Peer.NodeSpan())
	}
	ast.Walk(n.Body, func(x ast.Expr) bool {
		switch b := x.(type) {
		case *ast.BoundVar:
			if !v.known(b.Name) {
				v.addDiag(diagnostics.EUnbound, fmt.Sprintf("object '%s' not found", b.Name), b.Span)
			}
		case *ast.Request:
			// a nested request ships variables of the peer
			return false
		}
		return true
	})
}
