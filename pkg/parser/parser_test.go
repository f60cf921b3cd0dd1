package parser_test

import (
	"strings"
	"testing"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/parser"
)

// helper: parse source and assert no diagnostics
func mustParse(t *testing.T, source string) *ast.Seq {
	t.Helper()
	prog, diags := parser.Parse(source, "test.r")
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if prog == nil {
		t.Fatal("expected non-nil program")
	}
	return prog
}

// helper: parse source and assert a diagnostic mentioning want
func mustFail(t *testing.T, source, want string) {
	t.Helper()
	prog, diags := parser.Parse(source, "test.r")
	if len(diags) == 0 {
		t.Fatalf("expected %q to fail, got %#v", source, prog)
	}
	if !strings.Contains(diags[0].Message, want) {
		t.Errorf("%q: got %q, want substring %q", source, diags[0].Message, want)
	}
}

// helper: the single top-level expression of source
func singleExpr(t *testing.T, source string) ast.Expr {
	t.Helper()
	prog := mustParse(t, source)
	if len(prog.Exprs) != 1 {
		t.Fatalf("expected 1 expression, got %d", len(prog.Exprs))
	}
	return prog.Exprs[0]
}

func TestEmptyProgram(t *testing.T) {
	prog := mustParse(t, "\n\n  # nothing\n")
	if len(prog.Exprs) != 0 {
		t.Errorf("expected no expressions, got %d", len(prog.Exprs))
	}
}

func TestStatementSeparators(t *testing.T) {
	prog := mustParse(t, "a <- 1; b <- 2\nc")
	if len(prog.Exprs) != 3 {
		t.Fatalf("expected 3 expressions, got %d", len(prog.Exprs))
	}
}

func TestLiterals(t *testing.T) {
	if n, ok := singleExpr(t, "3.5").(*ast.NumLit); !ok || n.Value != 3.5 {
		t.Errorf("number literal: %#v", n)
	}
	if s, ok := singleExpr(t, `"hi"`).(*ast.StrLit); !ok || s.Value != "hi" {
		t.Errorf("string literal: %#v", s)
	}
	if b, ok := singleExpr(t, "FALSE").(*ast.BoolLit); !ok || b.Value {
		t.Errorf("bool literal: %#v", b)
	}
	if _, ok := singleExpr(t, "NULL").(*ast.NullLit); !ok {
		t.Error("expected NullLit")
	}
}

func TestAssignForms(t *testing.T) {
	tests := []struct {
		src     string
		special bool
	}{
		{"x <- 1", false},
		{"x = 1", false},
		{"x <<- 1", true},
	}
	for _, tc := range tests {
		a, ok := singleExpr(t, tc.src).(*ast.Assign)
		if !ok {
			t.Fatalf("%q: expected Assign", tc.src)
		}
		if a.Target.Name != "x" || a.Special != tc.special {
			t.Errorf("%q: got target %q special %v", tc.src, a.Target.Name, a.Special)
		}
	}
}

func TestAssignRightAssociative(t *testing.T) {
	a := singleExpr(t, "x <- y <- 2").(*ast.Assign)
	inner, ok := a.Value.(*ast.Assign)
	if !ok || inner.Target.Name != "y" {
		t.Fatalf("expected nested assignment, got %#v", a.Value)
	}
}

func TestPrecedence(t *testing.T) {
	// 1 + 2 * 3 → 1 + (2 * 3)
	b := singleExpr(t, "1 + 2 * 3").(*ast.Binary)
	if b.Op != ast.OpAdd {
		t.Fatalf("expected +, got %s", b.Op)
	}
	if r, ok := b.Right.(*ast.Binary); !ok || r.Op != ast.OpMul {
		t.Errorf("expected right operand to be *, got %#v", b.Right)
	}

	// -2^2 → -(2^2)
	u := singleExpr(t, "-2^2").(*ast.Unary)
	if p, ok := u.Operand.(*ast.Binary); !ok || p.Op != ast.OpPow {
		t.Errorf("expected power under negation, got %#v", u.Operand)
	}

	// !a == b → !(a == b)
	n := singleExpr(t, "!a == b").(*ast.Unary)
	if c, ok := n.Operand.(*ast.Binary); !ok || c.Op != ast.OpEqEq {
		t.Errorf("expected comparison under !, got %#v", n.Operand)
	}

	// a < 1 & b | c → (a < 1 & b) | c
	o := singleExpr(t, "a < 1 & b | c").(*ast.Binary)
	if o.Op != ast.OpOr {
		t.Errorf("expected | at top, got %s", o.Op)
	}
}

func TestIndex(t *testing.T) {
	b := singleExpr(t, "xs[i + 1]").(*ast.Binary)
	if b.Op != ast.OpIndex {
		t.Fatalf("expected index, got %s", b.Op)
	}
}

func TestFunctionLiteral(t *testing.T) {
	fn := singleExpr(t, "function(a, b = 2, ...) a + b").(*ast.FuncLit)
	if len(fn.Formals) != 3 {
		t.Fatalf("expected 3 formals, got %d", len(fn.Formals))
	}
	if fn.Formals[0].Default != nil {
		t.Error("a should have no default")
	}
	if fn.Formals[1].Default == nil {
		t.Error("b should have a default")
	}
	if !fn.Formals[2].IsEllipsis() {
		t.Error("third formal should be the ellipsis")
	}
}

func TestCallArgs(t *testing.T) {
	c := singleExpr(t, `f(1, b = 2, "c" = 3, ...)`).(*ast.Call)
	if len(c.Args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(c.Args))
	}
	names := []string{"", "b", "c", ""}
	for i, want := range names {
		if c.Args[i].Name != want {
			t.Errorf("arg %d name = %q, want %q", i, c.Args[i].Name, want)
		}
	}
	if s, ok := c.Args[3].Value.(*ast.Symbol); !ok || s.Name != "..." {
		t.Errorf("expected ... symbol, got %#v", c.Args[3].Value)
	}
}

func TestCallMultiline(t *testing.T) {
	c := singleExpr(t, "f(1,\n  2)").(*ast.Call)
	if len(c.Args) != 2 {
		t.Errorf("expected 2 args, got %d", len(c.Args))
	}
}

func TestCurriedCall(t *testing.T) {
	c := singleExpr(t, "f(1)(2)").(*ast.Call)
	if _, ok := c.Callee.(*ast.Call); !ok {
		t.Errorf("expected callee to be a call, got %T", c.Callee)
	}
}

func TestQuote(t *testing.T) {
	q, ok := singleExpr(t, "quote(a + b)").(*ast.Quote)
	if !ok {
		t.Fatal("expected Quote")
	}
	if _, ok := q.Body.(*ast.Binary); !ok {
		t.Errorf("expected binary body, got %T", q.Body)
	}
	mustFail(t, "quote(a, b)", "quote() takes exactly one argument")
}

func TestIfElse(t *testing.T) {
	n := singleExpr(t, "if (x > 1) 'big' else 'small'").(*ast.If)
	if n.Else == nil {
		t.Fatal("expected else branch")
	}
	n = singleExpr(t, "if (x) y").(*ast.If)
	if n.Else != nil {
		t.Error("expected no else branch")
	}
	prog := mustParse(t, "{\n if (x) 1\n else 2\n}")
	blk := prog.Exprs[0].(*ast.Seq)
	if len(blk.Exprs) != 1 || blk.Exprs[0].(*ast.If).Else == nil {
		t.Error("else on the next line should attach to the if")
	}
}

func TestWhile(t *testing.T) {
	prog := mustParse(t, "a <- 1; while (a < 4) a <- a + 1; a")
	if len(prog.Exprs) != 3 {
		t.Fatalf("expected 3 expressions, got %d", len(prog.Exprs))
	}
	w := prog.Exprs[1].(*ast.While)
	if _, ok := w.Body.(*ast.Assign); !ok {
		t.Errorf("expected assignment body, got %T", w.Body)
	}
}

func TestFor(t *testing.T) {
	f := singleExpr(t, "for (i in c(1, 2)) {\n s <- s + i\n}").(*ast.For)
	if f.Var != "i" {
		t.Errorf("loop var = %q", f.Var)
	}
	if _, ok := f.Seq.(*ast.Call); !ok {
		t.Errorf("expected call sequence, got %T", f.Seq)
	}
}

func TestRequest(t *testing.T) {
	r := singleExpr(t, "con ? $x + 1").(*ast.Request)
	if s, ok := r.Peer.(*ast.Symbol); !ok || s.Name != "con" {
		t.Errorf("peer = %#v", r.Peer)
	}
	b := r.Body.(*ast.Binary)
	if v, ok := b.Left.(*ast.BoundVar); !ok || v.Name != "x" {
		t.Errorf("expected bound var, got %#v", b.Left)
	}

	// request binds looser than assignment
	r = singleExpr(t, "con ? y <- 2").(*ast.Request)
	if _, ok := r.Body.(*ast.Assign); !ok {
		t.Errorf("expected assignment body, got %T", r.Body)
	}
}

func TestParseExpr(t *testing.T) {
	e, diags := parser.ParseExpr("1 + 1", "wire")
	if diags != nil || e == nil {
		t.Fatalf("unexpected failure: %v", diags)
	}
	if _, diags := parser.ParseExpr("1; 2", "wire"); diags == nil {
		t.Error("expected an error for two expressions")
	}
}

func TestSpans(t *testing.T) {
	prog := mustParse(t, "x <- 1\nfoo(bar)")
	c := prog.Exprs[1].(*ast.Call)
	sp := c.NodeSpan()
	if sp.StartLine != 2 || sp.StartCol != 1 || sp.EndCol != 9 {
		t.Errorf("unexpected call span %+v", sp)
	}
}

func TestParseErrors(t *testing.T) {
	mustFail(t, "1 <- 2", "invalid assignment target")
	mustFail(t, "f(1", "expected ')'")
	mustFail(t, "function(a, a) a", "repeated formal argument 'a'")
	mustFail(t, "function(... = 1) 1", "'...' cannot have a default")
	mustFail(t, "for (i of xs) i", "expected 'in'")
	mustFail(t, "a b", "unexpected 'b'")
	mustFail(t, "{ 1", "expected '}'")
	mustFail(t, "f <- function() {\n  x <- 1\n", "expected '}', got end of input")
	mustFail(t, `"open`, "unterminated string literal")
}
