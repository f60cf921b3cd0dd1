package formatter_test

import (
	"testing"

	"github.com/thomasrohde/chrono/pkg/formatter"
	"github.com/thomasrohde/chrono/pkg/parser"
)

func mustFormat(t *testing.T, source string) string {
	t.Helper()
	prog, diags := parser.Parse(source, "test.r")
	if len(diags) > 0 {
		t.Fatalf("parse %q: %v", source, diags)
	}
	return formatter.FormatProgram(prog)
}

func TestFormatCanonical(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x=1", "x <- 1\n"},
		{"x<<-y", "x <<- y\n"},
		{"1+2*3", "1 + 2 * 3\n"},
		{"(1+2)*3", "(1 + 2) * 3\n"},
		{"a-(b-c)", "a - (b - c)\n"},
		{"-2^2", "-2 ^ 2\n"},
		{"(-2)^2", "(-2) ^ 2\n"},
		{"!a==b", "!a == b\n"},
		{"f(1,b=2,...)", "f(1, b = 2, ...)\n"},
		{"xs[i+1]", "xs[i + 1]\n"},
		{"quote(a+b)", "quote(a + b)\n"},
		{"function(a,b=2) a+b", "function(a, b = 2) a + b\n"},
		{"if(x) 'a' else 'b'", "if (x) \"a\" else \"b\"\n"},
		{"while(TRUE) {}", "while (TRUE) {}\n"},
		{"for(i in xs) {s<-s+i}", "for (i in xs) {\n  s <- s + i\n}\n"},
		{"con ? $x + 1", "con ? $x + 1\n"},
		{"1e21", "1e+21\n"},
		{`"tab\there"`, "\"tab\\there\"\n"},
	}
	for _, tc := range tests {
		if got := mustFormat(t, tc.src); got != tc.want {
			t.Errorf("%q:\n got: %q\nwant: %q", tc.src, got, tc.want)
		}
	}
}

// Formatting is a fixed point: format(parse(format(x))) == format(x).
func TestFormatRoundTrip(t *testing.T) {
	sources := []string{
		"a <- 1; while (a < 4) a <- a + 1; a",
		"f <- function(a, b = a * 2, ...) {\n  g(...)\n  a - b\n}",
		"x + (if (y) 1 else 2)",
		"(function(x) x)(3)",
		"if (a) (if (b) 1) else 2",
		"x <- (con ? y)",
		"(x <- con) ? y",
		"tryCatch(expr = stop(\"x\"), catch = .Last.error)",
		"2 ^ -1",
		"quote(con ? { $a })",
		"f(\"odd name\" = 1)",
		"NULL; TRUE; FALSE",
	}
	for _, src := range sources {
		first := mustFormat(t, src)
		second := mustFormat(t, first)
		if first != second {
			t.Errorf("not a fixed point for %q:\nfirst:  %q\nsecond: %q", src, first, second)
		}
	}
}

func TestFormatExprSingleLine(t *testing.T) {
	e, diags := parser.ParseExpr("sum <- a + b", "test.r")
	if diags != nil {
		t.Fatal(diags)
	}
	if got := formatter.Format(e); got != "sum <- a + b" {
		t.Errorf("got %q", got)
	}
}

func TestHasComments(t *testing.T) {
	if !formatter.HasComments("x <- 1 # note") {
		t.Error("expected trailing comment to be detected")
	}
	if formatter.HasComments(`x <- "# not a comment"`) {
		t.Error("hash inside a string is not a comment")
	}
	if formatter.HasComments(`x <- 'it\'s # fine'`) {
		t.Error("hash inside an escaped single-quoted string is not a comment")
	}
}
