package diagnostics_test

import (
	"strings"
	"testing"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

func TestMakeDiag(t *testing.T) {
	span := &ast.Span{File: "test.r", StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 5}
	d := diagnostics.MakeDiag(diagnostics.EParse, "unexpected token", span, "check syntax")

	if d.Code != diagnostics.EParse {
		t.Errorf("got Code = %q, want %q", d.Code, diagnostics.EParse)
	}
	if d.Message != "unexpected token" {
		t.Errorf("got Message = %q, want %q", d.Message, "unexpected token")
	}
}

func TestFormatDiagnosticPretty(t *testing.T) {
	span := &ast.Span{File: "test.r", StartLine: 3, StartCol: 5, EndLine: 3, EndCol: 10}
	d := diagnostics.MakeDiag(diagnostics.EUnbound, "object 'x' not found", span, "did you mean 'y'?")

	out := diagnostics.FormatDiagnostic(d, true)
	if !strings.Contains(out, "error[E_UNBOUND]") {
		t.Errorf("expected error code in output, got: %s", out)
	}
	if !strings.Contains(out, "test.r:3:5") {
		t.Errorf("expected location in output, got: %s", out)
	}
	if !strings.Contains(out, "hint:") {
		t.Errorf("expected hint in output, got: %s", out)
	}
}

func TestFormatDiagnosticJSON(t *testing.T) {
	d := diagnostics.MakeDiag(diagnostics.ELex, "bad token", nil, "")
	out := diagnostics.FormatDiagnostic(d, false)
	if !strings.Contains(out, `"code":"E_LEX"`) {
		t.Errorf("expected JSON code in output, got: %s", out)
	}
}

func TestFormatWithSourceCaret(t *testing.T) {
	src := "a <- 1\nx + yy\n"
	span := &ast.Span{File: "<console>", StartLine: 2, StartCol: 5, EndLine: 2, EndCol: 7}
	d := diagnostics.MakeDiag(diagnostics.EUnbound, "object 'yy' not found", span, "")

	out := diagnostics.FormatWithSource(d, src)
	lines := strings.Split(out, "\n")
	if len(lines) < 5 {
		t.Fatalf("expected snippet lines, got:\n%s", out)
	}
	if got := lines[len(lines)-2]; got != " 2 | x + yy" {
		t.Errorf("source line = %q", got)
	}
	if got := lines[len(lines)-1]; got != "   |     ^^" {
		t.Errorf("caret line = %q", got)
	}
}

func TestFormatWithSourceNoSpan(t *testing.T) {
	d := diagnostics.MakeDiag(diagnostics.EUser, "boom", nil, "")
	out := diagnostics.FormatWithSource(d, "stop(\"boom\")")
	if strings.Contains(out, "|") {
		t.Errorf("expected no snippet without a span, got:\n%s", out)
	}
}

func TestFormatDiagnosticWithoutLocation(t *testing.T) {
	tests := []struct {
		name string
		span *ast.Span
	}{
		{"nil span", nil},
		{"zero span", &ast.Span{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diagnostics.MakeDiag(diagnostics.ERemote, "connection lost", tt.span, "")
			out := diagnostics.FormatWithSource(d, "x + 1")
			if out != "error[E_REMOTE]: connection lost" {
				t.Errorf("got %q", out)
			}
		})
	}
}
