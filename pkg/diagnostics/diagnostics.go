// Package diagnostics defines diagnostic types for parse and runtime errors.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomasrohde/chrono/pkg/ast"
)

// Diagnostic code constants.
const (
	ELex              = "E_LEX"
	EParse            = "E_PARSE"
	EUnbound          = "E_UNBOUND"
	ENotFunction      = "E_NOT_FUNCTION"
	EArgDup           = "E_ARG_DUP"
	EArgUnused        = "E_ARG_UNUSED"
	EArgMissing       = "E_ARG_MISSING"
	EArgType          = "E_ARG_TYPE"
	EType             = "E_TYPE"
	ESubscript        = "E_SUBSCRIPT"
	EDepth            = "E_DEPTH"
	EBudget           = "E_BUDGET"
	EUser             = "E_USER"
	ERemote           = "E_REMOTE"
	ETimeout          = "E_TIMEOUT"
	ENotTransmissible = "E_NOT_TRANSMISSIBLE"
	EInterrupted      = "E_INTERRUPTED"
	EMalformed        = "E_MALFORMED"
	EIO               = "E_IO"
	EBoundVar         = "E_BOUND_VAR"
)

// Diagnostic represents a parse or runtime diagnostic.
type Diagnostic struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Span    *ast.Span `json:"span,omitempty"`
	Hint    string    `json:"hint,omitempty"`
}

// MakeDiag creates a new Diagnostic.
func MakeDiag(code, message string, span *ast.Span, hint string) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: message,
		Span:    span,
		Hint:    hint,
	}
}

// FormatDiagnostic formats a single diagnostic for display.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	out := fmt.Sprintf("error[%s]: %s", d.Code, d.Message)
	if d.Span != nil && d.Span.StartLine > 0 {
		out += fmt.Sprintf("\n  --> %s:%d:%d", d.Span.File, d.Span.StartLine, d.Span.StartCol)
	}
	if d.Hint != "" {
		out += fmt.Sprintf("\n  hint: %s", d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}

// FormatWithSource formats d and, when its span points into source, appends
// the offending line with a caret run under the span:
//
//	error[E_UNBOUND]: object 'y' not found
//	  --> <console>:1:5
//	   |
//	 1 | x + y
//	   |     ^
func FormatWithSource(d Diagnostic, source string) string {
	out := FormatDiagnostic(d, true)
	if d.Span == nil || d.Span.StartLine < 1 {
		return out
	}
	lines := strings.Split(source, "\n")
	if d.Span.StartLine > len(lines) {
		return out
	}
	line := strings.TrimRight(lines[d.Span.StartLine-1], "\r")
	num := fmt.Sprintf("%d", d.Span.StartLine)
	gutter := strings.Repeat(" ", len(num))

	start := d.Span.StartCol
	if start < 1 {
		start = 1
	}
	if start > len(line)+1 {
		start = len(line) + 1
	}
	end := d.Span.EndCol
	if d.Span.EndLine != d.Span.StartLine || end > len(line)+1 {
		end = len(line) + 1
	}
	width := end - start
	if width < 1 {
		width = 1
	}

	var b strings.Builder
	b.WriteString(out)
	fmt.Fprintf(&b, "\n %s |\n %s | %s\n %s | %s%s",
		gutter, num, line, gutter,
		strings.Repeat(" ", start-1), strings.Repeat("^", width))
	return b.String()
}
