package lexer

import (
	"strings"
	"testing"
)

// helper to tokenize and fail on error
func mustTokenize(t *testing.T, source string) []Token {
	t.Helper()
	tokens, err := Tokenize(source, "test.r")
	if err != nil {
		t.Fatalf("unexpected lex error: %v", err)
	}
	return tokens
}

// helper that strips the trailing EOF for easier assertions
func mustTokenizeNoEOF(t *testing.T, source string) []Token {
	t.Helper()
	tokens := mustTokenize(t, source)
	if len(tokens) == 0 {
		t.Fatal("expected at least one token (EOF)")
	}
	if tokens[len(tokens)-1].Type != TokEOF {
		t.Fatal("last token is not EOF")
	}
	return tokens[:len(tokens)-1]
}

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func expectTypes(t *testing.T, source string, want ...TokenType) {
	t.Helper()
	got := types(mustTokenizeNoEOF(t, source))
	if len(got) != len(want) {
		t.Fatalf("%q: got %d tokens %v, want %d %v", source, len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%q: token %d = %v, want %v", source, i, got[i], want[i])
		}
	}
}

func TestEmptyInput(t *testing.T) {
	tokens := mustTokenize(t, "")
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token (EOF), got %d", len(tokens))
	}
	if tokens[0].Type != TokEOF {
		t.Errorf("expected TokEOF, got %v", tokens[0].Type)
	}
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		keyword  string
		expected TokenType
	}{
		{"function", TokFunction},
		{"if", TokIf},
		{"else", TokElse},
		{"while", TokWhile},
		{"for", TokFor},
		{"in", TokIn},
		{"TRUE", TokTrue},
		{"FALSE", TokFalse},
		{"NULL", TokNull},
	}
	for _, tc := range tests {
		tokens := mustTokenizeNoEOF(t, tc.keyword)
		if len(tokens) != 1 || tokens[0].Type != tc.expected {
			t.Errorf("%q: got %v, want %v", tc.keyword, types(tokens), tc.expected)
		}
	}
}

func TestAssignmentArrows(t *testing.T) {
	expectTypes(t, "a <- 1", TokIdent, TokLArrow, TokNumLit)
	expectTypes(t, "a <<- 1", TokIdent, TokSuperArrow, TokNumLit)
	expectTypes(t, "a = 1", TokIdent, TokEquals, TokNumLit)
	expectTypes(t, "a < -1", TokIdent, TokLt, TokMinus, TokNumLit)
}

func TestOperators(t *testing.T) {
	expectTypes(t, "+ - * / ^ %%",
		TokPlus, TokMinus, TokStar, TokSlash, TokCaret, TokPercent)
	expectTypes(t, "> < >= <= == !=",
		TokGt, TokLt, TokGtEq, TokLtEq, TokEqEq, TokBangEq)
	expectTypes(t, "! & && | ||", TokBang, TokAnd, TokAnd, TokOr, TokOr)
}

func TestIdentifiers(t *testing.T) {
	tokens := mustTokenizeNoEOF(t, ".Last.value is.null x_1")
	want := []string{".Last.value", "is.null", "x_1"}
	for i, w := range want {
		if tokens[i].Type != TokIdent || tokens[i].Value != w {
			t.Errorf("token %d = %v %q, want ident %q", i, tokens[i].Type, tokens[i].Value, w)
		}
	}
}

func TestEllipsisAndBoundVar(t *testing.T) {
	tokens := mustTokenizeNoEOF(t, "f(...) + $x")
	if tokens[2].Type != TokEllipsis {
		t.Errorf("expected ellipsis, got %v", tokens[2].Type)
	}
	last := tokens[len(tokens)-1]
	if last.Type != TokBoundVar || last.Value != "x" {
		t.Errorf("expected bound var x, got %v %q", last.Type, last.Value)
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"42", "42"},
		{"3.14", "3.14"},
		{".5", ".5"},
		{"1e10", "1e10"},
		{"2.5e-3", "2.5e-3"},
		{"7L", "7"},
	}
	for _, tc := range tests {
		tokens := mustTokenizeNoEOF(t, tc.src)
		if len(tokens) != 1 || tokens[0].Type != TokNumLit || tokens[0].Value != tc.want {
			t.Errorf("%q: got %+v", tc.src, tokens)
		}
	}
}

func TestStrings(t *testing.T) {
	tokens := mustTokenizeNoEOF(t, `"a\"b" 'c\n'`)
	if tokens[0].Value != `a"b` {
		t.Errorf("got %q", tokens[0].Value)
	}
	if tokens[1].Value != "c\n" {
		t.Errorf("got %q", tokens[1].Value)
	}
}

func TestNewlines(t *testing.T) {
	// significant at top level and inside braces
	expectTypes(t, "a\nb", TokIdent, TokNewline, TokIdent)
	expectTypes(t, "{a\nb}", TokLBrace, TokIdent, TokNewline, TokIdent, TokRBrace)
	// insignificant inside parentheses and brackets
	expectTypes(t, "f(a,\nb)", TokIdent, TokLParen, TokIdent, TokComma, TokIdent, TokRParen)
	expectTypes(t, "x[\n1]", TokIdent, TokLBracket, TokNumLit, TokRBracket)
	// braces inside parentheses make newlines significant again
	expectTypes(t, "f({a\nb})",
		TokIdent, TokLParen, TokLBrace, TokIdent, TokNewline, TokIdent, TokRBrace, TokRParen)
}

func TestComments(t *testing.T) {
	expectTypes(t, "a # trailing\nb", TokIdent, TokNewline, TokIdent)
}

func TestSpans(t *testing.T) {
	tokens := mustTokenizeNoEOF(t, "a <- 1\n  bb")
	bb := tokens[len(tokens)-1]
	if bb.Span.StartLine != 2 || bb.Span.StartCol != 3 || bb.Span.EndCol != 5 {
		t.Errorf("unexpected span %+v", bb.Span)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"open`, "unterminated string literal"},
		{`"\q"`, "invalid escape"},
		{`a % b`, "unexpected character '%'"},
		{`$1`, "expected a name after '$'"},
		{"@", "unexpected character '@'"},
	}
	for _, tc := range tests {
		_, err := Tokenize(tc.src, "test.r")
		if err == nil {
			t.Errorf("%q: expected error", tc.src)
			continue
		}
		le, ok := err.(*LexError)
		if !ok {
			t.Errorf("%q: expected *LexError, got %T", tc.src, err)
			continue
		}
		if !strings.Contains(le.Diag.Message, tc.want) {
			t.Errorf("%q: got %q, want substring %q", tc.src, le.Diag.Message, tc.want)
		}
	}
}
