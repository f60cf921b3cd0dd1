// Package lexer implements the chrono expression tokenizer.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// TokenType identifies the type of a lexer token.
type TokenType int

const (
	// Keywords
	TokFunction TokenType = iota
	TokIf
	TokElse
	TokWhile
	TokFor
	TokIn
	TokTrue
	TokFalse
	TokNull

	// Literals
	TokNumLit
	TokStringLit

	// Identifiers
	TokIdent
	TokBoundVar // $name
	TokEllipsis // ...

	// Punctuation
	TokLBrace   // {
	TokRBrace   // }
	TokLBracket // [
	TokRBracket // ]
	TokLParen   // (
	TokRParen   // )
	TokComma    // ,
	TokSemi     // ;
	TokNewline

	// Assignment
	TokLArrow       // <-
	TokSuperArrow   // <<-
	TokEquals       // =
	TokQuestion     // ?

	// Comparison operators
	TokGtEq   // >=
	TokLtEq   // <=
	TokEqEq   // ==
	TokBangEq // !=
	TokGt     // >
	TokLt     // <

	// Logical operators
	TokBang // !
	TokAnd  // & or &&
	TokOr   // | or ||

	// Arithmetic operators
	TokPlus    // +
	TokMinus   // -
	TokStar    // *
	TokSlash   // /
	TokCaret   // ^
	TokPercent // %%

	// Special
	TokEOF
)

// Token represents a single lexer token.
type Token struct {
	Type  TokenType
	Value string
	Span  ast.Span
}

var keywords = map[string]TokenType{
	"function": TokFunction,
	"if":       TokIf,
	"else":     TokElse,
	"while":    TokWhile,
	"for":      TokFor,
	"in":       TokIn,
	"TRUE":     TokTrue,
	"FALSE":    TokFalse,
	"NULL":     TokNull,
}

type scanner struct {
	source   string
	filename string
	pos      int
	line     int
	col      int
	// open brackets; newlines are insignificant directly inside ( and [
	nesting []byte
}

func newScanner(source, filename string) *scanner {
	return &scanner{
		source:   source,
		filename: filename,
		pos:      0,
		line:     1,
		col:      1,
	}
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.source)
}

func (s *scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.source[s.pos]
}

func (s *scanner) peekAt(offset int) byte {
	p := s.pos + offset
	if p >= len(s.source) {
		return 0
	}
	return s.source[p]
}

func (s *scanner) advance() byte {
	ch := s.source[s.pos]
	s.pos++
	if ch == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return ch
}

func (s *scanner) span(startLine, startCol int) ast.Span {
	return ast.Span{
		File:      s.filename,
		StartLine: startLine,
		StartCol:  startCol,
		EndLine:   s.line,
		EndCol:    s.col,
	}
}

func (s *scanner) newlineSignificant() bool {
	if len(s.nesting) == 0 {
		return true
	}
	return s.nesting[len(s.nesting)-1] == '{'
}

func (s *scanner) open(ch byte) {
	s.nesting = append(s.nesting, ch)
}

func (s *scanner) close() {
	if len(s.nesting) > 0 {
		s.nesting = s.nesting[:len(s.nesting)-1]
	}
}

// skipSpace skips blanks and comments, stopping at a significant newline.
func (s *scanner) skipSpace() {
	for !s.atEnd() {
		ch := s.peek()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			s.advance()
		case ch == '\n' && !s.newlineSignificant():
			s.advance()
		case ch == '#':
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		default:
			return
		}
	}
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentChar(ch byte) bool {
	return isAlpha(ch) || isDigit(ch) || ch == '.'
}

func (s *scanner) scanString(quote byte) (Token, error) {
	startLine, startCol := s.line, s.col
	s.advance() // consume opening quote

	var buf strings.Builder
	for !s.atEnd() {
		ch := s.peek()
		if ch == quote {
			s.advance()
			return Token{
				Type:  TokStringLit,
				Value: buf.String(),
				Span:  s.span(startLine, startCol),
			}, nil
		}
		if ch == '\\' {
			s.advance()
			if s.atEnd() {
				return Token{}, s.lexError(startLine, startCol, "unterminated string escape")
			}
			esc := s.advance()
			switch esc {
			case '"', '\'', '\\':
				buf.WriteByte(esc)
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case '0':
				buf.WriteByte(0)
			case 'u':
				if s.pos+4 > len(s.source) {
					return Token{}, s.lexError(startLine, startCol, "incomplete unicode escape")
				}
				hexStr := s.source[s.pos : s.pos+4]
				codepoint, err := strconv.ParseUint(hexStr, 16, 32)
				if err != nil {
					return Token{}, s.lexError(startLine, startCol, fmt.Sprintf("invalid unicode escape: \\u%s", hexStr))
				}
				buf.WriteRune(rune(codepoint))
				for i := 0; i < 4; i++ {
					s.advance()
				}
			default:
				return Token{}, s.lexError(startLine, startCol, fmt.Sprintf("invalid escape character: \\%c", esc))
			}
			continue
		}
		r, size := utf8.DecodeRuneInString(s.source[s.pos:])
		if r == utf8.RuneError && size == 1 {
			return Token{}, s.lexError(startLine, startCol, "invalid UTF-8 character in string")
		}
		buf.WriteRune(r)
		for i := 0; i < size; i++ {
			s.advance()
		}
	}
	return Token{}, s.lexError(startLine, startCol, "unterminated string literal")
}

func (s *scanner) scanNumber() Token {
	startLine, startCol := s.line, s.col
	startPos := s.pos

	for !s.atEnd() && isDigit(s.peek()) {
		s.advance()
	}
	if !s.atEnd() && s.peek() == '.' && isDigit(s.peekAt(1)) {
		s.advance()
		for !s.atEnd() && isDigit(s.peek()) {
			s.advance()
		}
	}
	if !s.atEnd() && (s.peek() == 'e' || s.peek() == 'E') {
		next := s.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(s.peekAt(2))) {
			s.advance()
			if s.peek() == '+' || s.peek() == '-' {
				s.advance()
			}
			for !s.atEnd() && isDigit(s.peek()) {
				s.advance()
			}
		}
	}
	// integer suffix, as in 1L
	text := s.source[startPos:s.pos]
	if !s.atEnd() && s.peek() == 'L' {
		s.advance()
	}

	return Token{
		Type:  TokNumLit,
		Value: text,
		Span:  s.span(startLine, startCol),
	}
}

func (s *scanner) scanIdentOrKeyword() Token {
	startLine, startCol := s.line, s.col
	startPos := s.pos

	for !s.atEnd() && isIdentChar(s.peek()) {
		s.advance()
	}

	text := s.source[startPos:s.pos]
	if text == "..." {
		return Token{Type: TokEllipsis, Value: text, Span: s.span(startLine, startCol)}
	}
	if tokType, ok := keywords[text]; ok {
		return Token{Type: tokType, Value: text, Span: s.span(startLine, startCol)}
	}
	return Token{Type: TokIdent, Value: text, Span: s.span(startLine, startCol)}
}

func (s *scanner) lexError(line, col int, msg string) error {
	diag := diagnostics.MakeDiag(
		diagnostics.ELex,
		msg,
		&ast.Span{File: s.filename, StartLine: line, StartCol: col, EndLine: line, EndCol: col + 1},
		"",
	)
	return &LexError{Diag: diag}
}

// LexError wraps a diagnostic for lex errors.
type LexError struct {
	Diag diagnostics.Diagnostic
}

func (e *LexError) Error() string {
	return e.Diag.Message
}

func (s *scanner) token(typ TokenType, width int, startLine, startCol int) Token {
	start := s.pos
	for i := 0; i < width; i++ {
		s.advance()
	}
	return Token{Type: typ, Value: s.source[start:s.pos], Span: s.span(startLine, startCol)}
}

func (s *scanner) nextToken() (Token, error) {
	s.skipSpace()

	if s.atEnd() {
		return Token{Type: TokEOF, Span: s.span(s.line, s.col)}, nil
	}

	ch := s.peek()
	startLine, startCol := s.line, s.col

	switch ch {
	case '\n':
		return s.token(TokNewline, 1, startLine, startCol), nil
	case '{':
		s.open('{')
		return s.token(TokLBrace, 1, startLine, startCol), nil
	case '}':
		s.close()
		return s.token(TokRBrace, 1, startLine, startCol), nil
	case '(':
		s.open('(')
		return s.token(TokLParen, 1, startLine, startCol), nil
	case ')':
		s.close()
		return s.token(TokRParen, 1, startLine, startCol), nil
	case '[':
		s.open('[')
		return s.token(TokLBracket, 1, startLine, startCol), nil
	case ']':
		s.close()
		return s.token(TokRBracket, 1, startLine, startCol), nil
	case ',':
		return s.token(TokComma, 1, startLine, startCol), nil
	case ';':
		return s.token(TokSemi, 1, startLine, startCol), nil
	case '?':
		return s.token(TokQuestion, 1, startLine, startCol), nil
	case '+':
		return s.token(TokPlus, 1, startLine, startCol), nil
	case '-':
		return s.token(TokMinus, 1, startLine, startCol), nil
	case '*':
		return s.token(TokStar, 1, startLine, startCol), nil
	case '/':
		return s.token(TokSlash, 1, startLine, startCol), nil
	case '^':
		return s.token(TokCaret, 1, startLine, startCol), nil
	case '%':
		if s.peekAt(1) == '%' {
			return s.token(TokPercent, 2, startLine, startCol), nil
		}
		s.advance()
		return Token{}, s.lexError(startLine, startCol, "unexpected character '%'")
	case '&':
		if s.peekAt(1) == '&' {
			return s.token(TokAnd, 2, startLine, startCol), nil
		}
		return s.token(TokAnd, 1, startLine, startCol), nil
	case '|':
		if s.peekAt(1) == '|' {
			return s.token(TokOr, 2, startLine, startCol), nil
		}
		return s.token(TokOr, 1, startLine, startCol), nil
	case '=':
		if s.peekAt(1) == '=' {
			return s.token(TokEqEq, 2, startLine, startCol), nil
		}
		return s.token(TokEquals, 1, startLine, startCol), nil
	case '!':
		if s.peekAt(1) == '=' {
			return s.token(TokBangEq, 2, startLine, startCol), nil
		}
		return s.token(TokBang, 1, startLine, startCol), nil
	case '>':
		if s.peekAt(1) == '=' {
			return s.token(TokGtEq, 2, startLine, startCol), nil
		}
		return s.token(TokGt, 1, startLine, startCol), nil
	case '<':
		switch {
		case s.peekAt(1) == '<' && s.peekAt(2) == '-':
			return s.token(TokSuperArrow, 3, startLine, startCol), nil
		case s.peekAt(1) == '-':
			return s.token(TokLArrow, 2, startLine, startCol), nil
		case s.peekAt(1) == '=':
			return s.token(TokLtEq, 2, startLine, startCol), nil
		}
		return s.token(TokLt, 1, startLine, startCol), nil
	case '$':
		s.advance()
		if s.atEnd() || !(isAlpha(s.peek()) || s.peek() == '.') {
			return Token{}, s.lexError(startLine, startCol, "expected a name after '$'")
		}
		tok := s.scanIdentOrKeyword()
		return Token{Type: TokBoundVar, Value: tok.Value, Span: s.span(startLine, startCol)}, nil
	case '"', '\'':
		return s.scanString(ch)
	}

	if isDigit(ch) || (ch == '.' && isDigit(s.peekAt(1))) {
		return s.scanNumber(), nil
	}
	if isAlpha(ch) || ch == '.' {
		return s.scanIdentOrKeyword(), nil
	}

	s.advance()
	return Token{}, s.lexError(startLine, startCol, fmt.Sprintf("unexpected character '%c'", ch))
}

// Tokenize breaks source code into a slice of tokens.
func Tokenize(source, filename string) ([]Token, error) {
	s := newScanner(source, filename)
	var tokens []Token

	for {
		tok, err := s.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokEOF {
			break
		}
	}

	return tokens, nil
}
