// Package parser implements the chrono expression parser.
package parser

import (
	"fmt"
	"strconv"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/lexer"
)

type parser struct {
	tokens []lexer.Token
	pos    int
	diags  []diagnostics.Diagnostic
}

// Parse tokenizes source and parses it into a top-level sequence.
func Parse(source, filename string) (*ast.Seq, []diagnostics.Diagnostic) {
	tokens, err := lexer.Tokenize(source, filename)
	if err != nil {
		if le, ok := err.(*lexer.LexError); ok {
			return nil, []diagnostics.Diagnostic{le.Diag}
		}
		return nil, []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.ELex, err.Error(), nil, "")}
	}

	p := &parser{tokens: tokens, pos: 0}
	prog := p.parseProgram()
	if len(p.diags) > 0 {
		return nil, p.diags
	}
	return prog, nil
}

// ParseExpr parses source that must hold exactly one expression.
func ParseExpr(source, filename string) (ast.Expr, []diagnostics.Diagnostic) {
	prog, diags := Parse(source, filename)
	if diags != nil {
		return nil, diags
	}
	if len(prog.Exprs) != 1 {
		span := prog.Span
		return nil, []diagnostics.Diagnostic{diagnostics.MakeDiag(
			diagnostics.EParse,
			fmt.Sprintf("expected a single expression, got %d", len(prog.Exprs)),
			&span, "")}
	}
	return prog.Exprs[0], nil
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() lexer.TokenType {
	return p.current().Type
}

func (p *parser) peekAt(offset int) lexer.TokenType {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return lexer.TokEOF
	}
	return p.tokens[idx].Type
}

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ lexer.TokenType) (lexer.Token, bool) {
	tok := p.current()
	if tok.Type != typ {
		p.addError(fmt.Sprintf("expected %s, got %s", tokenName(typ), describe(tok)), &tok.Span)
		return tok, false
	}
	return p.advance(), true
}

func (p *parser) addError(msg string, span *ast.Span) {
	p.diags = append(p.diags, diagnostics.MakeDiag(diagnostics.EParse, msg, span, ""))
}

func (p *parser) spanFromTo(start, end ast.Span) ast.Span {
	return ast.Span{
		File:      start.File,
		StartLine: start.StartLine,
		StartCol:  start.StartCol,
		EndLine:   end.EndLine,
		EndCol:    end.EndCol,
	}
}

func (p *parser) skipNewlines() {
	for p.peek() == lexer.TokNewline {
		p.advance()
	}
}

func tokenName(t lexer.TokenType) string {
	switch t {
	case lexer.TokLBrace:
		return "'{'"
	case lexer.TokRBrace:
		return "'}'"
	case lexer.TokLBracket:
		return "'['"
	case lexer.TokRBracket:
		return "']'"
	case lexer.TokLParen:
		return "'('"
	case lexer.TokRParen:
		return "')'"
	case lexer.TokComma:
		return "','"
	case lexer.TokEquals:
		return "'='"
	case lexer.TokIn:
		return "'in'"
	case lexer.TokIdent:
		return "identifier"
	case lexer.TokStringLit:
		return "string"
	case lexer.TokNumLit:
		return "number"
	case lexer.TokNewline:
		return "end of line"
	case lexer.TokEOF:
		return "end of input"
	default:
		return fmt.Sprintf("token(%d)", t)
	}
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.TokEOF, lexer.TokNewline:
		return tokenName(tok.Type)
	}
	return fmt.Sprintf("'%s'", tok.Value)
}

func isTerminator(t lexer.TokenType) bool {
	return t == lexer.TokNewline || t == lexer.TokSemi
}

// --- Sequences ---

func (p *parser) parseProgram() *ast.Seq {
	startSpan := p.current().Span
	exprs, ok := p.parseStatements(lexer.TokEOF)
	if !ok {
		return nil
	}
	return &ast.Seq{
		Span:  p.spanFromTo(startSpan, p.current().Span),
		Exprs: exprs,
	}
}

// parseStatements reads separator-delimited expressions until end (not consumed).
func (p *parser) parseStatements(end lexer.TokenType) ([]ast.Expr, bool) {
	var exprs []ast.Expr
	for {
		for isTerminator(p.peek()) {
			p.advance()
		}
		if p.peek() == end || p.peek() == lexer.TokEOF {
			break
		}
		e := p.parseExpr()
		if e == nil {
			return nil, false
		}
		exprs = append(exprs, e)
		if !isTerminator(p.peek()) && p.peek() != end && p.peek() != lexer.TokEOF {
			tok := p.current()
			p.addError(fmt.Sprintf("unexpected %s", describe(tok)), &tok.Span)
			return nil, false
		}
	}
	return exprs, true
}

func (p *parser) parseBlock() ast.Expr {
	start := p.advance() // consume '{'
	exprs, ok := p.parseStatements(lexer.TokRBrace)
	if !ok {
		return nil
	}
	end, ok := p.expect(lexer.TokRBrace)
	if !ok {
		return nil
	}
	return &ast.Seq{Span: p.spanFromTo(start.Span, end.Span), Exprs: exprs}
}

// --- Expressions, lowest precedence first ---

func (p *parser) parseExpr() ast.Expr {
	return p.parseRequest()
}

// parseRequest handles 'peer ? body', right associative.
func (p *parser) parseRequest() ast.Expr {
	left := p.parseAssign()
	if left == nil {
		return nil
	}
	if p.peek() != lexer.TokQuestion {
		return left
	}
	p.advance()
	body := p.parseRequest()
	if body == nil {
		return nil
	}
	return &ast.Request{
		Span: p.spanFromTo(left.NodeSpan(), body.NodeSpan()),
		Peer: left,
		Body: body,
	}
}

func (p *parser) parseAssign() ast.Expr {
	left := p.parseOr()
	if left == nil {
		return nil
	}

	var special bool
	switch p.peek() {
	case lexer.TokLArrow, lexer.TokEquals:
	case lexer.TokSuperArrow:
		special = true
	default:
		return left
	}
	arrow := p.advance()

	target, ok := left.(*ast.Symbol)
	if !ok || target.Name == "..." {
		span := left.NodeSpan()
		p.addError(fmt.Sprintf("invalid assignment target for '%s'", arrow.Value), &span)
		return nil
	}
	value := p.parseAssign()
	if value == nil {
		return nil
	}
	return &ast.Assign{
		Span:    p.spanFromTo(left.NodeSpan(), value.NodeSpan()),
		Target:  target,
		Value:   value,
		Special: special,
	}
}

func (p *parser) parseOr() ast.Expr {
	left := p.parseAnd()
	if left == nil {
		return nil
	}
	for p.peek() == lexer.TokOr {
		p.advance()
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		left = p.binary(ast.OpOr, left, right)
	}
	return left
}

func (p *parser) parseAnd() ast.Expr {
	left := p.parseNot()
	if left == nil {
		return nil
	}
	for p.peek() == lexer.TokAnd {
		p.advance()
		right := p.parseNot()
		if right == nil {
			return nil
		}
		left = p.binary(ast.OpAnd, left, right)
	}
	return left
}

func (p *parser) parseNot() ast.Expr {
	if p.peek() != lexer.TokBang {
		return p.parseComparison()
	}
	start := p.advance()
	operand := p.parseNot()
	if operand == nil {
		return nil
	}
	return &ast.Unary{
		Span:    p.spanFromTo(start.Span, operand.NodeSpan()),
		Op:      ast.OpNot,
		Operand: operand,
	}
}

func (p *parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokGt:
			op = ast.OpGt
		case lexer.TokLt:
			op = ast.OpLt
		case lexer.TokGtEq:
			op = ast.OpGtEq
		case lexer.TokLtEq:
			op = ast.OpLtEq
		case lexer.TokEqEq:
			op = ast.OpEqEq
		case lexer.TokBangEq:
			op = ast.OpNeq
		default:
			return left
		}
		p.advance()
		right := p.parseAdditive()
		if right == nil {
			return nil
		}
		left = p.binary(op, left, right)
	}
}

func (p *parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokPlus:
			op = ast.OpAdd
		case lexer.TokMinus:
			op = ast.OpSub
		default:
			return left
		}
		p.advance()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = p.binary(op, left, right)
	}
}

func (p *parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokStar:
			op = ast.OpMul
		case lexer.TokSlash:
			op = ast.OpDiv
		case lexer.TokPercent:
			op = ast.OpMod
		default:
			return left
		}
		p.advance()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = p.binary(op, left, right)
	}
}

func (p *parser) parseUnary() ast.Expr {
	switch p.peek() {
	case lexer.TokMinus:
		start := p.advance()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &ast.Unary{
			Span:    p.spanFromTo(start.Span, operand.NodeSpan()),
			Op:      ast.OpNeg,
			Operand: operand,
		}
	case lexer.TokPlus:
		p.advance()
		return p.parseUnary()
	}
	return p.parsePower()
}

// parsePower binds tighter than unary minus, so -2^2 is -(2^2).
func (p *parser) parsePower() ast.Expr {
	base := p.parsePostfix()
	if base == nil {
		return nil
	}
	if p.peek() != lexer.TokCaret {
		return base
	}
	p.advance()
	exp := p.parseUnary()
	if exp == nil {
		return nil
	}
	return p.binary(ast.OpPow, base, exp)
}

func (p *parser) binary(op ast.BinaryOp, left, right ast.Expr) ast.Expr {
	return &ast.Binary{
		Span:  p.spanFromTo(left.NodeSpan(), right.NodeSpan()),
		Op:    op,
		Left:  left,
		Right: right,
	}
}

func (p *parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}
	for {
		switch p.peek() {
		case lexer.TokLParen:
			expr = p.parseCall(expr)
		case lexer.TokLBracket:
			p.advance()
			index := p.parseExpr()
			if index == nil {
				return nil
			}
			end, ok := p.expect(lexer.TokRBracket)
			if !ok {
				return nil
			}
			expr = &ast.Binary{
				Span:  p.spanFromTo(expr.NodeSpan(), end.Span),
				Op:    ast.OpIndex,
				Left:  expr,
				Right: index,
			}
		default:
			return expr
		}
		if expr == nil {
			return nil
		}
	}
}

func (p *parser) parseCall(callee ast.Expr) ast.Expr {
	p.advance() // consume '('
	var args []*ast.Arg
	for p.peek() != lexer.TokRParen {
		arg := p.parseArg()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	end, ok := p.expect(lexer.TokRParen)
	if !ok {
		return nil
	}
	span := p.spanFromTo(callee.NodeSpan(), end.Span)

	// quote(x) becomes a Quote node
	if sym, ok := callee.(*ast.Symbol); ok && sym.Name == "quote" {
		if len(args) != 1 || (args[0].Name != "" && args[0].Name != "expr") {
			p.addError("quote() takes exactly one argument", &span)
			return nil
		}
		return &ast.Quote{Span: span, Body: args[0].Value}
	}
	return &ast.Call{Span: span, Callee: callee, Args: args}
}

func (p *parser) parseArg() *ast.Arg {
	tok := p.current()
	if (tok.Type == lexer.TokIdent || tok.Type == lexer.TokStringLit) && p.peekAt(1) == lexer.TokEquals {
		p.advance()
		p.advance()
		value := p.parseExpr()
		if value == nil {
			return nil
		}
		return &ast.Arg{Span: p.spanFromTo(tok.Span, value.NodeSpan()), Name: tok.Value, Value: value}
	}
	value := p.parseExpr()
	if value == nil {
		return nil
	}
	return &ast.Arg{Span: value.NodeSpan(), Value: value}
}

func (p *parser) parsePrimary() ast.Expr {
	switch p.peek() {
	case lexer.TokLParen:
		// Grouped expression
		p.advance()
		expr := p.parseExpr()
		if expr == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TokRParen); !ok {
			return nil
		}
		return expr

	case lexer.TokLBrace:
		return p.parseBlock()

	case lexer.TokNumLit:
		tok := p.advance()
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.addError(fmt.Sprintf("invalid number '%s'", tok.Value), &tok.Span)
			return nil
		}
		return &ast.NumLit{Span: tok.Span, Value: val}

	case lexer.TokStringLit:
		tok := p.advance()
		return &ast.StrLit{Span: tok.Span, Value: tok.Value}

	case lexer.TokTrue:
		tok := p.advance()
		return &ast.BoolLit{Span: tok.Span, Value: true}

	case lexer.TokFalse:
		tok := p.advance()
		return &ast.BoolLit{Span: tok.Span, Value: false}

	case lexer.TokNull:
		tok := p.advance()
		return &ast.NullLit{Span: tok.Span}

	case lexer.TokIdent, lexer.TokEllipsis:
		tok := p.advance()
		return &ast.Symbol{Span: tok.Span, Name: tok.Value}

	case lexer.TokBoundVar:
		tok := p.advance()
		return &ast.BoundVar{Span: tok.Span, Name: tok.Value}

	case lexer.TokFunction:
		return p.parseFunction()

	case lexer.TokIf:
		return p.parseIf()

	case lexer.TokWhile:
		return p.parseWhile()

	case lexer.TokFor:
		return p.parseFor()

	default:
		tok := p.current()
		p.addError(fmt.Sprintf("unexpected %s", describe(tok)), &tok.Span)
		return nil
	}
}

func (p *parser) parseFunction() ast.Expr {
	start := p.advance() // consume 'function'
	if _, ok := p.expect(lexer.TokLParen); !ok {
		return nil
	}

	var formals []*ast.Formal
	seen := map[string]bool{}
	for p.peek() != lexer.TokRParen {
		tok := p.current()
		if tok.Type != lexer.TokIdent && tok.Type != lexer.TokEllipsis {
			p.addError(fmt.Sprintf("expected formal argument name, got %s", describe(tok)), &tok.Span)
			return nil
		}
		p.advance()
		if seen[tok.Value] {
			p.addError(fmt.Sprintf("repeated formal argument '%s'", tok.Value), &tok.Span)
			return nil
		}
		seen[tok.Value] = true
		f := &ast.Formal{Span: tok.Span, Name: tok.Value}
		if p.peek() == lexer.TokEquals {
			if tok.Type == lexer.TokEllipsis {
				p.addError("'...' cannot have a default", &tok.Span)
				return nil
			}
			p.advance()
			f.Default = p.parseExpr()
			if f.Default == nil {
				return nil
			}
			f.Span = p.spanFromTo(tok.Span, f.Default.NodeSpan())
		}
		formals = append(formals, f)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}

	p.skipNewlines()
	body := p.parseExpr()
	if body == nil {
		return nil
	}
	return &ast.FuncLit{
		Span:    p.spanFromTo(start.Span, body.NodeSpan()),
		Formals: formals,
		Body:    body,
	}
}

// parseCondition reads '(' expr ')'.
func (p *parser) parseCondition() ast.Expr {
	if _, ok := p.expect(lexer.TokLParen); !ok {
		return nil
	}
	cond := p.parseExpr()
	if cond == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	return cond
}

func (p *parser) parseIf() ast.Expr {
	start := p.advance() // consume 'if'
	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	p.skipNewlines()
	then := p.parseExpr()
	if then == nil {
		return nil
	}

	node := &ast.If{Span: p.spanFromTo(start.Span, then.NodeSpan()), Cond: cond, Then: then}

	// an else may follow on a later line
	save := p.pos
	p.skipNewlines()
	if p.peek() != lexer.TokElse {
		p.pos = save
		return node
	}
	p.advance()
	p.skipNewlines()
	node.Else = p.parseExpr()
	if node.Else == nil {
		return nil
	}
	node.Span = p.spanFromTo(start.Span, node.Else.NodeSpan())
	return node
}

func (p *parser) parseWhile() ast.Expr {
	start := p.advance() // consume 'while'
	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	p.skipNewlines()
	body := p.parseExpr()
	if body == nil {
		return nil
	}
	return &ast.While{
		Span: p.spanFromTo(start.Span, body.NodeSpan()),
		Cond: cond,
		Body: body,
	}
}

func (p *parser) parseFor() ast.Expr {
	start := p.advance() // consume 'for'
	if _, ok := p.expect(lexer.TokLParen); !ok {
		return nil
	}
	v, ok := p.expect(lexer.TokIdent)
	if !ok {
		return nil
	}
	if _, ok := p.expect(lexer.TokIn); !ok {
		return nil
	}
	seq := p.parseExpr()
	if seq == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	p.skipNewlines()
	body := p.parseExpr()
	if body == nil {
		return nil
	}
	return &ast.For{
		Span: p.spanFromTo(start.Span, body.NodeSpan()),
		Var:  v.Value,
		Seq:  seq,
		Body: body,
	}
}
