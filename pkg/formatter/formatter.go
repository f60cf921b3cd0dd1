// Package formatter deparses expression trees back to chrono source.
//
// The output of Format parses back to an equivalent tree, which is what
// makes it usable as the wire form of request code.
package formatter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/thomasrohde/chrono/pkg/ast"
)

const indent = "  "

// Binding strength, loosest first. Forms that extend to the right
// (function, if, while, for) sit at precAssign: they may appear wherever
// a full expression is allowed but need parens as an operand.
const (
	precRequest = iota + 1
	precAssign
	precOr
	precAnd
	precNot
	precCompare
	precAdd
	precMul
	precUnary
	precPow
	precPostfix
	precPrimary
)

var binaryPrec = map[ast.BinaryOp]int{
	ast.OpOr: precOr, ast.OpAnd: precAnd,
	ast.OpEqEq: precCompare, ast.OpNeq: precCompare,
	ast.OpGt: precCompare, ast.OpLt: precCompare, ast.OpGtEq: precCompare, ast.OpLtEq: precCompare,
	ast.OpAdd: precAdd, ast.OpSub: precAdd,
	ast.OpMul: precMul, ast.OpDiv: precMul, ast.OpMod: precMul,
	ast.OpPow: precPow,
}

// Format deparses a single expression.
func Format(e ast.Expr) string {
	return formatExpr(e, 0, precRequest)
}

// FormatProgram deparses a top-level sequence, one statement per line.
func FormatProgram(prog *ast.Seq) string {
	if len(prog.Exprs) == 0 {
		return ""
	}
	lines := make([]string, len(prog.Exprs))
	for i, e := range prog.Exprs {
		lines[i] = formatExpr(e, 0, precRequest)
	}
	return strings.Join(lines, "\n") + "\n"
}

// HasComments checks if a source string contains comments (# prefix).
func HasComments(source string) bool {
	lines := strings.Split(source, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		// Be careful not to flag # inside strings
		var quote byte
		for i := 0; i < len(trimmed); i++ {
			ch := trimmed[i]
			switch {
			case quote != 0 && ch == '\\':
				i++
			case quote != 0 && ch == quote:
				quote = 0
			case quote == 0 && (ch == '"' || ch == '\''):
				quote = ch
			case quote == 0 && ch == '#':
				return true
			}
		}
	}
	return false
}

func paren(s string, prec, min int) string {
	if prec < min {
		return "(" + s + ")"
	}
	return s
}

func formatExpr(e ast.Expr, depth, min int) string {
	s, prec := format(e, depth)
	return paren(s, prec, min)
}

func format(e ast.Expr, depth int) (string, int) {
	switch expr := e.(type) {
	case *ast.NumLit:
		s := formatNumber(expr.Value)
		switch {
		case strings.Contains(s, "/"):
			return s, precMul
		case strings.HasPrefix(s, "-"):
			return s, precUnary
		}
		return s, precPrimary
	case *ast.StrLit:
		return quoteString(expr.Value), precPrimary
	case *ast.BoolLit:
		if expr.Value {
			return "TRUE", precPrimary
		}
		return "FALSE", precPrimary
	case *ast.NullLit:
		return "NULL", precPrimary
	case *ast.Symbol:
		return expr.Name, precPrimary
	case *ast.BoundVar:
		return "$" + expr.Name, precPrimary

	case *ast.Unary:
		switch expr.Op {
		case ast.OpNot:
			return "!" + formatExpr(expr.Operand, depth, precNot), precNot
		case ast.OpLength:
			return "length(" + formatExpr(expr.Operand, depth, precRequest) + ")", precPostfix
		}
		return "-" + formatExpr(expr.Operand, depth, precUnary), precUnary

	case *ast.Binary:
		if expr.Op == ast.OpIndex {
			return formatExpr(expr.Left, depth, precPostfix) +
				"[" + formatExpr(expr.Right, depth, precRequest) + "]", precPostfix
		}
		prec := binaryPrec[expr.Op]
		left, right := prec, prec+1
		if expr.Op == ast.OpPow {
			// right associative; the base is a postfix expression
			left, right = precPostfix, precUnary
		}
		return formatExpr(expr.Left, depth, left) + " " + string(expr.Op) + " " +
			formatExpr(expr.Right, depth, right), prec

	case *ast.Seq:
		return formatBlock(expr.Exprs, depth), precPrimary

	case *ast.If:
		then := formatExpr(expr.Then, depth, precRequest)
		if expr.Else == nil {
			return fmt.Sprintf("if (%s) %s", formatExpr(expr.Cond, depth, precRequest), then), precAssign
		}
		if _, dangling := expr.Then.(*ast.If); dangling {
			then = "(" + then + ")"
		}
		return fmt.Sprintf("if (%s) %s else %s",
			formatExpr(expr.Cond, depth, precRequest), then,
			formatExpr(expr.Else, depth, precRequest)), precAssign

	case *ast.While:
		return fmt.Sprintf("while (%s) %s",
			formatExpr(expr.Cond, depth, precRequest),
			formatExpr(expr.Body, depth, precRequest)), precAssign

	case *ast.For:
		return fmt.Sprintf("for (%s in %s) %s", expr.Var,
			formatExpr(expr.Seq, depth, precRequest),
			formatExpr(expr.Body, depth, precRequest)), precAssign

	case *ast.Assign:
		arrow := " <- "
		if expr.Special {
			arrow = " <<- "
		}
		return expr.Target.Name + arrow + formatExpr(expr.Value, depth, precAssign), precAssign

	case *ast.FuncLit:
		formals := make([]string, len(expr.Formals))
		for i, f := range expr.Formals {
			formals[i] = f.Name
			if f.Default != nil {
				formals[i] += " = " + formatExpr(f.Default, depth, precAssign)
			}
		}
		return fmt.Sprintf("function(%s) %s", strings.Join(formals, ", "),
			formatExpr(expr.Body, depth, precRequest)), precAssign

	case *ast.Call:
		args := make([]string, len(expr.Args))
		for i, a := range expr.Args {
			v := formatExpr(a.Value, depth, precRequest)
			if a.Name != "" {
				v = formatName(a.Name) + " = " + v
			}
			args[i] = v
		}
		return formatExpr(expr.Callee, depth, precPostfix) + "(" + strings.Join(args, ", ") + ")", precPostfix

	case *ast.Quote:
		return "quote(" + formatExpr(expr.Body, depth, precRequest) + ")", precPostfix

	case *ast.Request:
		return formatExpr(expr.Peer, depth, precOr) + " ? " +
			formatExpr(expr.Body, depth, precRequest), precRequest
	}
	return "", precPrimary
}

func formatBlock(exprs []ast.Expr, depth int) string {
	if len(exprs) == 0 {
		return "{}"
	}
	inner := strings.Repeat(indent, depth+1)
	lines := make([]string, len(exprs))
	for i, e := range exprs {
		lines[i] = inner + formatExpr(e, depth+1, precRequest)
	}
	return "{\n" + strings.Join(lines, "\n") + "\n" + strings.Repeat(indent, depth) + "}"
}

// formatNumber prints the shortest representation that reads back exactly.
func formatNumber(value float64) string {
	switch {
	case math.IsInf(value, 1):
		return "1/0"
	case math.IsInf(value, -1):
		return "-1/0"
	case math.IsNaN(value):
		return "0/0"
	}
	return strconv.FormatFloat(value, 'g', -1, 64)
}

func formatName(name string) string {
	if isIdent(name) {
		return name
	}
	return quoteString(name)
}

func isIdent(name string) bool {
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if !(ch == '.' || ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')) {
			return false
		}
	}
	switch name {
	case "function", "if", "else", "while", "for", "in", "TRUE", "FALSE", "NULL", "...":
		return false
	}
	return true
}

// quoteString writes only the escapes the lexer understands.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			b.WriteString(`\0`)
		default:
			if r < 0x10000 && !unicode.IsPrint(r) {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
