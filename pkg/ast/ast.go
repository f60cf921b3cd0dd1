// Package ast defines the expression tree evaluated by the chrono runtime.
package ast

// Span represents a source location range.
type Span struct {
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
}

// Node is the interface implemented by all tree nodes.
type Node interface {
	Kind() string
	NodeSpan() Span
}

// BinaryOp represents a binary operator.
type BinaryOp string

const (
	OpAdd   BinaryOp = "+"
	OpSub   BinaryOp = "-"
	OpMul   BinaryOp = "*"
	OpDiv   BinaryOp = "/"
	OpMod   BinaryOp = "%%"
	OpPow   BinaryOp = "^"
	OpGt    BinaryOp = ">"
	OpLt    BinaryOp = "<"
	OpGtEq  BinaryOp = ">="
	OpLtEq  BinaryOp = "<="
	OpEqEq  BinaryOp = "=="
	OpNeq   BinaryOp = "!="
	OpAnd   BinaryOp = "&"
	OpOr    BinaryOp = "|"
	OpIndex BinaryOp = "["
)

// UnaryOp represents a unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "!"
	// OpLength is produced only by lowering, never by the parser.
	OpLength UnaryOp = "length"
)

// Expr is the interface for all expression nodes.
type Expr interface {
	Node
	exprNode() // sealed marker
}

// --- Literals ---

type NumLit struct {
	Span  Span
	Value float64
}

func (n *NumLit) Kind() string   { return "NumLit" }
func (n *NumLit) NodeSpan() Span { return n.Span }
func (n *NumLit) exprNode()      {}

type StrLit struct {
	Span  Span
	Value string
}

func (n *StrLit) Kind() string   { return "StrLit" }
func (n *StrLit) NodeSpan() Span { return n.Span }
func (n *StrLit) exprNode()      {}

type BoolLit struct {
	Span  Span
	Value bool
}

func (n *BoolLit) Kind() string   { return "BoolLit" }
func (n *BoolLit) NodeSpan() Span { return n.Span }
func (n *BoolLit) exprNode()      {}

type NullLit struct {
	Span Span
}

func (n *NullLit) Kind() string   { return "NullLit" }
func (n *NullLit) NodeSpan() Span { return n.Span }
func (n *NullLit) exprNode()      {}

// --- References ---

// Symbol is a plain variable reference. The name "..." refers to the
// ellipsis arguments of the enclosing closure invocation.
type Symbol struct {
	Span Span
	Name string
}

func (n *Symbol) Kind() string   { return "Symbol" }
func (n *Symbol) NodeSpan() Span { return n.Span }
func (n *Symbol) exprNode()      {}

// BoundVar is an explicitly marked free variable ($name). Inside a request
// expression its value is captured from the issuing frame and shipped with
// the request.
type BoundVar struct {
	Span Span
	Name string
}

func (n *BoundVar) Kind() string   { return "BoundVar" }
func (n *BoundVar) NodeSpan() Span { return n.Span }
func (n *BoundVar) exprNode()      {}

// --- Operators ---

type Unary struct {
	Span    Span
	Op      UnaryOp
	Operand Expr
}

func (n *Unary) Kind() string   { return "Unary" }
func (n *Unary) NodeSpan() Span { return n.Span }
func (n *Unary) exprNode()      {}

type Binary struct {
	Span  Span
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *Binary) Kind() string   { return "Binary" }
func (n *Binary) NodeSpan() Span { return n.Span }
func (n *Binary) exprNode()      {}

// --- Sequencing and control ---

// Seq evaluates its elements left to right; its value is the last one's.
type Seq struct {
	Span  Span
	Exprs []Expr
}

func (n *Seq) Kind() string   { return "Seq" }
func (n *Seq) NodeSpan() Span { return n.Span }
func (n *Seq) exprNode()      {}

type If struct {
	Span Span
	Cond Expr
	Then Expr
	Else Expr // nil when absent
}

func (n *If) Kind() string   { return "If" }
func (n *If) NodeSpan() Span { return n.Span }
func (n *If) exprNode()      {}

type While struct {
	Span Span
	Cond Expr
	Body Expr
}

func (n *While) Kind() string   { return "While" }
func (n *While) NodeSpan() Span { return n.Span }
func (n *While) exprNode()      {}

type For struct {
	Span Span
	Var  string
	Seq  Expr
	Body Expr
}

func (n *For) Kind() string   { return "For" }
func (n *For) NodeSpan() Span { return n.Span }
func (n *For) exprNode()      {}

// Assign binds Value to Target. Special assignments (<<-) rebind the
// nearest existing binding above the current frame.
type Assign struct {
	Span    Span
	Target  *Symbol
	Value   Expr
	Special bool
}

func (n *Assign) Kind() string   { return "Assign" }
func (n *Assign) NodeSpan() Span { return n.Span }
func (n *Assign) exprNode()      {}

// --- Functions ---

// Formal is one formal parameter. Ellipsis formals have Name "...".
type Formal struct {
	Span    Span
	Name    string
	Default Expr // nil when absent
}

// IsEllipsis reports whether the formal collects unmatched actuals.
func (f *Formal) IsEllipsis() bool { return f.Name == "..." }

type FuncLit struct {
	Span    Span
	Formals []*Formal
	Body    Expr
}

func (n *FuncLit) Kind() string   { return "FuncLit" }
func (n *FuncLit) NodeSpan() Span { return n.Span }
func (n *FuncLit) exprNode()      {}

// Arg is one actual argument, positional when Name is empty.
type Arg struct {
	Span  Span
	Name  string
	Value Expr
}

type Call struct {
	Span   Span
	Callee Expr
	Args   []*Arg
}

func (n *Call) Kind() string   { return "Call" }
func (n *Call) NodeSpan() Span { return n.Span }
func (n *Call) exprNode()      {}

// Quote wraps code that is evaluated in the frame it appears in.
type Quote struct {
	Span Span
	Body Expr
}

func (n *Quote) Kind() string   { return "Quote" }
func (n *Quote) NodeSpan() Span { return n.Span }
func (n *Quote) exprNode()      {}

// Request evaluates Body on the peer reached through Peer (peer ? body).
type Request struct {
	Span Span
	Peer Expr
	Body Expr
}

func (n *Request) Kind() string   { return "Request" }
func (n *Request) NodeSpan() Span { return n.Span }
func (n *Request) exprNode()      {}
