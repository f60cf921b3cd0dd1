package evaluator

import "github.com/thomasrohde/chrono/pkg/ast"

// lowering is the rewrite of one node: parts are evaluated in order into
// temps, then node is evaluated with the temps in place of the parts.
type lowering struct {
	parts []ast.Expr
	temps []*ast.Symbol
	node  ast.Expr
}

// lowered chains the compound operands of k.control ahead of the node.
// Rewrites are made once per node and state.
func (m *Machine) lowered(st *State, k cont) (ContID, error) {
	low, ok := st.lowered[k.control]
	if !ok {
		low = lower(st, k.control)
		st.lowered[k.control] = low
	}
	n := len(low.parts)
	if n == 0 {
		return st.arena.alloc(cont{control: low.node, frame: k.frame, next: k.next, slot: -1}), nil
	}
	next := st.arena.alloc(cont{target: low.temps[n-1], control: low.node, frame: k.frame, next: k.next, flags: AssignLocal, slot: -1})
	for i := n - 2; i >= 0; i-- {
		next = st.arena.alloc(cont{target: low.temps[i], control: low.parts[i+1], frame: k.frame, next: next, flags: AssignLocal, slot: -1})
	}
	return st.arena.alloc(cont{control: low.parts[0], frame: k.frame, next: next, slot: -1}), nil
}

func lower(st *State, e ast.Expr) *lowering {
	low := &lowering{}
	part := func(x ast.Expr) ast.Expr {
		if isLiteral(x) {
			return x
		}
		sym := &ast.Symbol{Span: x.NodeSpan(), Name: st.newTemp()}
		low.parts = append(low.parts, x)
		low.temps = append(low.temps, sym)
		return sym
	}
	switch n := e.(type) {
	case *ast.Unary:
		low.node = &ast.Unary{Span: n.Span, Op: n.Op, Operand: part(n.Operand)}
	case *ast.Binary:
		left := part(n.Left)
		low.node = &ast.Binary{Span: n.Span, Op: n.Op, Left: left, Right: part(n.Right)}
	case *ast.Request:
		low.node = &ast.Request{Span: n.Span, Peer: part(n.Peer), Body: n.Body}
	case *ast.Call:
		low.node = &ast.Call{Span: n.Span, Callee: part(n.Callee), Args: n.Args}
	default:
		low.node = e
	}
	return low
}

// lowerFor rewrites a for loop as a while loop over transient index and
// sequence bindings:
//
//	*seq <- Seq; *len <- length(*seq); *i <- 0
//	while (*i < *len) { *i <- *i + 1; Var <- *seq[*i]; Body }
func (m *Machine) lowerFor(st *State, n *ast.For) ast.Expr {
	if low, ok := st.lowered[n]; ok {
		return low.node
	}
	sp := n.Span
	sym := func(name string) *ast.Symbol { return &ast.Symbol{Span: sp, Name: name} }
	seq, length, idx := st.newTemp(), st.newTemp(), st.newTemp()

	body := &ast.Seq{Span: n.Body.NodeSpan(), Exprs: []ast.Expr{
		&ast.Assign{Span: sp, Target: sym(idx), Value: &ast.Binary{Span: sp, Op: ast.OpAdd, Left: sym(idx), Right: &ast.NumLit{Span: sp, Value: 1}}},
		&ast.Assign{Span: sp, Target: sym(n.Var), Value: &ast.Binary{Span: sp, Op: ast.OpIndex, Left: sym(seq), Right: sym(idx)}},
		n.Body,
	}}
	out := &ast.Seq{Span: sp, Exprs: []ast.Expr{
		&ast.Assign{Span: sp, Target: sym(seq), Value: n.Seq},
		&ast.Assign{Span: sp, Target: sym(length), Value: &ast.Unary{Span: sp, Op: ast.OpLength, Operand: sym(seq)}},
		&ast.Assign{Span: sp, Target: sym(idx), Value: &ast.NumLit{Span: sp, Value: 0}},
		&ast.While{Span: sp, Cond: &ast.Binary{Span: sp, Op: ast.OpLt, Left: sym(idx), Right: sym(length)}, Body: body},
	}}
	st.lowered[n] = &lowering{node: out}
	return out
}
