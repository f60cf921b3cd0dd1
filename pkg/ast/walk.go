package ast

// Walk calls fn for e and every expression beneath it, depth first.
// Returning false from fn skips the children of that node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Unary:
		Walk(n.Operand, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Seq:
		for _, x := range n.Exprs {
			Walk(x, fn)
		}
	case *If:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *While:
		Walk(n.Cond, fn)
		Walk(n.Body, fn)
	case *For:
		Walk(n.Seq, fn)
		Walk(n.Body, fn)
	case *Assign:
		Walk(n.Target, fn)
		Walk(n.Value, fn)
	case *FuncLit:
		for _, f := range n.Formals {
			Walk(f.Default, fn)
		}
		Walk(n.Body, fn)
	case *Call:
		Walk(n.Callee, fn)
		for _, a := range n.Args {
			Walk(a.Value, fn)
		}
	case *Quote:
		Walk(n.Body, fn)
	case *Request:
		Walk(n.Peer, fn)
		Walk(n.Body, fn)
	}
}

// BoundVars returns the distinct names of the $-marked variables in e, in
// order of first appearance. Nested requests keep their own bindings and are
// not descended into.
func BoundVars(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(e, func(x Expr) bool {
		switch n := x.(type) {
		case *BoundVar:
			if !seen[n.Name] {
				seen[n.Name] = true
				names = append(names, n.Name)
			}
		case *Request:
			if x != e {
				Walk(n.Peer, func(p Expr) bool {
					if b, ok := p.(*BoundVar); ok && !seen[b.Name] {
						seen[b.Name] = true
						names = append(names, b.Name)
					}
					return true
				})
				return false
			}
		}
		return true
	})
	return names
}
