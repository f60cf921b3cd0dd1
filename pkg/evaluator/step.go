package evaluator

import (
	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// step performs one unit of work on continuation id and returns the
// continuation to run next. A step that fails leaves the state as it was
// before the failing evaluation, so a parked state can step it again.
func (m *Machine) step(st *State, id ContID) (ContID, error) {
	k := st.arena.get(id)
	if k.invoke != nil {
		return m.invoke(st, k)
	}

	switch n := k.control.(type) {
	case *ast.Assign:
		flags := AssignLocal | AssignSilent
		if n.Special {
			flags = AssignSpecial | AssignSilent
		}
		tgt := st.arena.alloc(cont{target: n.Target, frame: k.frame, next: k.next, flags: flags, slot: -1})
		return st.arena.alloc(cont{control: n.Value, frame: k.frame, next: tgt, slot: -1}), nil

	case *ast.Seq:
		if len(n.Exprs) == 0 {
			st.visible = true
			return m.apply(st, Null{}, k.next)
		}
		next := k.next
		for i := len(n.Exprs) - 1; i >= 1; i-- {
			next = st.arena.alloc(cont{control: n.Exprs[i], frame: k.frame, next: next, flags: AssignSilent, slot: -1})
		}
		return st.arena.alloc(cont{control: n.Exprs[0], frame: k.frame, next: next, slot: -1}), nil

	case *ast.Quote:
		return st.arena.alloc(cont{control: n.Body, frame: k.frame, next: k.next, slot: -1}), nil

	case *ast.If:
		if isOperand(n.Cond) {
			v, err := m.evalOperand(st, n.Cond, k.frame)
			if err != nil {
				return ContID{}, err
			}
			b, err := truthy(v, spanOf(n.Cond))
			if err != nil {
				return ContID{}, err
			}
			return m.branch(st, n, b, k.frame, k.next)
		}
		kb := st.arena.alloc(cont{branch: n, frame: k.frame, next: k.next, slot: -1})
		return st.arena.alloc(cont{control: n.Cond, frame: k.frame, next: kb, slot: -1}), nil

	case *ast.While:
		s := NewShadowFrame("while", k.frame)
		st.push(s)
		back := st.arena.alloc(cont{frame: s, flags: AssignWhileBack, slot: -1})
		decide := st.arena.alloc(cont{control: n.Body, frame: s, next: back, flags: AssignWhileCond, slot: -1})
		kc := st.arena.alloc(cont{control: n.Cond, frame: s, next: decide, slot: -1})
		s.begin = kc
		s.current = k.next
		return kc, nil

	case *ast.For:
		return st.arena.alloc(cont{control: m.lowerFor(st, n), frame: k.frame, next: k.next, flags: AssignSilent, slot: -1}), nil

	case *ast.Request:
		if !isOperand(n.Peer) {
			return m.lowered(st, k)
		}
		return m.request(st, n, k)

	case *ast.Call:
		switch n.Callee.(type) {
		case *ast.Symbol, *ast.FuncLit:
			return m.call(st, n, k)
		}
		return m.lowered(st, k)

	case *ast.Unary:
		if !isOperand(n.Operand) {
			return m.lowered(st, k)
		}
	case *ast.Binary:
		if !isOperand(n.Left) || !isOperand(n.Right) {
			return m.lowered(st, k)
		}
	}

	v, err := m.evalAtomic(st, k.control, k.frame)
	if err != nil {
		return ContID{}, err
	}
	if k.flags&(forceValue|resumeValue) != 0 {
		if v, err = force(v); err != nil {
			return ContID{}, err
		}
	}
	if k.flags&resumeValue == 0 {
		st.visible = true
		st.silentAssign = false
	}
	return m.apply(st, v, k.next)
}

func (m *Machine) branch(st *State, n *ast.If, cond bool, frame *Frame, next ContID) (ContID, error) {
	switch {
	case cond:
		return st.arena.alloc(cont{control: n.Then, frame: frame, next: next, slot: -1}), nil
	case n.Else != nil:
		return st.arena.alloc(cont{control: n.Else, frame: frame, next: next, slot: -1}), nil
	}
	st.visible = false
	return m.apply(st, Null{}, next)
}

// isOperand reports whether e can be evaluated without building a chain.
func isOperand(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.NumLit, *ast.StrLit, *ast.BoolLit, *ast.NullLit, *ast.Symbol, *ast.BoundVar:
		return true
	case *ast.Unary:
		return isOperand(n.Operand)
	case *ast.Binary:
		return isOperand(n.Left) && isOperand(n.Right)
	}
	return false
}

func isLiteral(e ast.Expr) bool {
	switch e.(type) {
	case *ast.NumLit, *ast.StrLit, *ast.BoolLit, *ast.NullLit:
		return true
	}
	return false
}

// evalAtomic evaluates an atomic node directly.
func (m *Machine) evalAtomic(st *State, e ast.Expr, frame *Frame) (Value, error) {
	switch n := e.(type) {
	case *ast.NumLit:
		return NewNumber(n.Value), nil
	case *ast.StrLit:
		return NewString(n.Value), nil
	case *ast.BoolLit:
		return NewBool(n.Value), nil
	case *ast.NullLit:
		return Null{}, nil
	case *ast.Symbol:
		return lookup(frame, n.Name, n.Span)
	case *ast.BoundVar:
		return lookup(frame, n.Name, n.Span)
	case *ast.FuncLit:
		return &Closure{Fn: n, Env: frame}, nil
	case *ast.Unary:
		v, err := m.evalOperand(st, n.Operand, frame)
		if err != nil {
			return nil, err
		}
		return unaryOp(n.Op, v, n.Span)
	case *ast.Binary:
		l, err := m.evalOperand(st, n.Left, frame)
		if err != nil {
			return nil, err
		}
		r, err := m.evalOperand(st, n.Right, frame)
		if err != nil {
			return nil, err
		}
		return binaryOp(n.Op, l, r, n.Span)
	}
	sp := e.NodeSpan()
	return nil, evalErrorf(diagnostics.EType, &sp, "cannot evaluate %s directly", e.Kind())
}

// evalOperand evaluates an operand whose value is used, forcing futures.
func (m *Machine) evalOperand(st *State, e ast.Expr, frame *Frame) (Value, error) {
	v, err := m.evalAtomic(st, e, frame)
	if err != nil {
		return nil, err
	}
	return force(v)
}

func lookup(frame *Frame, name string, span ast.Span) (Value, error) {
	if name == "..." {
		return nil, evalErrorf(diagnostics.EUnbound, &span, "'...' used in an incorrect context")
	}
	v, ok := frame.Find(name)
	if !ok {
		return nil, evalErrorf(diagnostics.EUnbound, &span, "object '%s' not found", name)
	}
	if f, isFut := v.(*Future); isFut {
		if r, done := f.Result(); done {
			return r, nil
		}
	}
	return v, nil
}

// await delivers the value of pending future f to k once it resolves.
func (m *Machine) await(st *State, f *Future, frame *Frame, k ContID) ContID {
	name := st.newTemp()
	st.noteTemp(frame.Add(name, f))
	return st.arena.alloc(cont{control: &ast.Symbol{Name: name}, frame: frame, next: k, flags: resumeValue, slot: -1})
}

func (m *Machine) request(st *State, n *ast.Request, k cont) (ContID, error) {
	pv, err := m.evalOperand(st, n.Peer, k.frame)
	if err != nil {
		return ContID{}, err
	}
	conn, ok := pv.(*Connection)
	if !ok {
		sp := n.Peer.NodeSpan()
		return ContID{}, evalErrorf(diagnostics.EType, &sp, "invalid request target: expected connection, got %s", KindOf(pv))
	}

	names := ast.BoundVars(n.Body)
	items := make([]ListItem, 0, len(names))
	for _, name := range names {
		v, ok := k.frame.Find(name)
		if !ok {
			return ContID{}, evalErrorf(diagnostics.EUnbound, &n.Span, "object '%s' not found", name)
		}
		if v, err = force(v); err != nil {
			return ContID{}, err
		}
		if !Transmissible(v) {
			return ContID{}, evalErrorf(diagnostics.ENotTransmissible, &n.Span,
				"cannot send '%s' to a peer: %s values are not transmissible", name, KindOf(v))
		}
		items = append(items, ListItem{Name: name, Value: v})
	}

	if m.opts.Requester == nil {
		return ContID{}, evalErrorf(diagnostics.ERemote, &n.Span, "requests are not available without a transport")
	}
	fut, err := m.opts.Requester.Request(st, conn, n.Body, List{Items: items})
	if err != nil {
		return ContID{}, asEvalError(err, &n.Span)
	}
	st.Futures[fut.ID] = fut
	m.emit(st, TraceRequest, &n.Span, map[string]string{"peer": conn.ID})
	st.visible = true
	st.silentAssign = false
	return m.apply(st, fut, k.next)
}
