package evaluator

import (
	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// argStep evaluates expr in frame and delivers the value to bind.
type argStep struct {
	expr  ast.Expr
	frame *Frame
	bind  cont
}

// chain builds the evaluate/bind pairs for steps ahead of head, so they
// run in order.
func chain(st *State, steps []argStep, head ContID) ContID {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		s.bind.next = head
		b := st.arena.alloc(s.bind)
		head = st.arena.alloc(cont{control: s.expr, frame: s.frame, next: b, flags: AssignSilent, slot: -1})
	}
	return head
}

func (m *Machine) call(st *State, n *ast.Call, k cont) (ContID, error) {
	var fn Value
	switch callee := n.Callee.(type) {
	case *ast.FuncLit:
		fn = &Closure{Fn: callee, Env: k.frame}
	case *ast.Symbol:
		v, ok := k.frame.FindFunc(callee.Name)
		if !ok {
			return ContID{}, notCallable(k.frame, callee)
		}
		fn = v
	}

	if st.use.Depth >= m.opts.Limits.depth() {
		return ContID{}, evalErrorf(diagnostics.EDepth, &n.Span,
			"evaluation nested too deeply: infinite recursion?")
	}
	switch f := fn.(type) {
	case *Closure:
		return m.callClosure(st, n, f, k)
	case *Builtin:
		return m.callNative(st, n, f, k)
	}
	return ContID{}, evalErrorf(diagnostics.ENotFunction, &n.Span, "attempt to apply non-function")
}

func notCallable(frame *Frame, sym *ast.Symbol) error {
	v, ok := frame.Find(sym.Name)
	if !ok {
		return evalErrorf(diagnostics.EUnbound, &sym.Span, "could not find function \"%s\"", sym.Name)
	}
	if f, isFut := v.(*Future); isFut && !f.Done() {
		return &notReadyError{future: f}
	}
	return evalErrorf(diagnostics.ENotFunction, &sym.Span, "attempt to apply non-function")
}

func calleeName(n *ast.Call, fallback string) string {
	if sym, ok := n.Callee.(*ast.Symbol); ok && !IsTransient(sym.Name) {
		return sym.Name
	}
	return fallback
}

func (m *Machine) callClosure(st *State, n *ast.Call, fn *Closure, k cont) (ContID, error) {
	actuals, err := expandActuals(n.Args, k.frame, n.Span)
	if err != nil {
		return ContID{}, err
	}
	formals := fn.Fn.Formals
	plan, err := matchArgs(formalNames(fn.Fn), actuals, n.Span)
	if err != nil {
		return ContID{}, err
	}

	for i, f := range formals {
		if plan.formals[i] < 0 && !f.IsEllipsis() && f.Default == nil {
			return ContID{}, missingArgument(f.Name, n.Span)
		}
	}

	name := calleeName(n, fn.Name)
	c := newClosureFrame(name, fn.Env)
	for _, f := range formals {
		if f.IsEllipsis() {
			c.hasDots = true
		}
	}
	c.ellipsis = make([]EllipsisArg, len(plan.dots))
	dotsAt := make(map[int]int, len(plan.dots))
	for j, ai := range plan.dots {
		dotsAt[ai] = j
		c.ellipsis[j].Name = actuals[ai].name
		c.ellipsis[j].ByRef = actuals[ai].byRef
	}
	formalAt := make(map[int]int, len(formals))
	for fi, ai := range plan.formals {
		if ai >= 0 {
			formalAt[ai] = fi
		}
	}

	var steps []argStep
	for ai, a := range actuals {
		var flags Flags = AssignFuncArg
		if a.byRef {
			flags |= AssignByRef
		}
		bind := cont{frame: c, slot: -1}
		if fi, ok := formalAt[ai]; ok {
			sym := &ast.Symbol{Span: a.span, Name: formals[fi].Name}
			if a.evaluated {
				c.Add(sym.Name, a.value)
				bindFuture(a.value, slot{kind: slotName, frame: c, name: sym.Name})
				continue
			}
			bind.target, bind.flags = sym, flags|AssignLocal
		} else {
			j := dotsAt[ai]
			if a.evaluated {
				c.ellipsis[j].Value = a.value
				bindFuture(a.value, slot{kind: slotEllipsis, frame: c, pos: j})
				continue
			}
			bind.slot, bind.flags = j, flags|AssignEllipsis
		}
		steps = append(steps, argStep{expr: a.expr, frame: k.frame, bind: bind})
	}
	for fi, f := range formals {
		if plan.formals[fi] >= 0 || f.IsEllipsis() || f.Default == nil {
			continue
		}
		sym := &ast.Symbol{Span: f.Span, Name: f.Name}
		steps = append(steps, argStep{expr: f.Default, frame: c, bind: cont{target: sym, frame: c, flags: AssignLocal | AssignFuncArg, slot: -1}})
	}

	st.push(c)
	st.use.Depth++
	m.emit(st, TraceInvokeStart, &n.Span, map[string]string{"name": name, "kind": "closure"})

	end := st.arena.alloc(cont{frame: c, next: k.next, flags: AssignEndInvocation, slot: -1})
	body := st.arena.alloc(cont{control: fn.Fn.Body, frame: c, next: end, slot: -1})
	return chain(st, steps, body), nil
}

func (m *Machine) callNative(st *State, n *ast.Call, b *Builtin, k cont) (ContID, error) {
	actuals, err := expandActuals(n.Args, k.frame, n.Span)
	if err != nil {
		return ContID{}, err
	}
	plan, err := matchArgs(b.paramNames(), actuals, n.Span)
	if err != nil {
		return ContID{}, err
	}

	nf := newNativeFrame(b, k.frame)
	for i, p := range b.Params {
		if p.Name == "..." || plan.formals[i] >= 0 {
			continue
		}
		switch {
		case p.Default != nil:
			nf.args[i] = p.Default
		case !p.Optional:
			return ContID{}, missingArgument(p.Name, n.Span)
		}
	}

	nf.ellipsis = make([]EllipsisArg, len(plan.dots))
	dotsAt := make(map[int]int, len(plan.dots))
	for j, ai := range plan.dots {
		dotsAt[ai] = j
		nf.ellipsis[j].Name = actuals[ai].name
		nf.ellipsis[j].ByRef = actuals[ai].byRef
	}
	formalAt := make(map[int]int, len(b.Params))
	for fi, ai := range plan.formals {
		if ai >= 0 {
			formalAt[ai] = fi
		}
	}

	var steps []argStep
	for ai, a := range actuals {
		var flags Flags = AssignFuncArg
		if a.byRef {
			flags |= AssignByRef
		}
		if fi, ok := formalAt[ai]; ok {
			switch {
			case b.Params[fi].Lazy && a.evaluated:
				nf.args[fi] = a.value
			case b.Params[fi].Lazy:
				nf.args[fi] = Language{Expr: a.expr, Frame: k.frame}
			case a.evaluated:
				nf.args[fi] = a.value
				bindFuture(a.value, slot{kind: slotArg, frame: nf, pos: fi})
			default:
				steps = append(steps, argStep{expr: a.expr, frame: k.frame, bind: cont{frame: nf, flags: flags, slot: fi}})
			}
			continue
		}
		j := dotsAt[ai]
		if a.evaluated {
			nf.ellipsis[j].Value = a.value
			bindFuture(a.value, slot{kind: slotEllipsis, frame: nf, pos: j})
			continue
		}
		steps = append(steps, argStep{expr: a.expr, frame: k.frame, bind: cont{frame: nf, flags: flags | AssignEllipsis, slot: j}})
	}

	st.push(nf)
	st.use.Depth++
	m.emit(st, TraceInvokeStart, &n.Span, map[string]string{"name": b.Name, "kind": "builtin"})

	end := st.arena.alloc(cont{frame: nf, next: k.next, flags: AssignEndInvocation, slot: -1})
	inv := &invocation{builtin: b, caller: k.frame, span: n.Span}
	head := st.arena.alloc(cont{invoke: inv, frame: nf, next: end, slot: -1})
	return chain(st, steps, head), nil
}

func bindFuture(v Value, s slot) {
	if f, ok := v.(*Future); ok {
		f.bindTo(s)
	}
}

// invoke runs a native function once its arguments are bound.
func (m *Machine) invoke(st *State, k cont) (ContID, error) {
	inv := k.invoke
	b := inv.builtin
	nf := k.frame
	for i, p := range b.Params {
		if p.Name == "..." {
			if p.Futures {
				continue
			}
			for j, e := range nf.ellipsis {
				v, err := force(e.Value)
				if err != nil {
					return ContID{}, err
				}
				nf.ellipsis[j].Value = v
			}
			continue
		}
		v := nf.args[i]
		if v == nil || p.Lazy {
			continue
		}
		if !p.Futures {
			fv, err := force(v)
			if err != nil {
				return ContID{}, err
			}
			nf.args[i], v = fv, fv
		}
		if p.Accept != 0 && KindOf(v)&p.Accept == 0 {
			return ContID{}, typeError(b.Name, p.Name, p.Accept, v, inv.span)
		}
	}

	sp := inv.span
	c := &Call{Name: b.Name, Span: &sp, Frame: nf, Caller: inv.caller, State: st, m: m, next: k.next}
	st.visible = true
	st.silentAssign = false
	v, err := b.Fn(c)
	if err != nil {
		return ContID{}, err
	}
	if c.tail != nil {
		next := k.next
		if c.tail.force {
			next = st.arena.alloc(cont{frame: c.tail.frame, next: next, flags: forceValue, slot: -1})
		}
		return st.arena.alloc(cont{control: c.tail.expr, frame: c.tail.frame, next: next, slot: -1}), nil
	}
	if v == nil {
		v = Null{}
	}
	return m.apply(st, v, k.next)
}
