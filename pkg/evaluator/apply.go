package evaluator

import (
	"fmt"
)

// apply delivers v to continuation id and returns the next continuation
// that needs a step, or the zero ContID when the chain is exhausted.
func (m *Machine) apply(st *State, v Value, id ContID) (ContID, error) {
	for {
		if id.Nil() {
			// An assigned future stays bound; the response writes its slot.
			if f, ok := v.(*Future); ok && !st.silentAssign {
				rv, err := force(f)
				if err != nil {
					if _, waiting := WaitingOn(err); waiting {
						return m.await(st, f, st.Working, id), nil
					}
					return ContID{}, err
				}
				v = rv
			}
			st.Result = v
			return ContID{}, nil
		}
		k := st.arena.get(id)

		switch {
		case k.flags&AssignEndInvocation != 0:
			if st.top() != k.frame {
				return ContID{}, fmt.Errorf("evaluator: frame %q ended out of order", k.frame.Name)
			}
			st.pop()
			m.emit(st, TraceInvokeEnd, nil, map[string]string{"name": k.frame.Name})
			id = k.next
			continue

		case k.flags&AssignWhileCond != 0:
			cv, err := force(v)
			if err != nil {
				if f, ok := WaitingOn(err); ok {
					return m.await(st, f, k.frame, id), nil
				}
				return ContID{}, err
			}
			b, err := truthy(cv, m.spanAt(st, k.frame.begin))
			if err != nil {
				return ContID{}, err
			}
			if b {
				return id, nil
			}
			exit := k.frame.current
			if st.top() != k.frame {
				return ContID{}, fmt.Errorf("evaluator: loop frame ended out of order")
			}
			st.pop()
			st.visible = false
			v, id = Null{}, exit
			continue

		case k.flags&AssignWhileBack != 0:
			if !st.arena.valid(k.frame.begin) {
				return ContID{}, fmt.Errorf("evaluator: loop frame has no begin continuation")
			}
			return k.frame.begin, nil

		case k.flags&forceValue != 0 && k.control == nil && k.invoke == nil:
			fv, err := force(v)
			if err != nil {
				if f, ok := WaitingOn(err); ok {
					return m.await(st, f, k.frame, k.next), nil
				}
				return ContID{}, err
			}
			v, id = fv, k.next
			continue

		case k.branch != nil:
			cv, err := force(v)
			if err != nil {
				if f, ok := WaitingOn(err); ok {
					return m.await(st, f, k.frame, id), nil
				}
				return ContID{}, err
			}
			b, err := truthy(cv, spanOf(k.branch.Cond))
			if err != nil {
				return ContID{}, err
			}
			return m.branch(st, k.branch, b, k.frame, k.next)
		}

		m.bind(st, v, k)

		if k.control != nil || k.invoke != nil {
			return id, nil
		}
		id = k.next
	}
}

// bind stores v as directed by the flags of k.
func (m *Machine) bind(st *State, v Value, k cont) {
	fut, _ := v.(*Future)
	switch {
	case k.flags&AssignEllipsis != 0:
		t := k.frame.TrueFrame()
		t.ellipsis[k.slot].Value = v
		if fut != nil {
			fut.bindTo(slot{kind: slotEllipsis, frame: t, pos: k.slot})
		}

	case k.slot >= 0:
		k.frame.args[k.slot] = v
		if fut != nil {
			fut.bindTo(slot{kind: slotArg, frame: k.frame, pos: k.slot})
		}

	case k.target != nil:
		name := k.target.Name
		if c, ok := v.(*Closure); ok && c.Name == "" && !IsTransient(name) {
			c.Name = name
		}
		var written *Frame
		if k.flags&AssignSpecial != 0 {
			written = k.frame.AddSpecial(name, v)
		} else {
			written = k.frame.Add(name, v)
		}
		if fut != nil {
			fut.bindTo(slot{kind: slotName, frame: written, name: name})
		}
		if IsTransient(name) {
			st.noteTemp(written)
		}
		if k.flags&AssignSilent != 0 {
			st.visible = false
			st.silentAssign = true
		}

	case k.flags&AssignSilent == 0:
		written := st.Working.Add(".Last.value", v)
		if fut != nil && fut.slot.frame == nil {
			fut.bindTo(slot{kind: slotName, frame: written, name: ".Last.value"})
		}
	}
}
