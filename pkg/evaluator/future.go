package evaluator

import (
	"code.hybscloud.com/kont"

	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

type slotKind int

const (
	slotNone slotKind = iota
	slotName
	slotArg
	slotEllipsis
)

// slot locates the binding that holds a future.
type slot struct {
	kind  slotKind
	frame *Frame
	name  string
	pos   int
}

// Future is a value pending on a remote computation.
type Future struct {
	ID   uint64 // request id
	Peer string // connection id the request went to

	done   bool
	val    Value
	failed *ErrorValue
	slot   slot
	once   *kont.Affine[bool, Value]
}

func (*Future) value() {}

// NewFuture creates an unresolved future for request id sent to peer.
func NewFuture(id uint64, peer string) *Future {
	f := &Future{ID: id, Peer: peer}
	f.once = kont.Once(func(v Value) bool {
		f.done = true
		if ev, ok := v.(ErrorValue); ok {
			f.failed = &ev
			return true
		}
		f.val = v
		f.writeSlot()
		return true
	})
	return f
}

// Resolve delivers the result. An ErrorValue marks the future as failed.
// Only the first call has an effect; it reports whether it was the first.
func (f *Future) Resolve(v Value) bool {
	_, ok := f.once.TryResume(v)
	return ok
}

// Result returns the delivered value once resolved successfully.
func (f *Future) Result() (Value, bool) {
	if !f.done || f.failed != nil {
		return nil, false
	}
	return f.val, true
}

// Done reports whether the future has been resolved.
func (f *Future) Done() bool { return f.done }

// Failure returns the error a failed future was resolved with.
func (f *Future) Failure() (ErrorValue, bool) {
	if f.failed == nil {
		return ErrorValue{}, false
	}
	return *f.failed, true
}

// bindTo points the result slot at the binding that now holds f.
func (f *Future) bindTo(s slot) {
	f.slot = s
}

// writeSlot replaces the binding with the value if it still holds f.
func (f *Future) writeSlot() {
	s := f.slot
	if s.frame == nil {
		return
	}
	switch s.kind {
	case slotName:
		if cur, ok := s.frame.lookupLocal(s.name); ok && cur == Value(f) {
			s.frame.Add(s.name, f.val)
		}
	case slotArg:
		if s.pos < len(s.frame.args) && s.frame.args[s.pos] == Value(f) {
			s.frame.args[s.pos] = f.val
		}
	case slotEllipsis:
		if s.pos < len(s.frame.ellipsis) && s.frame.ellipsis[s.pos].Value == Value(f) {
			s.frame.ellipsis[s.pos].Value = f.val
		}
	}
}

// force returns the value behind v, raising when v is a future that is
// pending or failed.
func force(v Value) (Value, error) {
	f, ok := v.(*Future)
	if !ok {
		return v, nil
	}
	if !f.done {
		return nil, &notReadyError{future: f}
	}
	if f.failed != nil {
		return nil, &EvalError{Code: remoteCode(f.failed.Code), Message: f.failed.Message}
	}
	return f.val, nil
}

func remoteCode(code string) string {
	if code == "" {
		return diagnostics.ERemote
	}
	return code
}
