package evaluator

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
)

// Status is the result of one Run of a state.
type Status int

const (
	StatusDone Status = iota
	StatusParked
	StatusFailed
	StatusQuit
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusParked:
		return "parked"
	case StatusFailed:
		return "failed"
	case StatusQuit:
		return "quit"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Outcome reports how a Run ended.
type Outcome struct {
	Status       Status
	Value        Value
	Visible      bool // the value should be echoed
	SilentAssign bool // the last operation was a silent assignment
	Err          *EvalError
	Waiting      *Future // the future a parked state waits on
	Steps        int
	Elapsed      time.Duration
}

// State is one interpretation state: a top-level request under evaluation
// with its own continuation arena and frame stack.
type State struct {
	ID         uint64
	OnBehalfOf uint64
	ReplyTo    string // connection id to answer, empty for local states
	Expr       ast.Expr
	Source     string
	Working    *Frame
	Futures    map[uint64]*Future
	Result     Value
	Created    time.Time
	Touched    time.Time

	k       ContID
	frames  []*Frame
	arena   arena
	lowered map[ast.Expr]*lowering
	temps   int
	tempIn  map[*Frame]struct{} // frames holding this state's temps
	use     usage
	waiting *Future
	started bool
	done    bool

	visible      bool
	silentAssign bool
}

// NewState creates a state that evaluates expr in working. The result
// becomes working's .Last.value.
func (m *Machine) NewState(id uint64, expr ast.Expr, working *Frame) *State {
	now := m.opts.Now()
	st := &State{
		ID:      id,
		Expr:    expr,
		Working: working,
		Futures: make(map[uint64]*Future),
		Created: now,
		Touched: now,
		lowered: make(map[ast.Expr]*lowering),
	}
	final := st.arena.alloc(cont{frame: working, slot: -1})
	st.k = st.arena.alloc(cont{control: expr, frame: working, next: final, slot: -1})
	return st
}

// Done reports whether the state has finished.
func (st *State) Done() bool { return st.done }

// Waiting returns the future a parked state is waiting on.
func (st *State) Waiting() *Future { return st.waiting }

// Depth returns the number of frames on the state's frame stack.
func (st *State) Depth() int { return len(st.frames) }

func (st *State) push(f *Frame) {
	st.frames = append(st.frames, f)
}

func (st *State) top() *Frame {
	if len(st.frames) == 0 {
		return nil
	}
	return st.frames[len(st.frames)-1]
}

func (st *State) pop() *Frame {
	f := st.top()
	if f != nil {
		st.frames = st.frames[:len(st.frames)-1]
		f.clear()
		if _, ok := st.tempIn[f]; ok {
			f.dropTemps(st.tempPrefix())
			delete(st.tempIn, f)
		}
		if f.Kind == FrameClosure || f.Kind == FrameNative {
			st.use.Depth--
		}
	}
	return f
}

// newTemp names a transient binding private to st. Parked states may share
// a working frame, so the name carries the state id.
func (st *State) newTemp() string {
	st.temps++
	return st.tempPrefix() + strconv.Itoa(st.temps)
}

func (st *State) tempPrefix() string {
	return "*" + strconv.FormatUint(st.ID, 10) + "."
}

// noteTemp records that f holds a temp of st.
func (st *State) noteTemp(f *Frame) {
	if st.tempIn == nil {
		st.tempIn = make(map[*Frame]struct{})
	}
	st.tempIn[f] = struct{}{}
}

// teardown clears every frame, removes the state's temps and releases the
// arena.
func (st *State) teardown() {
	for len(st.frames) > 0 {
		st.pop()
	}
	prefix := st.tempPrefix()
	for f := range st.tempIn {
		f.dropTemps(prefix)
	}
	st.tempIn = nil
	st.use.Depth = 0
	st.k = ContID{}
	st.arena.reset()
	st.lowered = nil
	st.done = true
}

// Run drives st until its continuation chain is exhausted, it fails
// terminally, or it uses an unresolved future. A parked state is resumed by
// calling Run again.
func (m *Machine) Run(st *State) Outcome {
	start := hiresNow()
	if st.done {
		return Outcome{Status: StatusDone, Value: st.Result, Visible: st.visible, SilentAssign: st.silentAssign}
	}
	st.Touched = m.opts.Now()
	if !st.started {
		st.started = true
		m.emit(st, TraceStateStart, spanOf(st.Expr), nil)
	} else {
		m.emit(st, TraceStateResume, nil, nil)
	}
	st.waiting = nil

	for !st.k.Nil() {
		if m.interrupted.Swap(false) {
			return m.fail(st, &EvalError{Code: diagnostics.EInterrupted, Message: "interrupted"}, start)
		}
		if limit := m.opts.Limits.MaxSteps; limit > 0 && st.use.Steps >= limit {
			return m.fail(st, evalErrorf(diagnostics.EBudget, nil, "step budget of %d exceeded", limit), start)
		}
		st.use.Steps++

		next, err := m.step(st, st.k)
		if err == nil {
			st.k = next
			if st.arena.needsCompaction() {
				st.arena.compact([]ContID{st.k}, st.frames)
			}
			continue
		}

		if errors.Is(err, ErrQuit) {
			st.teardown()
			m.emit(st, TraceStateEnd, nil, map[string]string{"status": StatusQuit.String()})
			return Outcome{Status: StatusQuit, Steps: st.use.Steps, Elapsed: hiresSince(start)}
		}
		if f, ok := WaitingOn(err); ok {
			st.waiting = f
			m.emit(st, TraceStatePark, nil, map[string]string{"future": strconv.FormatUint(f.ID, 10)})
			return Outcome{Status: StatusParked, Waiting: f, Steps: st.use.Steps, Elapsed: hiresSince(start)}
		}

		ee := asEvalError(err, m.spanAt(st, st.k))
		st.Working.Add(".Last.error", NewString(ee.Message))
		if esc, ok := m.escape(st); ok {
			m.emit(st, TraceEscape, ee.Span, map[string]string{"code": ee.Code, "message": ee.Message})
			st.k = esc
			continue
		}
		return m.fail(st, ee, start)
	}

	st.teardown()
	m.emit(st, TraceStateEnd, nil, map[string]string{"status": StatusDone.String()})
	return Outcome{
		Status:       StatusDone,
		Value:        st.Result,
		Visible:      st.visible,
		SilentAssign: st.silentAssign,
		Steps:        st.use.Steps,
		Elapsed:      hiresSince(start),
	}
}

func (m *Machine) fail(st *State, ee *EvalError, start int64) Outcome {
	st.teardown()
	m.emit(st, TraceStateEnd, ee.Span, map[string]string{"status": StatusFailed.String(), "code": ee.Code})
	return Outcome{Status: StatusFailed, Err: ee, Steps: st.use.Steps, Elapsed: hiresSince(start)}
}

// Abandon tears down a state that will never be resumed.
func (m *Machine) Abandon(st *State) {
	if st.done {
		return
	}
	st.teardown()
	m.emit(st, TraceStateEnd, nil, map[string]string{"status": "abandoned"})
}

// escape finds the nearest frame on the stack with an escape continuation,
// pops and clears the frames above it, and returns the continuation.
func (m *Machine) escape(st *State) (ContID, bool) {
	for i := len(st.frames) - 1; i >= 0; i-- {
		t := st.frames[i].TrueFrame()
		if t == nil || !st.arena.valid(t.escape) {
			continue
		}
		j := i
		for j >= 0 && st.frames[j] != t {
			j--
		}
		if j < 0 {
			continue
		}
		for len(st.frames) > j+1 {
			st.pop()
		}
		esc := t.escape
		t.escape = ContID{}
		return esc, true
	}
	return ContID{}, false
}

func (m *Machine) spanAt(st *State, id ContID) *ast.Span {
	if !st.arena.valid(id) {
		return nil
	}
	k := st.arena.get(id)
	if k.invoke != nil {
		sp := k.invoke.span
		return &sp
	}
	return spanOf(k.control)
}

// spanOf returns the span of e, or nil when e has no position, as for
// nodes made up by the machine.
func spanOf(e ast.Expr) *ast.Span {
	if e == nil {
		return nil
	}
	sp := e.NodeSpan()
	if sp.StartLine == 0 {
		return nil
	}
	return &sp
}

func (st *State) String() string {
	return fmt.Sprintf("state %d (%d frames, %d continuations)", st.ID, len(st.frames), st.arena.live)
}
