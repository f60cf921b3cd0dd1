package evaluator

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/thomasrohde/chrono/pkg/ast"
)

// TraceEventType identifies the type of a trace event.
type TraceEventType string

const (
	TraceStateStart  TraceEventType = "state_start"
	TraceStatePark   TraceEventType = "state_park"
	TraceStateResume TraceEventType = "state_resume"
	TraceStateEnd    TraceEventType = "state_end"
	TraceEscape      TraceEventType = "escape"
	TraceInvokeStart TraceEventType = "invoke_start"
	TraceInvokeEnd   TraceEventType = "invoke_end"
	TraceRequest     TraceEventType = "request"
)

// TraceEvent represents a single trace event emitted during execution.
type TraceEvent struct {
	Timestamp string            `json:"ts"`
	RunID     string            `json:"runId"`
	Event     TraceEventType    `json:"event"`
	State     uint64            `json:"state"`
	Span      *ast.Span         `json:"span,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Requester transmits outbound requests. Request must not block; it returns
// the future that the matching response will resolve.
type Requester interface {
	Request(st *State, conn *Connection, body ast.Expr, bindings List) (*Future, error)
}

// Options configures a Machine.
type Options struct {
	Limits    Limits
	Trace     func(event TraceEvent)
	Requester Requester
	RunID     string
	Now       func() time.Time // stamps states and trace events; time.Now when nil
}

// Machine evaluates interpretation states against one root frame. It is not
// safe for concurrent use, except for Interrupt.
type Machine struct {
	opts        Options
	root        *Frame
	interrupted atomic.Bool
	localID     atomic.Uint64
}

// NewMachine creates a machine whose root frame holds the constants and
// the control builtins.
func NewMachine(opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Machine{opts: opts, root: NewFrame("R_GlobalEnv", nil)}
	m.Define("TRUE", NewBool(true))
	m.Define("FALSE", NewBool(false))
	m.Define("T", NewBool(true))
	m.Define("F", NewBool(false))
	m.Define("NULL", Null{})
	m.Define("pi", NewNumber(math.Pi))
	for _, b := range controlBuiltins() {
		m.Define(b.Name, b)
	}
	return m
}

// Root returns the process-wide root frame.
func (m *Machine) Root() *Frame { return m.root }

// Define binds name in the root frame.
func (m *Machine) Define(name string, v Value) {
	m.root.Add(name, v)
}

// SetRequester installs the transport used by request expressions.
func (m *Machine) SetRequester(r Requester) { m.opts.Requester = r }

// Interrupt aborts the state currently being run at its next step. It may
// be called from any goroutine.
func (m *Machine) Interrupt() {
	m.interrupted.Store(true)
}

// ClearInterrupt drops an interrupt that no step has observed yet.
func (m *Machine) ClearInterrupt() {
	m.interrupted.Store(false)
}

func (m *Machine) emit(st *State, event TraceEventType, span *ast.Span, data map[string]string) {
	if m.opts.Trace == nil {
		return
	}
	var id uint64
	if st != nil {
		id = st.ID
	}
	m.opts.Trace(TraceEvent{
		Timestamp: m.opts.Now().UTC().Format(time.RFC3339Nano),
		RunID:     m.opts.RunID,
		Event:     event,
		State:     id,
		Span:      span,
		Data:      data,
	})
}
