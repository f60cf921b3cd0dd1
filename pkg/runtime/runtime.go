// Package runtime provides the top-level chrono runtime orchestrator.
//
// A Runtime owns the machine, the peer sessions and the tables of pending
// states and outbound requests. All of them are only touched by the
// goroutine running Serve (or calling Eval and HandleEvent directly).
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"

	"github.com/thomasrohde/chrono/pkg/config"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/formatter"
	"github.com/thomasrohde/chrono/pkg/parser"
	"github.com/thomasrohde/chrono/pkg/protocol"
	"github.com/thomasrohde/chrono/pkg/stdlib"
	"github.com/thomasrohde/chrono/pkg/validator"
)

// Transport carries message bytes to peers.
type Transport interface {
	Send(conn string, b []byte) error
	Flush(conn string) error
	Dial(ctx context.Context, addr string) (string, error)
	Disconnect(conn string) error
}

// Result holds the outcome of a script execution.
type Result struct {
	Value   evaluator.Value
	Visible bool
	Steps   int
	Elapsed time.Duration
}

type origin int

const (
	fromConsole origin = iota
	fromPeer
	fromTimer
)

// stateInfo is what the runtime remembers about a live state.
type stateInfo struct {
	origin     origin
	request    uint64 // inbound request id, for fromPeer
	onBehalfOf uint64 // as received, echoed in the response
}

// outbound is a request awaiting its response.
type outbound struct {
	future *evaluator.Future
	state  uint64
	peer   string
	sent   time.Time
}

type peer struct {
	conn    *evaluator.Connection
	dec     *protocol.Decoder
	working *evaluator.Frame
	since   time.Time
}

type timerEntry struct {
	timer *evaluator.Timer
	frame *evaluator.Frame
}

// Runtime wires together all chrono components.
type Runtime struct {
	cfg       *config.Config
	log       *slog.Logger
	stdlib    *stdlib.Registry
	machine   *evaluator.Machine
	transport Transport
	runID     string
	trace     func(event evaluator.TraceEvent)
	out       io.Writer
	errOut    io.Writer
	now       func() time.Time
	warn      *rate.Limiter
	ctx       context.Context

	console  *evaluator.Frame
	peers    map[string]*peer
	states   map[uint64]stateInfo
	pending  map[uint64]*evaluator.State
	requests map[uint64]*outbound
	timers   map[uint64]*timerEntry
	nextID   uint64
	stats    Stats
	intMu    sync.Mutex
	running  bool
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithConfig sets the configuration. The default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(rt *Runtime) {
		rt.cfg = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.log = l
	}
}

// WithStdlib sets the stdlib registry.
func WithStdlib(r *stdlib.Registry) Option {
	return func(rt *Runtime) {
		rt.stdlib = r
	}
}

// WithTransport connects the runtime to peers.
func WithTransport(t Transport) Option {
	return func(rt *Runtime) {
		rt.transport = t
	}
}

// WithRunID sets the run ID for trace events.
func WithRunID(id string) Option {
	return func(rt *Runtime) {
		rt.runID = id
	}
}

// WithTrace sets the trace callback.
func WithTrace(fn func(event evaluator.TraceEvent)) Option {
	return func(rt *Runtime) {
		rt.trace = fn
	}
}

// WithOutput sets where console results and errors are printed.
func WithOutput(out, errOut io.Writer) Option {
	return func(rt *Runtime) {
		rt.out = out
		rt.errOut = errOut
	}
}

// WithClock replaces the clock used for timers and the sweep.
func WithClock(now func() time.Time) Option {
	return func(rt *Runtime) {
		rt.now = now
	}
}

// New creates a new Runtime with the given options.
// By default the stdlib defaults are registered and there is no transport.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		cfg:      config.Default(),
		runID:    ksuid.New().String(),
		out:      os.Stdout,
		errOut:   os.Stderr,
		now:      time.Now,
		warn:     rate.NewLimiter(rate.Every(time.Second), 5),
		ctx:      context.Background(),
		peers:    make(map[string]*peer),
		states:   make(map[uint64]stateInfo),
		pending:  make(map[uint64]*evaluator.State),
		requests: make(map[uint64]*outbound),
		timers:   make(map[uint64]*timerEntry),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.log == nil {
		lvl, err := rt.cfg.Level()
		if err != nil {
			lvl = slog.LevelWarn
		}
		rt.log = slog.New(slog.NewTextHandler(rt.errOut, &slog.HandlerOptions{Level: lvl}))
	}
	rt.log = rt.log.With(slog.String("run", rt.runID))
	if rt.stdlib == nil {
		rt.stdlib = stdlib.NewRegistry()
		stdlib.RegisterDefaults(rt.stdlib)
	}
	rt.stdlib.SetOutput(rt.out)
	rt.stdlib.SetClock(rt.now)

	rt.machine = evaluator.NewMachine(evaluator.Options{
		Limits: evaluator.Limits{
			MaxDepth: rt.cfg.Limits.MaxDepth,
			MaxSteps: rt.cfg.Limits.MaxSteps,
		},
		Trace:     rt.trace,
		Requester: rt,
		RunID:     rt.runID,
		Now:       rt.now,
	})
	rt.stdlib.Install(rt.machine)
	for _, b := range rt.builtins() {
		rt.machine.Define(b.Name, b)
	}
	rt.console = evaluator.NewFrame("console", rt.machine.Root())
	return rt
}

// Machine returns the evaluator machine.
func (rt *Runtime) Machine() *evaluator.Machine { return rt.machine }

// Console returns the working frame of the local console.
func (rt *Runtime) Console() *evaluator.Frame { return rt.console }

// Interrupt aborts the state currently being evaluated, if any. It may be
// called from any goroutine.
func (rt *Runtime) Interrupt() bool {
	rt.intMu.Lock()
	defer rt.intMu.Unlock()
	if rt.running {
		rt.machine.Interrupt()
	}
	return rt.running
}

func (rt *Runtime) newID() uint64 {
	rt.nextID++
	return rt.nextID
}

// Run parses and executes a script to completion in the console frame.
// Scripts cannot wait on peers; a script that uses an unresolved future
// fails with *evaluator.SuspendedError.
func (rt *Runtime) Run(ctx context.Context, source, filename string) (*Result, error) {
	program, diags := parser.Parse(source, filename)
	if len(diags) > 0 {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	res, err := rt.machine.Execute(ctx, program, rt.console)
	if err != nil {
		return nil, err
	}
	return &Result{Value: res.Value, Visible: res.Visible, Steps: res.Steps, Elapsed: res.Elapsed}, nil
}

// Check parses and validates a program without executing it.
func (rt *Runtime) Check(source, filename string) []diagnostics.Diagnostic {
	program, diags := parser.Parse(source, filename)
	if len(diags) > 0 {
		return diags
	}
	return validator.Validate(program, func(name string) bool {
		_, ok := rt.console.Find(name)
		return ok
	})
}

// Format parses and formats a program.
func (rt *Runtime) Format(source, filename string) (string, error) {
	program, diags := parser.Parse(source, filename)
	if len(diags) > 0 {
		return "", &DiagnosticError{Diagnostics: diags}
	}
	return formatter.FormatProgram(program), nil
}

// Eval starts evaluating one console line. Visible results and errors are
// printed; a line waiting on a peer is printed when it completes.
func (rt *Runtime) Eval(source string) error {
	program, diags := parser.Parse(source, "console")
	if len(diags) > 0 {
		for _, d := range diags {
			fmt.Fprintln(rt.errOut, diagnostics.FormatWithSource(d, source))
		}
		return nil
	}
	if len(program.Exprs) == 0 {
		return nil
	}
	st := rt.machine.NewState(rt.newID(), program, rt.console)
	st.Source = source
	return rt.start(st, stateInfo{origin: fromConsole})
}

func (rt *Runtime) start(st *evaluator.State, info stateInfo) error {
	rt.states[st.ID] = info
	rt.stats.StatesStarted++
	return rt.run(st)
}

// run drives st until it finishes or parks.
func (rt *Runtime) run(st *evaluator.State) error {
	rt.setRunning(true)
	out := rt.machine.Run(st)
	rt.setRunning(false)
	info := rt.states[st.ID]
	switch out.Status {
	case evaluator.StatusParked:
		rt.pending[st.ID] = st
		rt.log.Debug("state parked", slog.Uint64("state", st.ID), slog.Uint64("future", out.Waiting.ID))
		return nil
	case evaluator.StatusQuit:
		rt.finish(st)
		return evaluator.ErrQuit
	case evaluator.StatusDone:
		rt.stats.StatesCompleted++
	case evaluator.StatusFailed:
		rt.stats.StatesFailed++
	}
	rt.finish(st)

	switch info.origin {
	case fromPeer:
		rt.respond(st, info, out)
	default:
		rt.report(st, info, out)
	}
	return nil
}

// setRunning gates Interrupt. An interrupt that lands after the last step
// of a state is dropped so it cannot fail the next one.
func (rt *Runtime) setRunning(on bool) {
	rt.intMu.Lock()
	rt.running = on
	if !on {
		rt.machine.ClearInterrupt()
	}
	rt.intMu.Unlock()
}

// finish forgets st and the requests it still has outstanding.
func (rt *Runtime) finish(st *evaluator.State) {
	delete(rt.states, st.ID)
	delete(rt.pending, st.ID)
	for id, req := range rt.requests {
		if req.state == st.ID && req.future.Done() {
			delete(rt.requests, id)
		}
	}
}

// report prints the outcome of a local state. Timer results are not
// echoed.
func (rt *Runtime) report(st *evaluator.State, info stateInfo, out evaluator.Outcome) {
	if out.Status == evaluator.StatusFailed {
		fmt.Fprintln(rt.errOut, diagnostics.FormatWithSource(out.Err.Diagnostic(), st.Source))
		return
	}
	if info.origin == fromConsole && out.Visible && out.Value != nil {
		fmt.Fprintln(rt.out, evaluator.Display(out.Value))
	}
}

// DiagnosticError wraps diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}
