package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// Stats counts what the runtime has done since it started.
type Stats struct {
	StatesStarted     int
	StatesCompleted   int
	StatesFailed      int
	StatesTimedOut    int
	RequestsSent      int
	RequestsReceived  int
	RequestsExpired   int
	ResponsesSent     int
	ResponsesReceived int
	StaleResponses    int
	Malformed         int
	TimersFired       int
}

// Stats returns the counters together with the current table sizes.
func (rt *Runtime) Stats() (Stats, map[string]int) {
	return rt.stats, map[string]int{
		"peers":    len(rt.peers),
		"pending":  len(rt.pending),
		"requests": len(rt.requests),
		"timers":   len(rt.timers),
	}
}

// builtins are the natives that need the runtime: timers, connections and
// statistics.
func (rt *Runtime) builtins() []*evaluator.Builtin {
	return []*evaluator.Builtin{
		{
			Name: "timer",
			Params: []evaluator.Param{
				{Name: "seconds", Accept: evaluator.KindNumeric | evaluator.KindDuration},
				{Name: "expr", Lazy: true},
			},
			Fn: rt.builtinTimer,
		},
		{
			Name:   "cancel",
			Params: []evaluator.Param{{Name: "timer", Accept: evaluator.KindTimer}},
			Fn:     rt.builtinCancel,
		},
		{
			Name: "connect",
			Params: []evaluator.Param{
				{Name: "host", Accept: evaluator.KindCharacter},
				{Name: "port", Accept: evaluator.KindNumeric | evaluator.KindCharacter},
			},
			Fn: rt.builtinConnect,
		},
		{
			Name: "peers",
			Fn:   rt.builtinPeers,
		},
		{
			Name: ".stats",
			Fn:   rt.builtinStats,
		},
	}
}

// timer(seconds, expr) schedules expr to run in the calling frame.
func (rt *Runtime) builtinTimer(c *evaluator.Call) (evaluator.Value, error) {
	var delay time.Duration
	switch v := c.Arg("seconds").(type) {
	case evaluator.Numeric:
		if v.Len() != 1 || v.Data[0] < 0 {
			return nil, c.Errorf(diagnostics.EArgType, "invalid 'seconds' argument: expected a single non-negative number")
		}
		delay = time.Duration(v.Data[0] * float64(time.Second))
	case evaluator.Durations:
		if v.Len() != 1 || v.Data[0] < 0 {
			return nil, c.Errorf(diagnostics.EArgType, "invalid 'seconds' argument: expected a single non-negative duration")
		}
		delay = v.Data[0]
	}
	code, _ := c.Arg("expr").(evaluator.Language)
	t := &evaluator.Timer{ID: rt.newID(), Due: rt.now().Add(delay), Expr: code.Expr}
	rt.timers[t.ID] = &timerEntry{timer: t, frame: code.Frame}
	c.Invisible()
	return t, nil
}

// cancel(timer) stops a timer that has not fired.
func (rt *Runtime) builtinCancel(c *evaluator.Call) (evaluator.Value, error) {
	t := c.Arg("timer").(*evaluator.Timer)
	_, live := rt.timers[t.ID]
	delete(rt.timers, t.ID)
	t.Canceled = true
	return evaluator.NewBool(live), nil
}

// fireTimers starts a state for every due timer, in due order.
func (rt *Runtime) fireTimers(now time.Time) error {
	var due []*timerEntry
	for _, e := range rt.timers {
		if !e.timer.Due.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].timer.Due.Equal(due[j].timer.Due) {
			return due[i].timer.ID < due[j].timer.ID
		}
		return due[i].timer.Due.Before(due[j].timer.Due)
	})
	for _, e := range due {
		delete(rt.timers, e.timer.ID)
		if e.timer.Expr == nil {
			continue
		}
		frame := e.frame
		if frame == nil {
			frame = rt.console
		}
		rt.stats.TimersFired++
		st := rt.machine.NewState(rt.newID(), e.timer.Expr, frame)
		st.Source = fmt.Sprintf("timer #%d", e.timer.ID)
		if err := rt.start(st, stateInfo{origin: fromTimer}); err != nil {
			return err
		}
	}
	return nil
}

// Connect dials addr and registers the connection as a peer.
func (rt *Runtime) Connect(ctx context.Context, addr string) (*evaluator.Connection, error) {
	if rt.transport == nil {
		return nil, fmt.Errorf("connect %s: no transport configured", addr)
	}
	id, err := rt.transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return rt.addPeer(id, addr).conn, nil
}

// connect(host, port) opens a connection to a peer.
func (rt *Runtime) builtinConnect(c *evaluator.Call) (evaluator.Value, error) {
	host, err := c.String("host")
	if err != nil {
		return nil, err
	}
	var port string
	switch v := c.Arg("port").(type) {
	case evaluator.Numeric:
		if v.Len() != 1 {
			return nil, c.Errorf(diagnostics.EArgType, "invalid 'port' argument: expected a single value")
		}
		port = strconv.Itoa(int(v.Data[0]))
	case evaluator.Character:
		if v.Len() != 1 {
			return nil, c.Errorf(diagnostics.EArgType, "invalid 'port' argument: expected a single value")
		}
		port = v.Data[0]
	}
	conn, err := rt.Connect(rt.ctx, net.JoinHostPort(host, port))
	if err != nil {
		rt.log.Debug("connect failed", slog.String("host", host), slog.String("port", port), slog.Any("error", err))
		return nil, c.Errorf(diagnostics.ERemote, "cannot connect to %s:%s: %v", host, port, err)
	}
	return conn, nil
}

// peers() lists the open connections.
func (rt *Runtime) builtinPeers(c *evaluator.Call) (evaluator.Value, error) {
	ids := make([]string, 0, len(rt.peers))
	for id := range rt.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]evaluator.ListItem, len(ids))
	for i, id := range ids {
		p := rt.peers[id]
		items[i] = evaluator.ListItem{Name: p.conn.Addr, Value: p.conn}
	}
	return evaluator.List{Items: items}, nil
}

// .stats() returns the runtime counters as a named numeric vector.
func (rt *Runtime) builtinStats(c *evaluator.Call) (evaluator.Value, error) {
	s, sizes := rt.Stats()
	names := []string{
		"states.started", "states.completed", "states.failed", "states.timedout",
		"requests.sent", "requests.received", "requests.expired", "responses.sent", "responses.received",
		"responses.stale", "malformed", "timers.fired",
		"peers", "pending", "requests", "timers",
	}
	counts := []int{
		s.StatesStarted, s.StatesCompleted, s.StatesFailed, s.StatesTimedOut,
		s.RequestsSent, s.RequestsReceived, s.RequestsExpired, s.ResponsesSent, s.ResponsesReceived,
		s.StaleResponses, s.Malformed, s.TimersFired,
		sizes["peers"], sizes["pending"], sizes["requests"], sizes["timers"],
	}
	data := make([]float64, len(counts))
	for i, n := range counts {
		data[i] = float64(n)
	}
	return evaluator.Numeric{Data: data, Names: names}, nil
}
