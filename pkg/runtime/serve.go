package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/protocol"
	"github.com/thomasrohde/chrono/pkg/transport"
)

// successPlaceholder is sent instead of the value of a silent assignment.
var successPlaceholder = evaluator.NewBool(true)

// Serve runs the event loop: transport events, console lines and the
// periodic sweep, until ctx is done, lines is closed, or q() is evaluated.
// A nil channel is never selected.
func (rt *Runtime) Serve(ctx context.Context, events <-chan transport.Event, lines <-chan string) error {
	rt.ctx = ctx
	defer func() { rt.ctx = context.Background() }()

	ticker := time.NewTicker(rt.tick())
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			err = rt.HandleEvent(ev)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err = rt.Eval(line)
		case <-ticker.C:
			err = rt.Sweep()
		}
		if err != nil {
			return err
		}
	}
}

// tick is the sweep period: the GC interval, or sooner when a timer needs
// finer resolution.
func (rt *Runtime) tick() time.Duration {
	d := rt.cfg.GC.Interval.Std()
	if d <= 0 || d > 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// HandleEvent processes one transport event.
func (rt *Runtime) HandleEvent(ev transport.Event) error {
	switch ev.Kind {
	case transport.Connected:
		rt.addPeer(ev.Conn, ev.Addr)
	case transport.Data:
		return rt.receive(ev.Conn, ev.Data)
	case transport.Disconnected:
		return rt.dropPeer(ev.Conn, ev.Err)
	}
	return nil
}

func (rt *Runtime) addPeer(id, addr string) *peer {
	if p, ok := rt.peers[id]; ok {
		return p
	}
	p := &peer{
		conn:    &evaluator.Connection{ID: id, Addr: addr},
		dec:     protocol.NewDecoder(id),
		working: evaluator.NewFrame("peer "+id, rt.machine.Root()),
		since:   rt.now(),
	}
	rt.peers[id] = p
	rt.log.Info("peer connected", slog.String("conn", id), slog.String("addr", addr))
	return p
}

// dropPeer forgets a lost connection. Futures waiting on it fail and the
// states serving its requests are abandoned.
func (rt *Runtime) dropPeer(id string, cause error) error {
	if _, ok := rt.peers[id]; !ok {
		return nil
	}
	delete(rt.peers, id)
	rt.log.Info("peer disconnected", slog.String("conn", id), slog.Any("error", cause))

	for sid, st := range rt.pending {
		if st.ReplyTo == id {
			rt.machine.Abandon(st)
			rt.finish(st)
			delete(rt.pending, sid)
		}
	}
	lost := evaluator.ErrorValue{Code: diagnostics.ERemote, Message: "connection lost"}
	var lostReqs []*outbound
	for reqID, req := range rt.requests {
		if req.peer == id {
			delete(rt.requests, reqID)
			lostReqs = append(lostReqs, req)
		}
	}
	for _, req := range lostReqs {
		if err := rt.resolve(req, lost); err != nil {
			return err
		}
	}
	return nil
}

// receive feeds bytes from a peer to its decoder and handles the
// completed messages.
func (rt *Runtime) receive(id string, data []byte) error {
	p, ok := rt.peers[id]
	if !ok {
		p = rt.addPeer(id, "")
	}
	msgs, err := p.dec.Feed(data, rt.now())
	for _, m := range msgs {
		var herr error
		switch m := m.(type) {
		case *protocol.ReqState:
			herr = rt.handleRequest(p, m)
		case *protocol.RspState:
			herr = rt.handleResponse(p, m)
		}
		if herr != nil {
			return herr
		}
	}
	var me *protocol.MalformedError
	if errors.As(err, &me) {
		rt.malformed(p, me)
	}
	return nil
}

func (rt *Runtime) malformed(p *peer, err *protocol.MalformedError) {
	rt.stats.Malformed++
	if rt.warn.Allow() {
		rt.log.Warn("malformed message", slog.String("conn", p.conn.ID), slog.Int64("offset", err.Offset), slog.Any("error", err.Err))
	} else {
		rt.log.Debug("malformed message", slog.String("conn", p.conn.ID), slog.Any("error", err.Err))
	}
	if rt.transport != nil {
		if derr := rt.transport.Disconnect(p.conn.ID); derr != nil {
			rt.log.Debug("disconnect failed", slog.String("conn", p.conn.ID), slog.Any("error", derr))
		}
	}
}

// handleRequest starts a state for an inbound request in a shadow frame of
// the peer's working frame holding the bound variables.
func (rt *Runtime) handleRequest(p *peer, req *protocol.ReqState) error {
	rt.stats.RequestsReceived++
	info := stateInfo{origin: fromPeer, request: req.ID, onBehalfOf: req.OnBehalfOf}
	if req.Expr == nil {
		msg := "request code does not parse"
		if len(req.Diagnostics) > 0 {
			msg = req.Diagnostics[0].Message
		}
		rt.send(p.conn.ID, protocol.EncodeResponse(req.ID, req.OnBehalfOf,
			evaluator.ErrorValue{Code: diagnostics.EParse, Message: msg}))
		return nil
	}

	shadow := evaluator.NewShadowFrame(fmt.Sprintf("request %d", req.ID), p.working)
	for _, it := range req.Bindings.Items {
		shadow.Inject(it.Name, it.Value)
	}
	st := rt.machine.NewState(rt.newID(), req.Expr, shadow)
	st.OnBehalfOf = req.ID
	st.ReplyTo = p.conn.ID
	st.Source = req.Source
	rt.log.Debug("request received", slog.String("conn", p.conn.ID), slog.Uint64("request", req.ID), slog.Uint64("state", st.ID))
	return rt.start(st, info)
}

// respond sends the outcome of a state serving a peer request.
func (rt *Runtime) respond(st *evaluator.State, info stateInfo, out evaluator.Outcome) {
	var v evaluator.Value
	switch {
	case out.Status == evaluator.StatusFailed:
		v = evaluator.ErrorValue{Code: out.Err.Code, Message: out.Err.Message}
	case out.SilentAssign:
		v = successPlaceholder
	case out.Value == nil:
		v = evaluator.Null{}
	default:
		v = out.Value
	}
	if _, ok := rt.peers[st.ReplyTo]; !ok {
		rt.log.Debug("requester gone", slog.String("conn", st.ReplyTo), slog.Uint64("request", info.request))
		return
	}
	rt.send(st.ReplyTo, protocol.EncodeResponse(info.request, info.onBehalfOf, v))
	rt.stats.ResponsesSent++
}

func (rt *Runtime) send(conn string, b []byte) {
	if rt.transport == nil {
		return
	}
	err := rt.transport.Send(conn, b)
	if err == nil {
		err = rt.transport.Flush(conn)
	}
	if err != nil {
		rt.log.Warn("send failed", slog.String("conn", conn), slog.Any("error", err))
	}
}

// Request implements evaluator.Requester. It never blocks: the request is
// queued on the transport and a pending future is returned.
func (rt *Runtime) Request(st *evaluator.State, conn *evaluator.Connection, body ast.Expr, bindings evaluator.List) (*evaluator.Future, error) {
	if rt.transport == nil {
		return nil, &evaluator.EvalError{Code: diagnostics.ERemote, Message: "no transport configured"}
	}
	if _, ok := rt.peers[conn.ID]; !ok {
		return nil, &evaluator.EvalError{Code: diagnostics.ERemote, Message: fmt.Sprintf("connection %s is closed", conn.ID)}
	}
	id := rt.newID()
	b, err := protocol.EncodeRequest(id, st.ID, body, bindings)
	if err != nil {
		return nil, &evaluator.EvalError{Code: diagnostics.ENotTransmissible, Message: err.Error()}
	}
	if err := rt.transport.Send(conn.ID, b); err != nil {
		return nil, &evaluator.EvalError{Code: diagnostics.ERemote, Message: err.Error()}
	}
	if err := rt.transport.Flush(conn.ID); err != nil {
		return nil, &evaluator.EvalError{Code: diagnostics.ERemote, Message: err.Error()}
	}
	fut := evaluator.NewFuture(id, conn.ID)
	rt.requests[id] = &outbound{future: fut, state: st.ID, peer: conn.ID, sent: rt.now()}
	rt.stats.RequestsSent++
	rt.log.Debug("request sent", slog.String("conn", conn.ID), slog.Uint64("request", id), slog.Uint64("state", st.ID))
	return fut, nil
}

// handleResponse resolves the future of the matching request and resumes
// its state when the state is parked on that future.
func (rt *Runtime) handleResponse(p *peer, rsp *protocol.RspState) error {
	req, ok := rt.requests[rsp.ID]
	if !ok || req.peer != p.conn.ID || req.state != rsp.OnBehalfOf {
		rt.stats.StaleResponses++
		rt.log.Debug("response without request", slog.String("conn", p.conn.ID), slog.Uint64("request", rsp.ID))
		return nil
	}
	delete(rt.requests, rsp.ID)
	rt.stats.ResponsesReceived++
	return rt.resolve(req, rsp.Value())
}

// resolve delivers v to a request's future and wakes its state.
func (rt *Runtime) resolve(req *outbound, v evaluator.Value) error {
	if !req.future.Resolve(v) {
		return nil
	}
	st, ok := rt.pending[req.state]
	if !ok || st.Waiting() != req.future {
		return nil
	}
	delete(rt.pending, req.state)
	return rt.run(st)
}

// Sweep fires due timers and drops protocol state that outlived its TTL.
func (rt *Runtime) Sweep() error {
	now := rt.now()
	if err := rt.fireTimers(now); err != nil {
		return err
	}
	gc := rt.cfg.GC

	for _, p := range rt.peers {
		if p.dec.Expired(now, gc.RequestTTL.Std(), gc.ResponseTTL.Std()) {
			rt.malformed(p, p.dec.Abort(errors.New("message timed out")))
		}
	}

	for id, st := range rt.pending {
		waited := now.Sub(st.Touched)
		if waited <= gc.ResponseTTL.Std() && now.Sub(st.Created) <= gc.StateTTL.Std() {
			continue
		}
		delete(rt.pending, id)
		info := rt.states[id]
		rt.machine.Abandon(st)
		rt.finish(st)
		for reqID, req := range rt.requests {
			if req.state == id {
				delete(rt.requests, reqID)
			}
		}
		rt.stats.StatesTimedOut++
		rt.log.Info("state timed out", slog.Uint64("state", id), slog.Duration("waited", waited))

		out := evaluator.Outcome{
			Status: evaluator.StatusFailed,
			Err:    &evaluator.EvalError{Code: diagnostics.ETimeout, Message: "response timeout"},
		}
		if info.origin == fromPeer {
			rt.respond(st, info, out)
		} else {
			rt.report(st, info, out)
		}
	}

	// Futures of finished states, left bound in some frame.
	for reqID, req := range rt.requests {
		if _, parked := rt.pending[req.state]; parked || now.Sub(req.sent) <= gc.ResponseTTL.Std() {
			continue
		}
		delete(rt.requests, reqID)
		req.future.Resolve(evaluator.ErrorValue{Code: diagnostics.ETimeout, Message: "response timeout"})
		rt.stats.RequestsExpired++
		rt.log.Debug("request expired", slog.String("conn", req.peer), slog.Uint64("request", reqID))
	}
	return nil
}
