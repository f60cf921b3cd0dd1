package protocol

import (
	"encoding/binary"
	"fmt"
	"time"

	"code.hybscloud.com/kont"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/parser"
	"github.com/thomasrohde/chrono/pkg/wire"
)

// Message is a decoded request or response.
type Message interface {
	Header() Preamble
}

// ReqPhase is the decoding phase of an inbound request.
type ReqPhase int

const (
	ReqIdle ReqPhase = iota
	ReqCode
	ReqValue
	ReqDone
)

func (p ReqPhase) String() string {
	switch p {
	case ReqIdle:
		return "IDLE"
	case ReqCode:
		return "CODE"
	case ReqValue:
		return "VALUE"
	case ReqDone:
		return "DONE"
	}
	return fmt.Sprintf("ReqPhase(%d)", int(p))
}

// ReqState accumulates one inbound request.
type ReqState struct {
	Preamble
	Phase   ReqPhase
	Touched time.Time

	// Set once the code section is complete. Expr is nil when the code
	// did not parse; Diagnostics then says why.
	Source      string
	Expr        ast.Expr
	Diagnostics []diagnostics.Diagnostic

	// Set in ReqDone.
	Bindings evaluator.List

	size    [8]byte
	sizeN   int
	code    []byte
	codeLen int
	values  wire.ValueDecoder
}

// NewReqState starts decoding the body of the request p.
func NewReqState(p Preamble, now time.Time) *ReqState {
	return &ReqState{Preamble: p, Touched: now}
}

// Header returns the request preamble.
func (r *ReqState) Header() Preamble { return r.Preamble }

// Feed consumes bytes of the request body from p and returns how many it
// took. It stops at the end of the request.
func (r *ReqState) Feed(p []byte, now time.Time) (int, error) {
	r.Touched = now
	n := 0
	for len(p) > 0 && r.Phase != ReqDone {
		switch r.Phase {
		case ReqIdle:
			c := copy(r.size[r.sizeN:], p)
			r.sizeN += c
			n += c
			p = p[c:]
			if r.sizeN < len(r.size) {
				continue
			}
			size := binary.BigEndian.Uint64(r.size[:])
			if size > MaxCodeSize {
				return n, fmt.Errorf("request %d code of %d bytes exceeds limit of %d", r.ID, size, MaxCodeSize)
			}
			r.codeLen = int(size)
			r.code = make([]byte, 0, r.codeLen)
			r.Phase = ReqCode
			if r.codeLen == 0 {
				r.finishCode()
			}

		case ReqCode:
			take := min(r.codeLen-len(r.code), len(p))
			r.code = append(r.code, p[:take]...)
			n += take
			p = p[take:]
			if len(r.code) == r.codeLen {
				r.finishCode()
			}

		case ReqValue:
			c, err := r.values.Feed(p)
			n += c
			p = p[c:]
			if err != nil {
				return n, fmt.Errorf("request %d bindings: %w", r.ID, err)
			}
			if r.values.Consumed() != r.values.Expected() || !r.values.Done() {
				continue
			}
			v, err := r.values.Value()
			if err != nil {
				return n, fmt.Errorf("request %d bindings: %w", r.ID, err)
			}
			list, ok := v.(evaluator.List)
			if !ok {
				return n, fmt.Errorf("request %d bindings: expected list, got %s", r.ID, evaluator.KindOf(v))
			}
			r.Bindings = list
			r.Phase = ReqDone
		}
	}
	return n, nil
}

// finishCode parses the accumulated code once and moves on to the
// bindings.
func (r *ReqState) finishCode() {
	r.Source = string(r.code)
	r.code = nil
	r.Expr, r.Diagnostics = parser.ParseExpr(r.Source, fmt.Sprintf("request#%d", r.ID))
	r.Phase = ReqValue
}

// RspPhase is the decoding phase of an inbound response.
type RspPhase int

const (
	RspIdle RspPhase = iota
	RspReceiving
	RspDone
)

func (p RspPhase) String() string {
	switch p {
	case RspIdle:
		return "IDLE"
	case RspReceiving:
		return "RECEIVING"
	case RspDone:
		return "DONE"
	}
	return fmt.Sprintf("RspPhase(%d)", int(p))
}

// RspState accumulates one inbound response.
type RspState struct {
	Preamble
	Phase   RspPhase
	Touched time.Time

	values wire.ValueDecoder
	result kont.Either[*RemoteError, evaluator.Value]
}

// NewRspState starts decoding the body of the response p.
func NewRspState(p Preamble, now time.Time) *RspState {
	return &RspState{Preamble: p, Touched: now}
}

// Header returns the response preamble.
func (r *RspState) Header() Preamble { return r.Preamble }

// Feed consumes bytes of the response body from p and returns how many it
// took.
func (r *RspState) Feed(p []byte, now time.Time) (int, error) {
	r.Touched = now
	if r.Phase == RspDone {
		return 0, nil
	}
	r.Phase = RspReceiving
	n, err := r.values.Feed(p)
	if err != nil {
		return n, fmt.Errorf("response %d: %w", r.ID, err)
	}
	if r.values.Consumed() < r.values.Expected() {
		return n, nil
	}
	v, err := r.values.Value()
	if err != nil {
		return n, fmt.Errorf("response %d: %w", r.ID, err)
	}
	if ev, ok := v.(evaluator.ErrorValue); ok {
		r.result = kont.Left[*RemoteError, evaluator.Value](&RemoteError{Code: ev.Code, Message: ev.Message})
	} else {
		r.result = kont.Right[*RemoteError](v)
	}
	r.Phase = RspDone
	return n, nil
}

// Result returns the remote failure or the value. It is meaningful once
// the phase is RspDone.
func (r *RspState) Result() kont.Either[*RemoteError, evaluator.Value] {
	return r.result
}

// Value converts the result into the value a future is resolved with.
func (r *RspState) Value() evaluator.Value {
	return kont.MatchEither(r.result,
		func(e *RemoteError) evaluator.Value {
			return evaluator.ErrorValue{Code: e.Code, Message: e.Message}
		},
		func(v evaluator.Value) evaluator.Value { return v },
	)
}
