package protocol_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/formatter"
	"github.com/thomasrohde/chrono/pkg/parser"
	"github.com/thomasrohde/chrono/pkg/protocol"
	"github.com/thomasrohde/chrono/pkg/wire"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func parseExpr(t *testing.T, src string) ast.Expr {
	t.Helper()
	e, diags := parser.ParseExpr(src, "protocol_test")
	if len(diags) > 0 {
		t.Fatalf("parse %q: %s", src, diagnostics.FormatDiagnostics(diags, false))
	}
	return e
}

// feedChunks feeds b to a fresh decoder size bytes at a time.
func feedChunks(t *testing.T, b []byte, size int) []protocol.Message {
	t.Helper()
	d := protocol.NewDecoder("peer-1")
	var all []protocol.Message
	for len(b) > 0 {
		n := min(size, len(b))
		msgs, err := d.Feed(b[:n], t0)
		if err != nil {
			t.Fatalf("chunk size %d: %v", size, err)
		}
		all = append(all, msgs...)
		b = b[n:]
	}
	if d.Partial() {
		t.Fatalf("chunk size %d: decoder left with a partial message", size)
	}
	return all
}

func TestPreamble(t *testing.T) {
	p := protocol.Preamble{Kind: protocol.KindRequest, ID: 0x0102030405060708, OnBehalfOf: 9}
	b := protocol.AppendPreamble(nil, p)
	if len(b) != protocol.PreambleSize {
		t.Fatalf("preamble is %d bytes", len(b))
	}
	if b[0] != 'Q' || b[1] != 1 || b[8] != 8 || b[16] != 9 {
		t.Errorf("preamble bytes = %v", b)
	}
	got, err := protocol.ParsePreamble(b)
	if err != nil || got != p {
		t.Fatalf("ParsePreamble = %+v, %v", got, err)
	}
	b[0] = 'Z'
	if _, err := protocol.ParsePreamble(b); err == nil {
		t.Error("unknown kind accepted")
	}
	if _, err := protocol.ParsePreamble(b[:4]); err == nil {
		t.Error("short preamble accepted")
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	body := parseExpr(t, `{ y <- $x * 2; y + 1 }`)
	bindings := evaluator.List{Items: []evaluator.ListItem{{Name: "x", Value: evaluator.NewNumber(21)}}}
	b, err := protocol.EncodeRequest(7, 3, body, bindings)
	if err != nil {
		t.Fatal(err)
	}

	for _, size := range []int{1, 2, 5, 8, 17, 25, len(b)} {
		msgs := feedChunks(t, b, size)
		if len(msgs) != 1 {
			t.Fatalf("chunk size %d: %d messages", size, len(msgs))
		}
		req, ok := msgs[0].(*protocol.ReqState)
		if !ok {
			t.Fatalf("message is %T", msgs[0])
		}
		if req.Phase != protocol.ReqDone || req.ID != 7 || req.OnBehalfOf != 3 {
			t.Errorf("request = %s id=%d obo=%d", req.Phase, req.ID, req.OnBehalfOf)
		}
		if req.Source != formatter.Format(body) {
			t.Errorf("source = %q", req.Source)
		}
		if req.Expr == nil || formatter.Format(req.Expr) != formatter.Format(body) {
			t.Errorf("decoded expression differs: %v", req.Diagnostics)
		}
		x, ok := req.Bindings.Get("x")
		if !ok || evaluator.Display(x) != "[1] 21" {
			t.Errorf("bindings = %s", evaluator.Display(req.Bindings))
		}
	}
}

func TestRequest_NotTransmissible(t *testing.T) {
	bindings := evaluator.List{Items: []evaluator.ListItem{{Name: "f", Value: &evaluator.Builtin{Name: "c"}}}}
	_, err := protocol.EncodeRequest(1, 0, parseExpr(t, `$f`), bindings)
	if !errors.Is(err, wire.ErrNotTransmissible) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequest_BadCodeKeepsStream(t *testing.T) {
	code := "1 +"
	b := protocol.AppendPreamble(nil, protocol.Preamble{Kind: protocol.KindRequest, ID: 4})
	b = binary.BigEndian.AppendUint64(b, uint64(len(code)))
	b = append(b, code...)
	b, err := wire.Encode(b, evaluator.List{})
	if err != nil {
		t.Fatal(err)
	}
	b = append(b, protocol.EncodeResponse(5, 0, evaluator.NewNumber(1))...)

	msgs := feedChunks(t, b, 3)
	if len(msgs) != 2 {
		t.Fatalf("%d messages", len(msgs))
	}
	req := msgs[0].(*protocol.ReqState)
	if req.Expr != nil || len(req.Diagnostics) == 0 {
		t.Errorf("expected parse diagnostics, got expr %v", req.Expr)
	}
	if msgs[1].Header().ID != 5 {
		t.Errorf("second message id = %d", msgs[1].Header().ID)
	}
}

func TestResponse_Results(t *testing.T) {
	tests := []struct {
		name    string
		value   evaluator.Value
		display string
		code    string
	}{
		{"value", evaluator.NewNumber(42), "[1] 42", ""},
		{"null", evaluator.Null{}, "NULL", ""},
		{"error", evaluator.ErrorValue{Code: diagnostics.EUser, Message: "boom"}, "", diagnostics.EUser},
		{"not transmissible", &evaluator.Builtin{Name: "c"}, "", diagnostics.ENotTransmissible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := feedChunks(t, protocol.EncodeResponse(11, 2, tt.value), 4)
			if len(msgs) != 1 {
				t.Fatalf("%d messages", len(msgs))
			}
			rsp := msgs[0].(*protocol.RspState)
			if rsp.Phase != protocol.RspDone || rsp.ID != 11 || rsp.OnBehalfOf != 2 {
				t.Fatalf("response = %s id=%d", rsp.Phase, rsp.ID)
			}
			res := rsp.Result()
			if tt.code != "" {
				remote, ok := res.GetLeft()
				if !ok || remote.Code != tt.code {
					t.Fatalf("result = %+v, want failure %s", res, tt.code)
				}
				if _, ok := rsp.Value().(evaluator.ErrorValue); !ok {
					t.Errorf("Value() = %T", rsp.Value())
				}
				return
			}
			v, ok := res.GetRight()
			if !ok || evaluator.Display(v) != tt.display {
				t.Errorf("result = %+v, want %s", res, tt.display)
			}
		})
	}
}

func TestDecoder_SeveralMessagesInOneChunk(t *testing.T) {
	var b []byte
	for id := uint64(1); id <= 3; id++ {
		b = append(b, protocol.EncodeResponse(id, 0, evaluator.NewNumber(float64(id)))...)
	}
	msgs, err := protocol.NewDecoder("c").Feed(b, t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("%d messages", len(msgs))
	}
	for i, m := range msgs {
		if m.Header().ID != uint64(i+1) {
			t.Errorf("message %d has id %d", i, m.Header().ID)
		}
	}
}

func TestDecoder_Malformed(t *testing.T) {
	d := protocol.NewDecoder("peer-9")
	bad := make([]byte, protocol.PreambleSize)
	bad[0] = 'X'
	_, err := d.Feed(bad, t0)
	var me *protocol.MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v", err)
	}
	if me.Conn != "peer-9" || me.Offset != protocol.PreambleSize {
		t.Errorf("malformed error = %+v", me)
	}
	if _, again := d.Feed(protocol.EncodeResponse(1, 0, evaluator.Null{}), t0); !errors.As(again, &me) {
		t.Errorf("decoder accepted input after a malformed message: %v", again)
	}
}

func TestDecoder_BadBindings(t *testing.T) {
	b := protocol.AppendPreamble(nil, protocol.Preamble{Kind: protocol.KindRequest, ID: 1})
	b = binary.BigEndian.AppendUint64(b, 1)
	b = append(b, '1')
	b, err := wire.Encode(b, evaluator.NewNumber(1))
	if err != nil {
		t.Fatal(err)
	}
	_, err = protocol.NewDecoder("c").Feed(b, t0)
	var me *protocol.MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecoder_Expired(t *testing.T) {
	d := protocol.NewDecoder("c")
	b := protocol.EncodeResponse(1, 0, evaluator.NewNumber(1))
	if _, err := d.Feed(b[:protocol.PreambleSize+2], t0); err != nil {
		t.Fatal(err)
	}
	if !d.Partial() {
		t.Fatal("expected a partial message")
	}
	if d.Expired(t0.Add(time.Second), time.Hour, time.Minute) {
		t.Error("expired too early")
	}
	if !d.Expired(t0.Add(2*time.Minute), time.Hour, time.Minute) {
		t.Error("did not expire")
	}
	msgs, err := d.Feed(b[protocol.PreambleSize+2:], t0.Add(90*time.Second))
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Feed = %d messages, %v", len(msgs), err)
	}
	if d.Expired(t0.Add(time.Hour), time.Minute, time.Minute) {
		t.Error("idle decoder reported expired")
	}
}

func TestDecoder_Abort(t *testing.T) {
	d := protocol.NewDecoder("c")
	b := protocol.EncodeResponse(1, 0, evaluator.NewNumber(1))
	if _, err := d.Feed(b[:protocol.PreambleSize+2], t0); err != nil {
		t.Fatal(err)
	}
	cause := errors.New("message timed out")
	merr := d.Abort(cause)
	if merr.Conn != "c" || !errors.Is(merr, cause) {
		t.Errorf("Abort = %v", merr)
	}
	if d.Partial() {
		t.Error("partial message survived Abort")
	}
	var got *protocol.MalformedError
	if _, err := d.Feed(b[protocol.PreambleSize+2:], t0); !errors.As(err, &got) {
		t.Errorf("Feed after Abort = %v, want MalformedError", err)
	}
}
