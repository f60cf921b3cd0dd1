package wire_test

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/wire"
)

func mustEncode(t *testing.T, v evaluator.Value) []byte {
	t.Helper()
	b, err := wire.Encode(nil, v)
	if err != nil {
		t.Fatalf("Encode(%s): %v", evaluator.Display(v), err)
	}
	return b
}

func TestEncode_Framing(t *testing.T) {
	b := mustEncode(t, evaluator.NewNumber(1))
	if b[0] != wire.TagJSON {
		t.Errorf("tag = %q", b[0])
	}
	size := int(binary.BigEndian.Uint64(b[1:9]))
	body := `{"kind":"numeric","data":[1]}`
	if size != len(body) {
		t.Errorf("length = %d, want %d", size, len(body))
	}
	if len(b) != wire.FrameSize(size) || (len(b)-wire.HeaderSize)%8 != 0 {
		t.Errorf("frame is %d bytes, body not padded to 8", len(b))
	}
	if got := string(b[9 : 9+size]); got != body {
		t.Errorf("body = %s", got)
	}
	for _, c := range b[9+size:] {
		if c != 0 {
			t.Fatalf("padding is not zero: %v", b[9+size:])
		}
	}
}

func TestEncode_NotTransmissible(t *testing.T) {
	for _, v := range []evaluator.Value{
		&evaluator.Connection{ID: "c"},
		evaluator.NewFuture(1, "c"),
		evaluator.NewList(evaluator.ListItem{Value: &evaluator.Builtin{Name: "f"}}),
	} {
		if _, err := wire.Encode(nil, v); !errors.Is(err, wire.ErrNotTransmissible) {
			t.Errorf("Encode(%s) err = %v", evaluator.KindOf(v), err)
		}
	}
}

func TestValueDecoder_ByteAtATime(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	values := []evaluator.Value{
		evaluator.Null{},
		evaluator.NewString("hello"),
		evaluator.Numeric{Data: []float64{1, 2.5}, Names: []string{"a", "b"}},
		evaluator.TimeSeries{Index: []time.Time{t0, t0.Add(time.Minute)}, Data: []float64{3, 4}},
		evaluator.NewList(
			evaluator.ListItem{Name: "x", Value: evaluator.NewBool(true)},
			evaluator.ListItem{Value: evaluator.ErrorValue{Code: "E_USER", Message: "no"}},
		),
	}
	for _, v := range values {
		t.Run(evaluator.KindOf(v).String(), func(t *testing.T) {
			b := mustEncode(t, v)
			var d wire.ValueDecoder
			for i := range b {
				if d.Done() {
					t.Fatalf("done after %d of %d bytes", i, len(b))
				}
				n, err := d.Feed(b[i : i+1])
				if err != nil {
					t.Fatal(err)
				}
				if n != 1 {
					t.Fatalf("Feed took %d bytes", n)
				}
			}
			if !d.Done() || d.Consumed() != d.Expected() || d.Expected() != len(b) {
				t.Fatalf("consumed %d expected %d len %d", d.Consumed(), d.Expected(), len(b))
			}
			got, err := d.Value()
			if err != nil {
				t.Fatal(err)
			}
			if evaluator.Display(got) != evaluator.Display(v) {
				t.Errorf("got %s, want %s", evaluator.Display(got), evaluator.Display(v))
			}
		})
	}
}

func TestValueDecoder_StopsAtFrameEnd(t *testing.T) {
	first := mustEncode(t, evaluator.NewNumber(1))
	stream := append(append([]byte{}, first...), mustEncode(t, evaluator.NewNumber(2))...)

	var d wire.ValueDecoder
	n, err := d.Feed(stream)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(first) {
		t.Fatalf("took %d bytes, want %d", n, len(first))
	}
	if more, _ := d.Feed(stream[n:]); more != 0 {
		t.Errorf("finished decoder took %d more bytes", more)
	}

	d.Reset()
	if _, err := d.Feed(stream[n:]); err != nil {
		t.Fatal(err)
	}
	v, err := d.Value()
	if err != nil {
		t.Fatal(err)
	}
	if got := evaluator.Display(v); got != "[1] 2" {
		t.Errorf("second value = %s", got)
	}
}

func TestValueDecoder_Errors(t *testing.T) {
	bad := make([]byte, 9)
	bad[0] = 'X'
	oversized := make([]byte, 9)
	oversized[0] = wire.TagJSON
	binary.BigEndian.PutUint64(oversized[1:], wire.MaxBodySize+1)
	garbage := []byte{wire.TagJSON, 0, 0, 0, 0, 0, 0, 0, 3, '{', '{', '{', 0, 0, 0, 0, 0}

	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"unknown tag", bad, "unknown value tag"},
		{"oversized", oversized, "exceeds limit"},
		{"bad json", garbage, "decoding J value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d wire.ValueDecoder
			_, err := d.Feed(tt.in)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
			if _, again := d.Feed(tt.in); again == nil {
				t.Error("decoder accepted bytes after an error")
			}
		})
	}
}

func TestDecode_Short(t *testing.T) {
	b := mustEncode(t, evaluator.NewString("abc"))
	if _, _, err := wire.Decode(b[:len(b)-1]); err == nil {
		t.Fatal("expected short frame error")
	}
	v, n, err := wire.Decode(b)
	if err != nil || n != len(b) {
		t.Fatalf("Decode = %d, %v", n, err)
	}
	if got := evaluator.Display(v); got != `[1] "abc"` {
		t.Errorf("value = %s", got)
	}
}
