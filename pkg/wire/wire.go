// Package wire encodes values for transmission between peers.
//
// A value is framed as a one-byte tag, an 8-byte big-endian body length and
// the body, zero-padded to a multiple of 8 bytes. The body of a TagJSON
// frame is the JSON form written by evaluator.ValueToJSON.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// Tags identify the body encoding of a frame.
const (
	TagJSON byte = 'J'
)

// HeaderSize is the size of the tag and length fields.
const HeaderSize = 9

// MaxBodySize bounds a single frame body.
const MaxBodySize = 64 << 20

// ErrNotTransmissible is returned when a value cannot cross the wire.
var ErrNotTransmissible = errors.New("value is not transmissible")

// Padded rounds n up to a multiple of 8.
func Padded(n int) int {
	return (n + 7) &^ 7
}

// FrameSize returns the total frame size for a body of n bytes.
func FrameSize(n int) int {
	return HeaderSize + Padded(n)
}

// Encode appends the frame for v to dst.
func Encode(dst []byte, v evaluator.Value) ([]byte, error) {
	if !evaluator.Transmissible(v) {
		return dst, fmt.Errorf("%w: %s", ErrNotTransmissible, evaluator.KindOf(v))
	}
	body, err := evaluator.ValueToJSON(v)
	if err != nil {
		return dst, fmt.Errorf("%w: %w", ErrNotTransmissible, err)
	}
	if len(body) > MaxBodySize {
		return dst, fmt.Errorf("encoded value is %d bytes, limit is %d", len(body), MaxBodySize)
	}
	dst = append(dst, TagJSON)
	dst = binary.BigEndian.AppendUint64(dst, uint64(len(body)))
	dst = append(dst, body...)
	for pad := Padded(len(body)) - len(body); pad > 0; pad-- {
		dst = append(dst, 0)
	}
	return dst, nil
}

// ValueDecoder decodes one frame from bytes delivered in arbitrary chunks.
// The zero value is ready to use.
type ValueDecoder struct {
	header   [HeaderSize]byte
	body     []byte
	consumed int
	expected int
	value    evaluator.Value
	err      error
}

// Reset prepares the decoder for the next frame.
func (d *ValueDecoder) Reset() {
	*d = ValueDecoder{}
}

// Consumed returns the number of frame bytes taken so far.
func (d *ValueDecoder) Consumed() int { return d.consumed }

// Expected returns the frame size once the header has been read, and the
// header size before that.
func (d *ValueDecoder) Expected() int {
	if d.expected == 0 {
		return HeaderSize
	}
	return d.expected
}

// Done reports whether a whole frame has been consumed.
func (d *ValueDecoder) Done() bool {
	return d.expected > 0 && d.consumed >= d.expected
}

// Feed consumes bytes of the current frame from p and returns how many it
// took. It never reads past the end of the frame.
func (d *ValueDecoder) Feed(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	n := 0
	if d.consumed < HeaderSize {
		c := copy(d.header[d.consumed:], p)
		d.consumed += c
		n += c
		p = p[c:]
		if d.consumed < HeaderSize {
			return n, nil
		}
		if err := d.readHeader(); err != nil {
			d.err = err
			return n, err
		}
	}
	if d.value != nil {
		return n, nil
	}

	want := d.expected - d.consumed
	if len(p) > want {
		p = p[:want]
	}
	if bodyLeft := cap(d.body) - len(d.body); bodyLeft > 0 {
		take := min(bodyLeft, len(p))
		d.body = append(d.body, p[:take]...)
	}
	d.consumed += len(p)
	n += len(p)

	if d.Done() {
		d.value, d.err = decodeBody(d.header[0], d.body)
		if d.err != nil {
			return n, d.err
		}
	}
	return n, nil
}

func (d *ValueDecoder) readHeader() error {
	tag := d.header[0]
	if tag != TagJSON {
		return fmt.Errorf("unknown value tag 0x%02x", tag)
	}
	size := binary.BigEndian.Uint64(d.header[1:])
	if size > MaxBodySize {
		return fmt.Errorf("value body of %d bytes exceeds limit of %d", size, MaxBodySize)
	}
	d.expected = FrameSize(int(size))
	d.body = make([]byte, 0, int(size))
	return nil
}

// Value returns the decoded value once Done.
func (d *ValueDecoder) Value() (evaluator.Value, error) {
	if d.err != nil {
		return nil, d.err
	}
	if !d.Done() {
		return nil, fmt.Errorf("value incomplete: %d of %d bytes", d.consumed, d.Expected())
	}
	return d.value, nil
}

func decodeBody(tag byte, body []byte) (evaluator.Value, error) {
	v, err := evaluator.ValueFromJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decoding %c value: %w", tag, err)
	}
	return v, nil
}

// Decode decodes one complete frame from the front of p and returns the
// value and the frame size.
func Decode(p []byte) (evaluator.Value, int, error) {
	var d ValueDecoder
	n, err := d.Feed(p)
	if err != nil {
		return nil, n, err
	}
	if !d.Done() {
		return nil, n, fmt.Errorf("short frame: have %d bytes, need %d", len(p), d.Expected())
	}
	v, err := d.Value()
	return v, n, err
}
