// Package protocol implements the peer-to-peer request/response messages.
//
// Every message starts with a 17-byte preamble: a kind byte ('Q' for a
// request, 'P' for a response), the request id and the id of the request
// it is made on behalf of, both big-endian uint64. A request continues with
// an 8-byte code length, the code as source text, and one wire frame
// holding a list of bound variables. A response continues with one wire
// frame holding the result.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/thomasrohde/chrono/pkg/ast"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/formatter"
	"github.com/thomasrohde/chrono/pkg/wire"
)

// Kind identifies a message.
type Kind byte

const (
	KindRequest  Kind = 'Q'
	KindResponse Kind = 'P'
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	}
	return fmt.Sprintf("kind(0x%02x)", byte(k))
}

// PreambleSize is the encoded size of a Preamble.
const PreambleSize = 17

// MaxCodeSize bounds the code section of a request.
const MaxCodeSize = 16 << 20

// Preamble is the fixed message header.
type Preamble struct {
	Kind       Kind
	ID         uint64
	OnBehalfOf uint64
}

// AppendPreamble appends the encoded preamble to dst.
func AppendPreamble(dst []byte, p Preamble) []byte {
	dst = append(dst, byte(p.Kind))
	dst = binary.BigEndian.AppendUint64(dst, p.ID)
	return binary.BigEndian.AppendUint64(dst, p.OnBehalfOf)
}

// ParsePreamble decodes a preamble from the first PreambleSize bytes of b.
func ParsePreamble(b []byte) (Preamble, error) {
	if len(b) < PreambleSize {
		return Preamble{}, fmt.Errorf("short preamble: %d bytes", len(b))
	}
	p := Preamble{
		Kind:       Kind(b[0]),
		ID:         binary.BigEndian.Uint64(b[1:9]),
		OnBehalfOf: binary.BigEndian.Uint64(b[9:17]),
	}
	if p.Kind != KindRequest && p.Kind != KindResponse {
		return p, fmt.Errorf("unknown message %s", p.Kind)
	}
	return p, nil
}

// EncodeRequest encodes a request to evaluate body with the given bound
// variables.
func EncodeRequest(id, onBehalfOf uint64, body ast.Expr, bindings evaluator.List) ([]byte, error) {
	code := formatter.Format(body)
	if len(code) > MaxCodeSize {
		return nil, fmt.Errorf("request code is %d bytes, limit is %d", len(code), MaxCodeSize)
	}
	buf := AppendPreamble(nil, Preamble{Kind: KindRequest, ID: id, OnBehalfOf: onBehalfOf})
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(code)))
	buf = append(buf, code...)
	buf, err := wire.Encode(buf, bindings)
	if err != nil {
		return nil, fmt.Errorf("encoding request %d bindings: %w", id, err)
	}
	return buf, nil
}

// EncodeResponse encodes the result of request id. Values that cannot be
// transmitted are replaced by an error value.
func EncodeResponse(id, onBehalfOf uint64, result evaluator.Value) []byte {
	buf := AppendPreamble(nil, Preamble{Kind: KindResponse, ID: id, OnBehalfOf: onBehalfOf})
	out, err := wire.Encode(buf, result)
	if err != nil {
		out, _ = wire.Encode(buf, evaluator.ErrorValue{
			Code:    diagnostics.ENotTransmissible,
			Message: fmt.Sprintf("result of kind %s cannot be sent to a peer", evaluator.KindOf(result)),
		})
	}
	return out
}

// MalformedError reports bytes that do not form a valid message. The
// stream it came from cannot be resynchronized.
type MalformedError struct {
	Conn   string
	Offset int64
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message from %s at byte %d: %v", e.Conn, e.Offset, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// RemoteError is the failure side of a response.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
