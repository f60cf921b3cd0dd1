package protocol

import (
	"time"
)

// Decoder splits the byte stream of one connection into messages. It is
// not safe for concurrent use.
type Decoder struct {
	conn   string
	pre    [PreambleSize]byte
	preN   int
	req    *ReqState
	rsp    *RspState
	offset int64
	err    error
}

// NewDecoder creates a decoder for the stream of connection conn.
func NewDecoder(conn string) *Decoder {
	return &Decoder{conn: conn}
}

// Feed consumes p and returns the messages it completed. After a
// *MalformedError the decoder refuses further input.
func (d *Decoder) Feed(p []byte, now time.Time) ([]Message, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []Message
	for len(p) > 0 {
		if d.req == nil && d.rsp == nil {
			c := copy(d.pre[d.preN:], p)
			d.preN += c
			p = p[c:]
			d.offset += int64(c)
			if d.preN < PreambleSize {
				break
			}
			d.preN = 0
			pre, err := ParsePreamble(d.pre[:])
			if err != nil {
				return out, d.fail(err)
			}
			if pre.Kind == KindRequest {
				d.req = NewReqState(pre, now)
			} else {
				d.rsp = NewRspState(pre, now)
			}
			continue
		}

		var (
			n    int
			err  error
			done Message
		)
		if d.req != nil {
			n, err = d.req.Feed(p, now)
			if d.req.Phase == ReqDone {
				done, d.req = d.req, nil
			}
		} else {
			n, err = d.rsp.Feed(p, now)
			if d.rsp.Phase == RspDone {
				done, d.rsp = d.rsp, nil
			}
		}
		p = p[n:]
		d.offset += int64(n)
		if err != nil {
			return out, d.fail(err)
		}
		if done != nil {
			out = append(out, done)
		}
	}
	return out, nil
}

// Abort drops the partial message and fails the stream with err.
func (d *Decoder) Abort(err error) *MalformedError {
	d.fail(err)
	return d.err.(*MalformedError)
}

func (d *Decoder) fail(err error) error {
	d.err = &MalformedError{Conn: d.conn, Offset: d.offset, Err: err}
	d.req, d.rsp, d.preN = nil, nil, 0
	return d.err
}

// Partial reports whether a message has been started but not completed.
func (d *Decoder) Partial() bool {
	return d.preN > 0 || d.req != nil || d.rsp != nil
}

// Expired reports whether a partial request has seen no bytes for reqTTL,
// or a partial response for rspTTL. The preamble bytes alone do not start
// the clock.
func (d *Decoder) Expired(now time.Time, reqTTL, rspTTL time.Duration) bool {
	switch {
	case d.req != nil:
		return now.Sub(d.req.Touched) > reqTTL
	case d.rsp != nil:
		return now.Sub(d.rsp.Touched) > rspTTL
	}
	return false
}

// Offset returns the number of bytes consumed from the stream.
func (d *Decoder) Offset() int64 { return d.offset }
