// Package transport moves message bytes between peers over TCP.
//
// Worker goroutines only read sockets and queue events; everything else
// happens on the goroutine that consumes Events.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"
)

// EventKind identifies a transport event.
type EventKind int

const (
	Connected EventKind = iota
	Data
	Disconnected
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Data:
		return "data"
	case Disconnected:
		return "disconnected"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one notification from a connection.
type Event struct {
	Kind EventKind
	Conn string // connection id
	Addr string // remote address
	Data []byte // for Data events; owned by the receiver
	Err  error  // why a connection was lost, nil on clean close
}

// ErrUnknownConn is returned for operations on a closed or unknown
// connection.
var ErrUnknownConn = errors.New("unknown connection")

const readBufferSize = 64 << 10

type conn struct {
	id  string
	nc  net.Conn
	mu  sync.Mutex
	out *bufio.Writer
}

// TCP is a transport over TCP sockets.
type TCP struct {
	events chan Event
	done   chan struct{}
	log    *slog.Logger
	dial   *rate.Limiter

	mu     sync.Mutex
	conns  map[string]*conn
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

// Option configures a TCP transport.
type Option func(*TCP)

// WithLogger sets the logger for connection events.
func WithLogger(l *slog.Logger) Option {
	return func(t *TCP) {
		t.log = l
	}
}

// WithDialRate limits how often Dial may open connections.
func WithDialRate(r rate.Limit, burst int) Option {
	return func(t *TCP) {
		t.dial = rate.NewLimiter(r, burst)
	}
}

// WithQueue sets the capacity of the event queue.
func WithQueue(n int) Option {
	return func(t *TCP) {
		t.events = make(chan Event, n)
	}
}

// NewTCP creates a transport with no connections.
func NewTCP(opts ...Option) *TCP {
	t := &TCP{
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		log:    slog.Default(),
		dial:   rate.NewLimiter(rate.Limit(10), 4),
		conns:  make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events returns the queue of connection events.
func (t *TCP) Events() <-chan Event {
	return t.events
}

// Listen accepts connections on addr until Close.
func (t *TCP) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		ln.Close()
		return nil, net.ErrClosed
	}
	t.ln = ln
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		for {
			nc, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					t.log.Warn("accept failed", slog.String("addr", addr), slog.Any("error", err))
				}
				return
			}
			t.add(nc, false)
		}
	}()
	return ln.Addr(), nil
}

// Dial opens a connection to addr and returns its id. Dialed connections
// are not announced with a Connected event.
func (t *TCP) Dial(ctx context.Context, addr string) (string, error) {
	if err := t.dial.Wait(ctx); err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	c := t.add(nc, true)
	if c == nil {
		return "", net.ErrClosed
	}
	return c.id, nil
}

func (t *TCP) add(nc net.Conn, outbound bool) *conn {
	c := &conn{id: ksuid.New().String(), nc: nc, out: bufio.NewWriter(nc)}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		nc.Close()
		return nil
	}
	t.conns[c.id] = c
	t.wg.Add(1)
	t.mu.Unlock()

	addr := nc.RemoteAddr().String()
	t.log.Debug("connection opened", slog.String("conn", c.id), slog.String("addr", addr), slog.Bool("outbound", outbound))
	if !outbound {
		t.emit(Event{Kind: Connected, Conn: c.id, Addr: addr})
	}
	go t.read(c, addr)
	return c
}

// read forwards everything received on c until the socket fails.
func (t *TCP) read(c *conn, addr string) {
	defer t.wg.Done()
	buf := make([]byte, readBufferSize)
	var cause error
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !t.emit(Event{Kind: Data, Conn: c.id, Addr: addr, Data: chunk}) {
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				cause = err
			}
			break
		}
	}

	t.mu.Lock()
	_, live := t.conns[c.id]
	delete(t.conns, c.id)
	t.mu.Unlock()
	c.nc.Close()
	if live {
		t.log.Debug("connection closed", slog.String("conn", c.id), slog.Any("error", cause))
		t.emit(Event{Kind: Disconnected, Conn: c.id, Addr: addr, Err: cause})
	}
}

func (t *TCP) emit(ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.done:
		return false
	}
}

func (t *TCP) lookup(id string) (*conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConn, id)
	}
	return c, nil
}

// Send queues b on connection id. Bytes are written by Flush or when the
// buffer fills.
func (t *TCP) Send(id string, b []byte) error {
	c, err := t.lookup(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(b); err != nil {
		return fmt.Errorf("send to %s: %w", id, err)
	}
	return nil
}

// Flush writes the bytes queued on connection id.
func (t *TCP) Flush(id string) error {
	c, err := t.lookup(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.out.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", id, err)
	}
	return nil
}

// Disconnect closes connection id. Its reader reports Disconnected.
func (t *TCP) Disconnect(id string) error {
	c, err := t.lookup(id)
	if err != nil {
		return err
	}
	return c.nc.Close()
}

// Close stops listening, closes every connection and waits for the
// workers to exit. Events already queued stay readable.
func (t *TCP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	ln := t.ln
	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = map[string]*conn{}
	t.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		c.nc.Close()
	}
	t.wg.Wait()
	return err
}
