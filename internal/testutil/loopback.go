package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thomasrohde/chrono/pkg/transport"
)

// Handler consumes the events delivered to an endpoint.
type Handler func(transport.Event) error

// Network is an in-memory network of endpoints. Nothing is delivered
// until Run, which hands queued events to the endpoint handlers one at a
// time, so tests stay deterministic.
type Network struct {
	// Chunk splits every delivery into pieces of at most Chunk bytes.
	// Zero delivers each flush whole.
	Chunk int

	mu     sync.Mutex
	ends   map[string]*Endpoint
	queue  []delivery
	nextID int
}

type delivery struct {
	to *Endpoint
	ev transport.Event
}

type link struct {
	remote     *Endpoint
	remoteConn string
	buf        []byte
	closed     bool
}

// Endpoint is one node of a Network. It implements the transport used by
// the runtime.
type Endpoint struct {
	Name    string
	net     *Network
	handler Handler
	links   map[string]*link
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{ends: make(map[string]*Endpoint)}
}

// Endpoint creates a named endpoint. Its name is its dial address.
func (n *Network) Endpoint(name string) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	e := &Endpoint{Name: name, net: n, links: make(map[string]*link)}
	n.ends[name] = e
	return e
}

// Attach sets the handler that receives e's events.
func (e *Endpoint) Attach(h Handler) {
	e.handler = h
}

func (n *Network) enqueue(to *Endpoint, ev transport.Event) {
	n.queue = append(n.queue, delivery{to: to, ev: ev})
}

// Dial connects e to the endpoint named addr. The remote side receives a
// Connected event; the dialer does not.
func (e *Endpoint) Dial(ctx context.Context, addr string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()
	remote, ok := n.ends[addr]
	if !ok {
		return "", fmt.Errorf("dial %s: connection refused", addr)
	}
	n.nextID++
	local := fmt.Sprintf("%s>%s#%d", e.Name, remote.Name, n.nextID)
	far := fmt.Sprintf("%s<%s#%d", remote.Name, e.Name, n.nextID)
	e.links[local] = &link{remote: remote, remoteConn: far}
	remote.links[far] = &link{remote: e, remoteConn: local}
	n.enqueue(remote, transport.Event{Kind: transport.Connected, Conn: far, Addr: e.Name})
	return local, nil
}

// Send buffers b on conn.
func (e *Endpoint) Send(conn string, b []byte) error {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	l, ok := e.links[conn]
	if !ok || l.closed {
		return fmt.Errorf("%w: %s", transport.ErrUnknownConn, conn)
	}
	l.buf = append(l.buf, b...)
	return nil
}

// Flush queues the buffered bytes for delivery.
func (e *Endpoint) Flush(conn string) error {
	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := e.links[conn]
	if !ok || l.closed {
		return fmt.Errorf("%w: %s", transport.ErrUnknownConn, conn)
	}
	data := l.buf
	l.buf = nil
	for len(data) > 0 {
		size := len(data)
		if n.Chunk > 0 && size > n.Chunk {
			size = n.Chunk
		}
		chunk := append([]byte(nil), data[:size]...)
		n.enqueue(l.remote, transport.Event{Kind: transport.Data, Conn: l.remoteConn, Addr: e.Name, Data: chunk})
		data = data[size:]
	}
	return nil
}

// Disconnect closes conn. Both sides receive Disconnected.
func (e *Endpoint) Disconnect(conn string) error {
	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := e.links[conn]
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrUnknownConn, conn)
	}
	delete(e.links, conn)
	delete(l.remote.links, l.remoteConn)
	n.enqueue(e, transport.Event{Kind: transport.Disconnected, Conn: conn, Addr: l.remote.Name})
	n.enqueue(l.remote, transport.Event{Kind: transport.Disconnected, Conn: l.remoteConn, Addr: e.Name})
	return nil
}

// Inject queues raw bytes as if the remote side of conn had sent them.
func (e *Endpoint) Inject(conn string, data []byte) {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	e.net.enqueue(e, transport.Event{Kind: transport.Data, Conn: conn, Data: append([]byte(nil), data...)})
}

// ErrTooManyEvents is returned by Run when the network does not settle.
var ErrTooManyEvents = errors.New("network did not settle")

// Run delivers queued events until none are left and returns how many it
// delivered. It stops at the first handler error.
func (n *Network) Run() (int, error) {
	delivered := 0
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return delivered, nil
		}
		d := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		if delivered >= 100000 {
			return delivered, ErrTooManyEvents
		}
		delivered++
		if d.to.handler == nil {
			continue
		}
		if err := d.to.handler(d.ev); err != nil {
			return delivered, err
		}
	}
}

// Pending returns the number of undelivered events.
func (n *Network) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
