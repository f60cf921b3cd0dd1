package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thomasrohde/chrono/pkg/transport"
)

// nextEvent waits for the next event of the given kind, skipping others.
func nextEvent(t *testing.T, tr *transport.TCP, kind transport.EventKind) transport.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-tr.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestTCP_Exchange(t *testing.T) {
	tr := transport.NewTCP()
	defer tr.Close()

	addr, err := tr.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	client, err := tr.Dial(context.Background(), addr.String())
	if err != nil {
		t.Fatal(err)
	}
	server := nextEvent(t, tr, transport.Connected).Conn
	if server == client {
		t.Fatal("both ends share an id")
	}

	if err := tr.Send(client, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Flush(client); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, tr, transport.Data)
	if ev.Conn != server || string(ev.Data) != "ping" {
		t.Fatalf("data event = %+v", ev)
	}

	if err := tr.Send(server, []byte("pong")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Flush(server); err != nil {
		t.Fatal(err)
	}
	ev = nextEvent(t, tr, transport.Data)
	if ev.Conn != client || string(ev.Data) != "pong" {
		t.Fatalf("data event = %+v", ev)
	}

	if err := tr.Disconnect(client); err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for len(seen) < 2 {
		seen[nextEvent(t, tr, transport.Disconnected).Conn] = true
	}
	if !seen[client] || !seen[server] {
		t.Errorf("disconnected = %v", seen)
	}
	if err := tr.Send(client, []byte("x")); !errors.Is(err, transport.ErrUnknownConn) {
		t.Errorf("send after disconnect: %v", err)
	}
}

func TestTCP_DialFailure(t *testing.T) {
	tr := transport.NewTCP()
	defer tr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := tr.Dial(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("dial to a closed port succeeded")
	}
}

func TestTCP_CloseIsIdempotent(t *testing.T) {
	tr := transport.NewTCP()
	if _, err := tr.Listen("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Listen("127.0.0.1:0"); err == nil {
		t.Error("listen after close succeeded")
	}
}
