package wsbus

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collectord/internal/transport"
)

const prefix = "BUS/test/"

func newBus(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(Config{})
	if err := srv.BindRequest(prefix+"WHOAMI", func(id transport.ClientID, _ []byte) []byte {
		return transport.EncodeInt32(int32(id))
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func whoami(t *testing.T, c *Client) transport.ClientID {
	t.Helper()
	b, err := c.Request(ctxT(t), prefix+"WHOAMI", nil)
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	id, err := transport.DecodeInt32(b)
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	return transport.ClientID(id)
}

func announce(t *testing.T, srv *Server) {
	t.Helper()
	if err := srv.Announce(context.Background(), prefix); err != nil {
		t.Fatalf("announce: %v", err)
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		var zero T
		t.Fatalf("timed out waiting for value")
		return zero
	}
}

func expectNone[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCommandAndRequest(t *testing.T) {
	srv, url := newBus(t)
	type cmd struct {
		id      transport.ClientID
		payload string
	}
	cmds := make(chan cmd, 1)
	if err := srv.BindCommand(prefix+"CMD", func(id transport.ClientID, p []byte) {
		cmds <- cmd{id, string(p)}
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := srv.BindRequest(prefix+"ECHO", func(_ transport.ClientID, p []byte) []byte {
		return append([]byte("echo:"), p...)
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	announce(t, srv)

	c := dial(t, url)
	id := whoami(t, c)
	if id != 1 {
		t.Fatalf("expected first client id 1, got %d", id)
	}
	if err := c.Command(prefix+"CMD", []byte("hi")); err != nil {
		t.Fatalf("command: %v", err)
	}
	got := recv(t, cmds)
	if got.id != id || got.payload != "hi" {
		t.Fatalf("unexpected command %+v", got)
	}
	reply, err := c.Request(ctxT(t), prefix+"ECHO", []byte("x"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(reply) != "echo:x" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestUnannouncedNamesAreUnreachable(t *testing.T) {
	srv, url := newBus(t)
	c := dial(t, url)
	_, err := c.Request(ctxT(t), prefix+"WHOAMI", nil)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError before announce, got %v", err)
	}
	announce(t, srv)
	whoami(t, c)
}

func TestSubscribeDeliversCurrentValueThenUpdates(t *testing.T) {
	srv, url := newBus(t)
	if err := srv.PublishService(prefix+"STATE", []byte{0}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	announce(t, srv)
	if err := srv.UpdateService(prefix+"STATE", []byte{1}); err != nil {
		t.Fatalf("update: %v", err)
	}

	c := dial(t, url)
	updates := make(chan []byte, 4)
	if err := c.Subscribe(ctxT(t), prefix+"STATE", func(p []byte) { updates <- p }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := recv(t, updates); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected current value 1, got %v", got)
	}
	if err := srv.UpdateService(prefix+"STATE", []byte{2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := recv(t, updates); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected 2, got %v", got)
	}

	if err := c.Unsubscribe(prefix + "STATE"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	whoami(t, c) // orders the unsubscribe before the next update
	_ = srv.UpdateService(prefix+"STATE", []byte{3})
	expectNone(t, updates)
}

func TestSubscribeUnknownServiceFails(t *testing.T) {
	srv, url := newBus(t)
	announce(t, srv)
	c := dial(t, url)
	if err := c.Subscribe(ctxT(t), prefix+"MISSING", func([]byte) {}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSelectiveUpdateReachesOnlyListedSubscribers(t *testing.T) {
	srv, url := newBus(t)
	if err := srv.PublishService(prefix+"DATA", []byte("EMPTY")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	announce(t, srv)

	a, b := dial(t, url), dial(t, url)
	idA := whoami(t, a)
	whoami(t, b)
	fromA, fromB := make(chan []byte, 4), make(chan []byte, 4)
	if err := a.Subscribe(ctxT(t), prefix+"DATA", func(p []byte) { fromA <- p }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe(ctxT(t), prefix+"DATA", func(p []byte) { fromB <- p }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	recv(t, fromA)
	recv(t, fromB)

	if err := srv.UpdateServiceTo(prefix+"DATA", []byte("only-a"), []transport.ClientID{idA}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := recv(t, fromA); string(got) != "only-a" {
		t.Fatalf("unexpected payload %q", got)
	}
	expectNone(t, fromB)

	// Selective updates leave the stored value alone.
	late := dial(t, url)
	fromLate := make(chan []byte, 1)
	if err := late.Subscribe(ctxT(t), prefix+"DATA", func(p []byte) { fromLate <- p }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := recv(t, fromLate); string(got) != "EMPTY" {
		t.Fatalf("expected stored value EMPTY, got %q", got)
	}
}

func TestDisconnectNotifiesAndFreesID(t *testing.T) {
	srv, url := newBus(t)
	gone := make(chan transport.ClientID, 2)
	srv.OnClientDisconnect(func(id transport.ClientID) { gone <- id })
	announce(t, srv)

	a := dial(t, url)
	b := dial(t, url)
	idA := whoami(t, a)
	idB := whoami(t, b)
	if idA == idB {
		t.Fatalf("ids must be unique, both %d", idA)
	}
	if err := a.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	if got := recv(t, gone); got != idA {
		t.Fatalf("expected disconnect of %d, got %d", idA, got)
	}

	c := dial(t, url)
	if got := whoami(t, c); got != idA {
		t.Fatalf("expected lowest free id %d to be reused, got %d", idA, got)
	}
	if srv.Clients() != 2 {
		t.Fatalf("expected 2 clients, got %d", srv.Clients())
	}
}

func TestRetractUnbindsPrefix(t *testing.T) {
	srv, url := newBus(t)
	announce(t, srv)
	c := dial(t, url)
	whoami(t, c)

	srv.Retract(prefix)
	if _, err := c.Request(ctxT(t), prefix+"WHOAMI", nil); err == nil {
		t.Fatalf("expected error after retract")
	}
	if err := srv.BindRequest(prefix+"WHOAMI", func(transport.ClientID, []byte) []byte { return nil }); err != nil {
		t.Fatalf("rebinding after retract: %v", err)
	}
}

func TestBindCollision(t *testing.T) {
	srv, _ := newBus(t)
	if err := srv.PublishService(prefix+"WHOAMI", nil); !errors.Is(err, transport.ErrNameInUse) {
		t.Fatalf("expected ErrNameInUse, got %v", err)
	}
	if err := srv.UpdateService(prefix+"NOPE", nil); !errors.Is(err, transport.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}
