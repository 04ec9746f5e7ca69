package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"collectord/internal/collector"
	"collectord/internal/dataserver"
	"collectord/internal/event"
	"collectord/internal/httpapi"
	"collectord/internal/streamsync"
	"collectord/internal/transport"
	"collectord/internal/transport/wsbus"
	"collectord/pkg/types"
)

const collectorName = "e2e"

// stack is one collector wired the way serve wires it, behind httptest.
type stack struct {
	srv  *httptest.Server
	hub  *collector.Hub
	bus  *wsbus.Server
	sync *streamsync.Synchronizer
}

func newStack(t *testing.T, withSync bool) *stack {
	t.Helper()
	nop := zerolog.Nop()
	bus := wsbus.NewServer(wsbus.Config{Logger: &nop})
	hub := collector.NewWithConfig(collector.HubConfig{
		CollectorName: collectorName,
		Substrate:     bus,
		Serializer:    event.NewJSONSerializer(),
		Logger:        &nop,
	})
	st := &stack{hub: hub, bus: bus}
	mounts := httpapi.Mounts{Bus: bus}
	if withSync {
		st.sync = streamsync.NewWithConfig(streamsync.Config{
			Sink:             hub,
			StragglerTimeout: -1,
			Logger:           &nop,
		})
		hub.SetProducerSource(st.sync)
		mounts.Producers = dataserver.New(dataserver.Config{Receiver: st.sync, Logger: &nop})
	}
	st.srv = httptest.NewServer(httpapi.NewMux(hub, mounts))
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(func() {
		_ = hub.Stop()
		bus.Close()
		st.srv.Close()
	})
	return st
}

func (st *stack) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(st.srv.URL, "http") + path
}

func op(o types.Operation) string { return types.OperationName(collectorName, o) }

func dialBus(t *testing.T, st *stack) *wsbus.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := wsbus.Dial(ctx, st.wsURL("/ws"))
	if err != nil {
		t.Fatalf("dial bus: %v", err)
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

// subscribeChan subscribes to name and forwards every update after the
// initial value to the returned channel.
func subscribeChan(t *testing.T, c *wsbus.Client, name string) (initial []byte, updates <-chan []byte) {
	t.Helper()
	ch := make(chan []byte, 16)
	first := make(chan []byte, 1)
	seen := false
	if err := c.Subscribe(ctxT(t), name, func(p []byte) {
		if !seen {
			seen = true
			first <- p
			return
		}
		ch <- p
	}); err != nil {
		t.Fatalf("subscribe %s: %v", name, err)
	}
	return recv(t, first), ch
}

// register performs the registration handshake and returns the acknowledged id.
func register(t *testing.T, c *wsbus.Client) int32 {
	t.Helper()
	_, acks := subscribeChan(t, c, op(types.OpClientRegistered))
	if err := c.Command(op(types.OpClientRegistration), transport.EncodeInt32(1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	id, err := transport.DecodeInt32(recv(t, acks))
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return id
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

func expectNone[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	case <-time.After(d):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPost(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
