package collector

import (
	"context"
	"errors"
	"testing"

	"collectord/internal/transport"
	"collectord/pkg/types"
)

func TestNewWithConfigDefaults(t *testing.T) {
	h := NewWithConfig(HubConfig{})
	if h.Name() != defaultCollectorName {
		t.Fatalf("name=%q", h.Name())
	}
	if h.announce != defaultAnnounceTimeout {
		t.Fatalf("announce=%v", h.announce)
	}
	if h.Running() {
		t.Fatalf("new hub must be stopped")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	mem := transport.NewMemory()
	h := New(mem, testCollector)
	pub := NewMemoryPublisher()
	h.SetEventPublisher(pub)

	for i := 0; i < 2; i++ {
		if err := h.Start(context.Background()); err != nil {
			t.Fatalf("start #%d: %v", i, err)
		}
	}
	if !h.Running() || !mem.Announced(types.CollectorPrefix(testCollector)) {
		t.Fatalf("hub not running/announced")
	}
	v, _ := mem.Service(opName(types.OpServerState))
	if s, _ := transport.DecodeInt32(v); s != 1 {
		t.Fatalf("SERVER_STATE=%d want 1", s)
	}
	for i := 0; i < 2; i++ {
		if err := h.Stop(); err != nil {
			t.Fatalf("stop #%d: %v", i, err)
		}
	}
	if h.Running() {
		t.Fatalf("still running after stop")
	}
	if _, ok := mem.Service(opName(types.OpServerState)); ok {
		t.Fatalf("surface not retracted")
	}
	if pub.Count(NoticeServerStart) != 1 || pub.Count(NoticeServerStop) != 1 {
		t.Fatalf("notices=%+v", pub.Notices())
	}
}

func TestStart_StopUpdatesStateBeforeRetract(t *testing.T) {
	h, mem := newRunningHub(t)
	mem.ResetDeliveries()
	_ = h.Stop()
	var last []byte
	for _, d := range mem.Deliveries() {
		if d.Service == opName(types.OpServerState) {
			last = d.Payload
		}
	}
	if s, err := transport.DecodeInt32(last); err != nil || s != 0 {
		t.Fatalf("SERVER_STATE on stop=%v err=%v", last, err)
	}
}

func TestStart_AnnounceFailureIsFatal(t *testing.T) {
	mem := transport.NewMemory()
	mem.FailAnnounce(errors.New("name server unreachable"))
	h := New(mem, testCollector)
	err := h.Start(context.Background())
	if !IsStartupFatal(err) {
		t.Fatalf("expected startup error, got %v", err)
	}
	if h.Running() {
		t.Fatalf("hub must stay stopped")
	}
	if mem.Command(opName(types.OpCollectRawEvent), 1, []byte("x")) {
		t.Fatalf("partially bound surface not retracted")
	}
}

func TestStart_NameCollisionIsFatal(t *testing.T) {
	mem := transport.NewMemory()
	a := New(mem, "same")
	b := New(mem, "same")
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start a: %v", err)
	}
	defer a.Stop()
	err := b.Start(context.Background())
	if !IsStartupFatal(err) || !errors.Is(err, transport.ErrNameInUse) {
		t.Fatalf("expected name collision, got %v", err)
	}
}

func TestSetCollectorName_RejectedWhileRunning(t *testing.T) {
	h, _ := newRunningHub(t)
	if err := h.SetCollectorName("other"); !errors.Is(err, ErrCollectorRunning) {
		t.Fatalf("expected ErrCollectorRunning, got %v", err)
	}
	_ = h.Stop()
	if err := h.SetCollectorName("other"); err != nil || h.Name() != "other" {
		t.Fatalf("rename after stop: %v %q", err, h.Name())
	}
}

func TestRegistration_AcknowledgedToRegisteringClientOnly(t *testing.T) {
	h, mem := newRunningHub(t)
	pub := NewMemoryPublisher()
	h.SetEventPublisher(pub)
	subscribe(t, mem, 7, false, "")

	var acks []transport.Delivery
	for _, d := range mem.Deliveries() {
		if d.Service == opName(types.OpClientRegistered) {
			acks = append(acks, d)
		}
	}
	if len(acks) != 1 || len(acks[0].Clients) != 1 || acks[0].Clients[0] != 7 {
		t.Fatalf("acks=%+v", acks)
	}
	if id, _ := transport.DecodeInt32(acks[0].Payload); id != 7 {
		t.Fatalf("ack payload=%d", id)
	}
	if _, ok := h.Registry().Lookup(7); !ok {
		t.Fatalf("client not registered")
	}
	if pub.Count(NoticeClientRegistered) != 1 {
		t.Fatalf("missing registration notice")
	}
}

func TestDeregistrationAndDisconnect(t *testing.T) {
	h, mem := newRunningHub(t)
	subscribe(t, mem, 1, true, "")
	subscribe(t, mem, 2, true, "")

	mem.Command(opName(types.OpClientRegistration), 1, transport.EncodeInt32(0))
	mem.Disconnect(2)
	mem.Disconnect(2)

	if h.Registry().Len() != 0 {
		t.Fatalf("registry=%+v", h.Registry().Snapshot())
	}
}

func TestModeChangeFromUnregisteredClientIgnored(t *testing.T) {
	h, mem := newRunningHub(t)
	mem.Command(opName(types.OpUpdateMode), 11, transport.EncodeInt32(1))
	mem.Command(opName(types.OpSubEventIdentifier), 11, []byte("hits"))
	mem.Command(opName(types.OpUpdateMode), 12, []byte{1})
	if h.Registry().Len() != 0 {
		t.Fatalf("unknown client created an entry")
	}
}

func TestStatus(t *testing.T) {
	h, mem := newRunningHub(t)
	subscribe(t, mem, 4, true, "hits")
	h.OnEventReceived([]byte(sampleEvent))

	st := h.Status()
	if st.State != "running" || st.Collector != testCollector {
		t.Fatalf("status=%+v", st)
	}
	if !st.HasEvent || st.TriggerN == nil || *st.TriggerN != 3 {
		t.Fatalf("event fields=%+v", st)
	}
	if len(st.Subscribers) != 1 || st.Subscribers[0].Mode != "push" || st.Subscribers[0].Filter != "hits" {
		t.Fatalf("subscribers=%+v", st.Subscribers)
	}
	if st.Stats.Events != 1 || st.Stats.Bytes != uint64(len(sampleEvent)) {
		t.Fatalf("stats=%+v", st.Stats)
	}
}

type fakeProducers struct{}

func (fakeProducers) Producers() []types.ProducerStatus {
	return []types.ProducerStatus{{ID: "a", Active: true, Queued: 1}}
}
func (fakeProducers) Target() (uint64, bool) { return 12, true }

func TestStatus_WithProducerSource(t *testing.T) {
	h, _ := newRunningHub(t)
	h.SetProducerSource(fakeProducers{})
	st := h.Status()
	if len(st.Producers) != 1 || st.NextTrigger == nil || *st.NextTrigger != 12 {
		t.Fatalf("status=%+v", st)
	}
}
