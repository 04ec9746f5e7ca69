package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collectord/internal/event"
	"collectord/internal/transport"
	"collectord/pkg/types"
)

// ProducerSource reports synchronizer state for Status.
type ProducerSource interface {
	Producers() []types.ProducerStatus
	Target() (uint64, bool)
}

// Hub is the distribution hub of one collector.
type Hub struct {
	mu        sync.Mutex
	state     types.ServerState
	name      string
	startedAt time.Time

	sub      transport.Substrate
	registry *Registry
	buffer   *EventBuffer
	stats    *statsCounter
	log      zerolog.Logger
	pub      NoticePublisher
	announce time.Duration

	producers ProducerSource
}

// New returns a stopped hub named name on substrate sub, decoding with the
// JSON serializer.
func New(sub transport.Substrate, name string) *Hub {
	return NewWithConfig(HubConfig{
		CollectorName: name,
		Substrate:     sub,
		Serializer:    event.NewJSONSerializer(),
	})
}

// Name returns the collector name.
func (h *Hub) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// SetCollectorName renames the collector. Not allowed while running.
func (h *Hub) SetCollectorName(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == types.ServerRunning {
		return ErrCollectorRunning
	}
	h.name = name
	return nil
}

// SetSerializer swaps the serializer used by the buffer.
func (h *Hub) SetSerializer(ser event.Serializer) { h.buffer.SetSerializer(ser) }

// SetEventPublisher installs a notice publisher; nil restores the no-op default.
func (h *Hub) SetEventPublisher(p NoticePublisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	h.pub = p
}

// SetProducerSource attaches a synchronizer for status reporting.
func (h *Hub) SetProducerSource(p ProducerSource) {
	h.mu.Lock()
	h.producers = p
	h.mu.Unlock()
}

// Registry exposes the subscriber registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Buffer exposes the event buffer.
func (h *Hub) Buffer() *EventBuffer { return h.buffer }

// Running reports whether the hub is published and accepting traffic.
func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == types.ServerRunning
}

// Ready is an alias of Running used by readiness probes.
func (h *Hub) Ready() bool { return h.Running() }

func (h *Hub) notify(n Notice) {
	h.mu.Lock()
	p := h.pub
	h.mu.Unlock()
	p.Publish(n)
}

// op names an operation of this collector. Callers must hold h.mu.
func (h *Hub) op(o types.Operation) string { return types.OperationName(h.name, o) }

// surface returns the collector name and whether the surface is published.
func (h *Hub) surface() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name, h.state == types.ServerRunning
}

// Start binds the collector surface on the substrate, announces it and switches
// to running once the substrate confirms. It is a no-op when already running.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == types.ServerRunning {
		return nil
	}
	prefix := types.CollectorPrefix(h.name)
	var bound []string
	fail := func(stage string, err error) error {
		for _, n := range bound {
			h.sub.Retract(n)
		}
		h.log.Error().Err(err).Str("collector", h.name).Str("stage", stage).Msg("collector start failed")
		return &StartupError{Collector: h.name, Stage: stage, Err: err}
	}

	name := h.op(types.OpEventRawRequest)
	if err := h.sub.BindRequest(name, h.handleEventRequest); err != nil {
		return fail("bind request", err)
	}
	bound = append(bound, name)
	commands := []struct {
		op types.Operation
		fn transport.CommandHandler
	}{
		{types.OpUpdateMode, h.handleUpdateMode},
		{types.OpCollectRawEvent, h.handleCollectEvent},
		{types.OpSubEventIdentifier, h.handleSubEventIdentifier},
		{types.OpClientRegistration, h.handleClientRegistration},
	}
	for _, c := range commands {
		name := h.op(c.op)
		if err := h.sub.BindCommand(name, c.fn); err != nil {
			return fail("bind command", err)
		}
		bound = append(bound, name)
	}
	services := []struct {
		op      types.Operation
		initial []byte
	}{
		{types.OpEventRawUpdate, types.EmptySentinel},
		{types.OpStats, h.stats.payload()},
		{types.OpClientRegistered, transport.EncodeInt32(0)},
		{types.OpServerState, transport.EncodeInt32(int32(types.ServerStopped))},
	}
	for _, s := range services {
		name := h.op(s.op)
		if err := h.sub.PublishService(name, s.initial); err != nil {
			return fail("publish service", err)
		}
		bound = append(bound, name)
	}

	actx, cancel := context.WithTimeout(ctx, h.announce)
	defer cancel()
	if err := h.sub.Announce(actx, prefix); err != nil {
		return fail("announce", err)
	}

	h.state = types.ServerRunning
	h.startedAt = time.Now()
	if err := h.sub.UpdateService(h.op(types.OpServerState), transport.EncodeInt32(int32(types.ServerRunning))); err != nil {
		h.log.Warn().Err(err).Msg("server state update failed")
	}
	h.log.Info().Str("collector", h.name).Msg("collector running")
	h.pub.Publish(Notice{Name: NoticeServerStart, Fields: map[string]any{"collector": h.name}})
	return nil
}

// Stop informs clients, retracts the surface and resets the buffer. It is a
// no-op when already stopped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == types.ServerStopped {
		return nil
	}
	h.state = types.ServerStopped
	if err := h.sub.UpdateService(h.op(types.OpServerState), transport.EncodeInt32(int32(types.ServerStopped))); err != nil {
		h.log.Warn().Err(err).Msg("server state update failed")
	}
	h.sub.Retract(types.CollectorPrefix(h.name))
	h.buffer.Reset()
	h.log.Info().Str("collector", h.name).Msg("collector stopped")
	h.pub.Publish(Notice{Name: NoticeServerStop, Fields: map[string]any{"collector": h.name}})
	return nil
}
