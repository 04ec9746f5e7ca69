package collector

import (
	"collectord/internal/event"
	"collectord/internal/transport"
	"collectord/pkg/types"
)

// OnEventReceived stores a raw payload pushed by a single source and runs a
// publish round. Empty payloads are ignored. A payload that does not decode is
// still kept and pushed raw to unfiltered subscribers.
func (h *Hub) OnEventReceived(raw []byte) {
	if len(raw) == 0 {
		return
	}
	h.stats.received(len(raw))
	eventsReceivedTotal.Inc()
	bytesReceivedTotal.Add(float64(len(raw)))

	if err := h.buffer.Store(raw); err != nil {
		h.stats.decodeFailed()
		decodeFailuresTotal.Inc()
		h.log.Warn().Err(err).Int("size", len(raw)).Msg("couldn't deserialize the buffer")
		h.notify(Notice{Name: NoticeDecodeFailed, Fields: map[string]any{"size": len(raw)}})
	} else {
		h.log.Debug().Int("size", len(raw)).Msg("event received")
	}
	h.updateStats()
	h.Publish()
}

// OnCompositeEvent stores an event assembled by the synchronizer and runs a
// publish round.
func (h *Hub) OnCompositeEvent(ev *event.Event) {
	if ev == nil {
		return
	}
	if err := h.buffer.StoreDecoded(ev); err != nil {
		h.log.Error().Err(err).Uint64("trigger", ev.TriggerN).Msg("couldn't serialize composite event")
		return
	}
	h.stats.composite()
	h.updateStats()
	h.Publish()
}

func (h *Hub) updateStats() {
	name, running := h.surface()
	if !running {
		return
	}
	if err := h.sub.UpdateService(types.OperationName(name, types.OpStats), h.stats.payload()); err != nil {
		h.log.Debug().Err(err).Msg("stats update failed")
	}
}

// Publish pushes the buffered event to every push-mode subscriber. Filtered
// subscribers get their sub-event individually; the others get the raw payload
// in one selective update. A failing filter only skips its subscriber. A round
// whose payload did not decode sends the raw payload to everyone.
func (h *Hub) Publish() {
	name, running := h.surface()
	if !running {
		return
	}
	snap := h.buffer.Snapshot()
	if !snap.HasRaw() {
		return
	}
	svc := types.OperationName(name, types.OpEventRawUpdate)

	type extraction struct {
		payload []byte
		err     error
	}
	extracted := make(map[string]extraction)
	var broadcast []transport.ClientID

	for id, filter := range h.registry.PushSubscribers() {
		if filter == "" || !snap.Fresh {
			broadcast = append(broadcast, id)
			continue
		}
		x, ok := extracted[filter]
		if !ok {
			x.payload, x.err = snap.SubEvent(filter)
			extracted[filter] = x
		}
		if x.err != nil {
			deliveriesTotal.WithLabelValues("skipped").Inc()
			h.log.Warn().Err(x.err).Int32("client_id", int32(id)).Msg("couldn't write event (sub event serialization)")
			continue
		}
		if err := h.sub.UpdateServiceTo(svc, x.payload, []transport.ClientID{id}); err != nil {
			h.log.Warn().Err(err).Int32("client_id", int32(id)).Msg("sub event delivery failed")
			continue
		}
		deliveriesTotal.WithLabelValues("filtered").Inc()
	}

	if len(broadcast) == 0 {
		return
	}
	h.log.Debug().Int("clients", len(broadcast)).Msg("sending updates")
	if err := h.sub.UpdateServiceTo(svc, snap.Raw, broadcast); err != nil {
		h.log.Warn().Err(err).Msg("event delivery failed")
		return
	}
	deliveriesTotal.WithLabelValues("broadcast").Add(float64(len(broadcast)))
}

// OnPullRequest answers a synchronous pull. A non-empty identifier is tried
// against the decoded event when it matches the payload; any failure falls back
// to the raw payload, then the empty sentinel.
func (h *Hub) OnPullRequest(identifier string) []byte {
	snap := h.buffer.Snapshot()
	if identifier != "" && snap.Fresh {
		b, err := snap.SubEvent(identifier)
		if err == nil {
			pullRequestsTotal.WithLabelValues("filtered").Inc()
			return b
		}
		h.log.Debug().Err(err).Str("identifier", identifier).Msg("pull fallback to raw event")
	}
	if !snap.HasRaw() {
		pullRequestsTotal.WithLabelValues("empty").Inc()
	} else {
		pullRequestsTotal.WithLabelValues("raw").Inc()
	}
	return snap.RawOrSentinel()
}
