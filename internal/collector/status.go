package collector

import (
	"time"

	"collectord/pkg/types"
)

// Stats returns the reception counters.
func (h *Hub) Stats() types.Stats { return h.stats.snapshot() }

// Status builds the response for /status.
func (h *Hub) Status() types.StatusResponse {
	h.mu.Lock()
	resp := types.StatusResponse{
		Collector: h.name,
		State:     h.state.String(),
	}
	if h.state == types.ServerRunning {
		resp.UptimeSeconds = int64(time.Since(h.startedAt).Seconds())
	}
	producers := h.producers
	h.mu.Unlock()

	resp.HasEvent = h.buffer.HasDecoded()
	if n, ok := h.buffer.TriggerN(); ok {
		resp.TriggerN = &n
	}
	subs := h.registry.Snapshot()
	resp.Subscribers = make([]types.SubscriberStatus, 0, len(subs))
	for _, s := range subs {
		resp.Subscribers = append(resp.Subscribers, types.SubscriberStatus{
			ClientID: int32(s.ID),
			Mode:     s.Mode.String(),
			Filter:   s.Filter,
		})
	}
	if producers != nil {
		resp.Producers = producers.Producers()
		if t, ok := producers.Target(); ok {
			resp.NextTrigger = &t
		}
	}
	resp.Stats = h.stats.snapshot()
	return resp
}
