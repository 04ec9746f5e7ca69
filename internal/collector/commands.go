package collector

import (
	"collectord/internal/transport"
	"collectord/pkg/types"
)

func (h *Hub) handleEventRequest(_ transport.ClientID, payload []byte) []byte {
	return h.OnPullRequest(transport.DecodeString(payload))
}

func (h *Hub) handleCollectEvent(_ transport.ClientID, payload []byte) {
	h.OnEventReceived(payload)
}

func (h *Hub) handleUpdateMode(client transport.ClientID, payload []byte) {
	v, err := transport.DecodeInt32(payload)
	if err != nil {
		h.log.Debug().Err(err).Int32("client_id", int32(client)).Msg("bad update mode payload")
		return
	}
	mode := types.ModePull
	if v != 0 {
		mode = types.ModePush
	}
	if !h.registry.SetDeliveryMode(client, mode) {
		h.log.Debug().Int32("client_id", int32(client)).Msg("update mode from unregistered client ignored")
	}
}

func (h *Hub) handleSubEventIdentifier(client transport.ClientID, payload []byte) {
	if !h.registry.SetFilter(client, transport.DecodeString(payload)) {
		h.log.Debug().Int32("client_id", int32(client)).Msg("sub event identifier from unregistered client ignored")
	}
}

func (h *Hub) handleClientRegistration(client transport.ClientID, payload []byte) {
	if client < 0 {
		return
	}
	v, err := transport.DecodeInt32(payload)
	if err != nil {
		h.log.Debug().Err(err).Int32("client_id", int32(client)).Msg("bad registration payload")
		return
	}
	if v == 0 {
		h.removeClient(client)
		return
	}
	if _, created := h.registry.Register(client); created {
		subscribersGauge.Inc()
		h.log.Info().Int32("client_id", int32(client)).Msg("client added to server")
		h.notify(Notice{Name: NoticeClientRegistered, ClientID: int32(client)})
	}
	name, running := h.surface()
	if !running {
		return
	}
	ack := transport.EncodeInt32(int32(client))
	if err := h.sub.UpdateServiceTo(types.OperationName(name, types.OpClientRegistered), ack, []transport.ClientID{client}); err != nil {
		h.log.Warn().Err(err).Int32("client_id", int32(client)).Msg("registration acknowledgement failed")
	}
}

func (h *Hub) handleClientExit(client transport.ClientID) { h.removeClient(client) }

func (h *Hub) removeClient(client transport.ClientID) {
	if client < 0 || !h.registry.Remove(client) {
		return
	}
	subscribersGauge.Dec()
	h.log.Info().Int32("client_id", int32(client)).Msg("client removed from server")
	h.notify(Notice{Name: NoticeClientRemoved, ClientID: int32(client)})
}
