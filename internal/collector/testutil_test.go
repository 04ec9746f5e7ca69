package collector

import (
	"context"
	"testing"

	"collectord/internal/transport"
	"collectord/pkg/types"
)

const testCollector = "test"

func opName(o types.Operation) string { return types.OperationName(testCollector, o) }

// newRunningHub returns a started hub on an in-memory substrate.
func newRunningHub(t *testing.T) (*Hub, *transport.Memory) {
	t.Helper()
	mem := transport.NewMemory()
	h := New(mem, testCollector)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = h.Stop() })
	return h, mem
}

// subscribe registers client id and configures its mode and filter through the
// named commands, the way a remote monitor would.
func subscribe(t *testing.T, mem *transport.Memory, id transport.ClientID, push bool, filter string) {
	t.Helper()
	if !mem.Command(opName(types.OpClientRegistration), id, transport.EncodeInt32(1)) {
		t.Fatalf("registration command not bound")
	}
	mode := int32(0)
	if push {
		mode = 1
	}
	mem.Command(opName(types.OpUpdateMode), id, transport.EncodeInt32(mode))
	if filter != "" {
		mem.Command(opName(types.OpSubEventIdentifier), id, []byte(filter))
	}
}

// eventDeliveries returns EVENT_RAW_UPDATE deliveries keyed by client id.
func eventDeliveries(mem *transport.Memory) map[transport.ClientID][][]byte {
	out := make(map[transport.ClientID][][]byte)
	for _, d := range mem.Deliveries() {
		if d.Service != opName(types.OpEventRawUpdate) {
			continue
		}
		for _, c := range d.Clients {
			out[c] = append(out[c], d.Payload)
		}
	}
	return out
}

const sampleEvent = `{"type":"Raw","producer":"ecal","trigger_n":3,"collections":{"hits":[1,2,3],"clusters":{"n":1}}}`
