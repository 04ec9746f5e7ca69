// Package wsbus carries the transport substrate over websocket connections.
//
// Each connection exchanges JSON frames. Clients send command, request,
// subscribe and unsubscribe frames; the server answers with reply, update and
// error frames. Request and subscribe frames carry an id that the answer
// echoes back.
package wsbus

// Frame ops.
const (
	OpCommand     = "command"
	OpRequest     = "request"
	OpReply       = "reply"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpUpdate      = "update"
	OpError       = "error"
)

// Frame is one websocket message.
type Frame struct {
	Op      string `json:"op"`
	Name    string `json:"name,omitempty"`
	ID      uint64 `json:"id,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}
