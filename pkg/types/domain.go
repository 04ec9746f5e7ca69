package types

import "strings"

// EmptySentinel is the payload sent in place of an event when nothing has been
// received yet. It is never a valid encoded event.
var EmptySentinel = []byte("EMPTY")

// IsEmptySentinel reports whether b is the empty-sentinel payload.
func IsEmptySentinel(b []byte) bool { return string(b) == string(EmptySentinel) }

// ServerState is the collector state published on the SERVER_STATE service.
type ServerState int32

const (
	ServerStopped ServerState = 0
	ServerRunning ServerState = 1
)

func (s ServerState) String() string {
	if s == ServerRunning {
		return "running"
	}
	return "stopped"
}

// DeliveryMode selects whether a subscriber gets pushed updates.
type DeliveryMode int32

const (
	// ModePull is the initial mode: the subscriber only receives data it asks for.
	ModePull DeliveryMode = 0
	// ModePush delivers every new event (or its filtered sub-event).
	ModePush DeliveryMode = 1
)

func (m DeliveryMode) String() string {
	if m == ModePush {
		return "push"
	}
	return "pull"
}

// ServicePrefix is the root of every collector operation name.
const ServicePrefix = "DQM4HEP/EventCollector/"

// Operation identifies one named command, request or service exposed by a collector.
type Operation int

const (
	OpUnknown Operation = iota
	OpCollectRawEvent
	OpUpdateMode
	OpSubEventIdentifier
	OpClientRegistration
	OpEventRawRequest
	OpEventRawUpdate
	OpClientRegistered
	OpServerState
	OpStats
)

var opNames = map[Operation]string{
	OpCollectRawEvent:    "COLLECT_RAW_EVENT",
	OpUpdateMode:         "UPDATE_MODE",
	OpSubEventIdentifier: "SUB_EVENT_IDENTIFIER",
	OpClientRegistration: "CLIENT_REGISTRATION",
	OpEventRawRequest:    "EVENT_RAW_REQUEST",
	OpEventRawUpdate:     "EVENT_RAW_UPDATE",
	OpClientRegistered:   "CLIENT_REGISTERED",
	OpServerState:        "SERVER_STATE",
	OpStats:              "STATS",
}

func (o Operation) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "UNKNOWN"
}

// OperationName returns the full name of op for the given collector.
func OperationName(collector string, op Operation) string {
	return CollectorPrefix(collector) + op.String()
}

// CollectorPrefix returns the name prefix shared by all operations of a collector.
func CollectorPrefix(collector string) string {
	return ServicePrefix + collector + "/"
}

// ParseOperation maps a full operation name back to its collector and Operation.
// Names outside the collector namespace yield OpUnknown.
func ParseOperation(name string) (collector string, op Operation) {
	rest, ok := strings.CutPrefix(name, ServicePrefix)
	if !ok {
		return "", OpUnknown
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 {
		return "", OpUnknown
	}
	collector, short := rest[:i], rest[i+1:]
	for o, n := range opNames {
		if n == short {
			return collector, o
		}
	}
	return collector, OpUnknown
}
