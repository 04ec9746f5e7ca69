package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid body
	Error string `json:"error" example:"invalid body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// SubscriberStatus summarizes one registered monitoring client.
type SubscriberStatus struct {
	// Transport connection id.
	// example: 3
	ClientID int32 `json:"client_id" example:"3"`
	// Delivery mode (pull or push).
	// example: push
	Mode string `json:"mode" example:"push"`
	// Sub-event filter; empty means the full event.
	// example: hits
	Filter string `json:"filter,omitempty" example:"hits"`
}

// ProducerStatus summarizes one producer connection of the synchronizer.
type ProducerStatus struct {
	// Producer id as given by the data server.
	// example: ecal
	ID string `json:"id" example:"ecal"`
	// False once the producer disconnected; kept until its queue drains.
	// example: true
	Active bool `json:"active" example:"true"`
	// Number of events waiting for alignment.
	// example: 2
	Queued int `json:"queued" example:"2"`
	// Trigger number of the queue front, if any.
	// example: 41
	FrontTrigger *uint64 `json:"front_trigger,omitempty" example:"41"`
}

// Stats is published on the STATS service and embedded in /status.
type Stats struct {
	// Number of accepted inbound payloads.
	// example: 1024
	Events uint64 `json:"events" example:"1024"`
	// Total size of accepted inbound payloads in bytes.
	// example: 5242880
	Bytes uint64 `json:"bytes" example:"5242880"`
	// Size of the most recent payload.
	// example: 5120
	LastSize int `json:"last_size" example:"5120"`
	// Number of payloads that could not be decoded.
	// example: 0
	DecodeFailures uint64 `json:"decode_failures" example:"0"`
	// Number of composite events assembled by the synchronizer.
	// example: 1000
	Composites uint64 `json:"composites" example:"1000"`
	// Start of the counting period (unix seconds).
	// example: 1700000000
	Since int64 `json:"since_unix" example:"1700000000"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Collector name used in the operation namespace.
	// example: ecal-dqm
	Collector string `json:"collector" example:"ecal-dqm"`
	// Server state (running or stopped).
	// example: running
	State string `json:"state" example:"running"`
	// Whether a decoded event is currently buffered.
	// example: true
	HasEvent bool `json:"has_event" example:"true"`
	// Trigger number of the buffered event, if decoded.
	// example: 41
	TriggerN *uint64 `json:"trigger_n,omitempty" example:"41"`
	// Registered subscribers.
	Subscribers []SubscriberStatus `json:"subscribers"`
	// Producer connections (sync mode only).
	Producers []ProducerStatus `json:"producers,omitempty"`
	// Next trigger number the synchronizer will assemble (sync mode only).
	// example: 42
	NextTrigger *uint64 `json:"next_trigger,omitempty" example:"42"`
	// Reception statistics.
	Stats Stats `json:"stats"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}
