// Package event defines the measurement event exchanged between producers, the
// synchronizer and the distribution hub, plus the pluggable serializer that turns
// events into bytes. The hub never interprets event contents; it only asks the
// serializer to decode, encode, or cut out a named sub-event.
package event

import (
	"encoding/json"
	"errors"
)

// Event is one trigger occurrence as seen by a producer, or a composite of
// several producer events sharing a trigger number.
type Event struct {
	Type        string                     `json:"type"`
	Producer    string                     `json:"producer,omitempty"`
	RunNumber   uint32                     `json:"run_number,omitempty"`
	TriggerN    uint64                     `json:"trigger_n"`
	Timestamp   int64                      `json:"timestamp,omitempty"`
	Collections map[string]json.RawMessage `json:"collections,omitempty"`
	SubEvents   []*Event                   `json:"sub_events,omitempty"`
}

// AddSubEvent appends sub to the composite e.
func (e *Event) AddSubEvent(sub *Event) {
	e.SubEvents = append(e.SubEvents, sub)
}

// SubEventProducers lists the producers of e's sub-events in order.
func (e *Event) SubEventProducers() []string {
	out := make([]string, 0, len(e.SubEvents))
	for _, s := range e.SubEvents {
		out = append(out, s.Producer)
	}
	return out
}

var (
	// ErrNoEvent is returned when an operation needs a decoded event and there is none.
	ErrNoEvent = errors.New("no decoded event")
	// ErrUnknownSubEvent is returned when an identifier does not name any part of the event.
	ErrUnknownSubEvent = errors.New("unknown sub-event identifier")
	// ErrEmptyPayload is returned when decoding a zero-length payload.
	ErrEmptyPayload = errors.New("empty payload")
)

// Serializer encodes and decodes events. EncodeSubEvent must be able to extract a
// named part of an event without the caller knowing anything about the encoding.
type Serializer interface {
	Name() string
	Encode(ev *Event) ([]byte, error)
	Decode(b []byte) (*Event, error)
	EncodeSubEvent(ev *Event, identifier string) ([]byte, error)
}
