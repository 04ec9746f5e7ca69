package event

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// JSONSerializer encodes events as JSON. Sub-event identifiers are either the
// name of a top-level collection or a gjson path evaluated on the encoded event,
// e.g. `sub_events.#(producer=="ecal")`.
type JSONSerializer struct{}

// NewJSONSerializer returns the default serializer.
func NewJSONSerializer() JSONSerializer { return JSONSerializer{} }

func (JSONSerializer) Name() string { return "json" }

func (JSONSerializer) Encode(ev *Event) ([]byte, error) {
	if ev == nil {
		return nil, ErrNoEvent
	}
	return json.Marshal(ev)
}

func (JSONSerializer) Decode(b []byte) (*Event, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrEmptyPayload
	}
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("decode event: invalid json")
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

func (s JSONSerializer) EncodeSubEvent(ev *Event, identifier string) ([]byte, error) {
	if ev == nil {
		return nil, ErrNoEvent
	}
	if identifier == "" {
		return s.Encode(ev)
	}
	if raw, ok := ev.Collections[identifier]; ok {
		return append([]byte(nil), raw...), nil
	}
	full, err := s.Encode(ev)
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(full, identifier)
	if !res.Exists() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubEvent, identifier)
	}
	return []byte(res.Raw), nil
}
