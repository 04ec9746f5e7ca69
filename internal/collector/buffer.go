package collector

import (
	"slices"
	"sync"

	"collectord/internal/event"
	"collectord/pkg/types"
)

// EventBuffer holds the most recent raw payload and the most recent decoded
// event. fresh is set while both describe the same event.
type EventBuffer struct {
	mu    sync.RWMutex
	ser   event.Serializer
	raw   []byte
	ev    *event.Event
	fresh bool
}

// Snapshot is one consistent view of the buffer. Event may be stale when Fresh
// is false.
type Snapshot struct {
	Raw   []byte
	Event *event.Event
	Fresh bool
	ser   event.Serializer
}

// HasRaw reports whether the snapshot holds a payload.
func (s Snapshot) HasRaw() bool { return len(s.Raw) > 0 }

// RawOrSentinel returns the payload, or the empty sentinel.
func (s Snapshot) RawOrSentinel() []byte {
	if len(s.Raw) == 0 {
		return slices.Clone(types.EmptySentinel)
	}
	return s.Raw
}

// SubEvent encodes the named part of the snapshot's decoded event.
func (s Snapshot) SubEvent(identifier string) ([]byte, error) {
	return extract(s.ser, s.Event, identifier)
}

// NewEventBuffer returns an empty buffer. A nil serializer keeps raw payloads only.
func NewEventBuffer(ser event.Serializer) *EventBuffer {
	return &EventBuffer{ser: ser}
}

// SetSerializer swaps the serializer used for later decodes and extractions.
func (b *EventBuffer) SetSerializer(ser event.Serializer) {
	b.mu.Lock()
	b.ser = ser
	b.mu.Unlock()
}

func (b *EventBuffer) serializer() event.Serializer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ser
}

// Store replaces the raw payload and tries to decode it. On decode failure the
// raw payload is kept, the previous decoded event is left in place and a
// SerializationError is returned.
func (b *EventBuffer) Store(raw []byte) error {
	cp := slices.Clone(raw)
	ser := b.serializer()
	var (
		ev  *event.Event
		err error
	)
	if ser != nil {
		ev, err = ser.Decode(cp)
	}
	b.mu.Lock()
	b.raw = cp
	b.fresh = err == nil && ev != nil
	if b.fresh {
		b.ev = ev
	}
	b.mu.Unlock()
	if err != nil {
		return &SerializationError{Op: "decode", Err: err}
	}
	return nil
}

// StoreDecoded replaces the decoded event and its canonical encoding together.
func (b *EventBuffer) StoreDecoded(ev *event.Event) error {
	ser := b.serializer()
	if ser == nil {
		return &SerializationError{Op: "encode", Err: errNoSerializer}
	}
	raw, err := ser.Encode(ev)
	if err != nil {
		return &SerializationError{Op: "encode", Err: err}
	}
	b.mu.Lock()
	b.raw = raw
	b.ev = ev
	b.fresh = true
	b.mu.Unlock()
	return nil
}

// Snapshot returns the payload, the decoded event and whether they match, all
// read under one lock.
func (b *EventBuffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{Raw: slices.Clone(b.raw), Event: b.ev, Fresh: b.fresh, ser: b.ser}
}

// SnapshotRaw returns a copy of the raw payload, or the empty sentinel.
func (b *EventBuffer) SnapshotRaw() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.raw) == 0 {
		return slices.Clone(types.EmptySentinel)
	}
	return slices.Clone(b.raw)
}

// HasRaw reports whether a raw payload is buffered.
func (b *EventBuffer) HasRaw() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.raw) > 0
}

// HasDecoded reports whether a decoded event is buffered.
func (b *EventBuffer) HasDecoded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ev != nil
}

// TriggerN returns the trigger number of the decoded event.
func (b *EventBuffer) TriggerN() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ev == nil {
		return 0, false
	}
	return b.ev.TriggerN, true
}

// ExtractSubEvent encodes the named part of the decoded event, stale or not.
func (b *EventBuffer) ExtractSubEvent(identifier string) ([]byte, error) {
	b.mu.RLock()
	ser, ev := b.ser, b.ev
	b.mu.RUnlock()
	return extract(ser, ev, identifier)
}

func extract(ser event.Serializer, ev *event.Event, identifier string) ([]byte, error) {
	if ev == nil {
		return nil, &SerializationError{Op: "extract", Identifier: identifier, Err: event.ErrNoEvent}
	}
	if ser == nil {
		return nil, &SerializationError{Op: "extract", Identifier: identifier, Err: errNoSerializer}
	}
	out, err := ser.EncodeSubEvent(ev, identifier)
	if err != nil {
		return nil, &SerializationError{Op: "extract", Identifier: identifier, Err: err}
	}
	if len(out) == 0 {
		return nil, &SerializationError{Op: "extract", Identifier: identifier, Err: errEmptyEncoding}
	}
	return out, nil
}

// Reset forgets the buffered payload and event.
func (b *EventBuffer) Reset() {
	b.mu.Lock()
	b.raw = nil
	b.ev = nil
	b.fresh = false
	b.mu.Unlock()
}
