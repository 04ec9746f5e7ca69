package streamsync

import (
	"time"

	"github.com/rs/zerolog"

	"collectord/internal/event"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultCompositeType    = "SyncEvent"
	defaultMaxPending       = 64
	defaultStragglerTimeout = 2 * time.Second
)

// Sink receives assembled composite events in trigger order.
type Sink interface {
	OnCompositeEvent(ev *event.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev *event.Event)

func (f SinkFunc) OnCompositeEvent(ev *event.Event) { f(ev) }

// Config encapsulates all tunables for Synchronizer construction.
type Config struct {
	Sink Sink
	// CompositeType is the Type of assembled events.
	CompositeType string
	// MaxPending forces a round once any queue holds this many events.
	MaxPending int
	// StragglerTimeout forces a round once the oldest queued event waited this
	// long. Negative disables the timeout.
	StragglerTimeout time.Duration
	Logger           *zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}
