package collector

import (
	"errors"
	"fmt"
)

// ErrCollectorRunning is returned when a setting cannot change while running.
var ErrCollectorRunning = errors.New("collector is running")

// SerializationError reports a decode, encode or sub-event extraction failure.
// The buffer keeps its previous decoded state when one is returned.
type SerializationError struct {
	Op         string
	Identifier string
	Err        error
}

func (e *SerializationError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Identifier, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// IsSerialization reports whether err is a SerializationError.
func IsSerialization(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}

// StartupError signals that the collector surface could not be established.
// The hub stays stopped when Start returns one.
type StartupError struct {
	Collector string
	Stage     string
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("start collector %q: %s: %v", e.Collector, e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// IsStartupFatal reports whether err aborted Start.
func IsStartupFatal(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}

var (
	errNoSerializer  = errors.New("no serializer configured")
	errEmptyEncoding = errors.New("serializer produced an empty payload")
)
