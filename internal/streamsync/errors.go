package streamsync

import (
	"errors"
	"fmt"
)

// ErrNilEvent is returned by OnEventArrived for a nil event.
var ErrNilEvent = errors.New("nil event")

// OutOfOrderError reports an event whose trigger number went backwards for its
// producer. The event is dropped and the queue left untouched.
type OutOfOrderError struct {
	Producer string
	Trigger  uint64
	Last     uint64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("producer %s: trigger %d after %d", e.Producer, e.Trigger, e.Last)
}

// IsOutOfOrder reports whether err is an OutOfOrderError.
func IsOutOfOrder(err error) bool {
	var oe *OutOfOrderError
	return errors.As(err, &oe)
}
