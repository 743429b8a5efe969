package autofill

import (
	"errors"
	"fmt"
)

// ErrOriginBlocked is returned by Start when the page origin appears on the
// configured blocklist. The engine stays Inactive and OriginBlocked reports
// true until the next start attempt.
type ErrOriginBlocked struct {
	Origin string
}

func (e *ErrOriginBlocked) Error() string {
	return fmt.Sprintf("autofill: origin blocked: %s", e.Origin)
}

// ErrNotActive is returned by operations that require a running engine.
var ErrNotActive = errors.New("autofill: engine not active")

// ErrNoSession is returned when a field operation arrives before any
// detection session exists.
var ErrNoSession = errors.New("autofill: no detection session")

// ErrFieldUnknown is returned when a handle does not match any field of the
// current detection session.
type ErrFieldUnknown struct {
	Handle string
}

func (e *ErrFieldUnknown) Error() string {
	return fmt.Sprintf("autofill: unknown field handle: %s", e.Handle)
}
