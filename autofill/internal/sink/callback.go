package sink

import (
	"context"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// EventFunc is called for each event.
type EventFunc func(ctx context.Context, ev suggest.Event) error

// Callback is an in-process sink for host integrations, with no serialisation.
type Callback struct {
	onEvent EventFunc
}

// NewCallback creates a callback sink. A nil function makes Send a no-op.
func NewCallback(onEvent EventFunc) *Callback {
	return &Callback{onEvent: onEvent}
}

func (c *Callback) Send(ctx context.Context, ev suggest.Event) error {
	if c.onEvent == nil {
		return nil
	}
	return c.onEvent(ctx, ev)
}

func (c *Callback) Close() error { return nil }
