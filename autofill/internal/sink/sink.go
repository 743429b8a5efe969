// Package sink implements event output backends for the autofill engine.
// Sinks receive the fire-and-forget analytics and lifecycle events the engine
// produces for the message-relay collaborator.
package sink

import (
	"context"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// Sink is the output interface for engine events.
type Sink interface {
	Send(ctx context.Context, ev suggest.Event) error
	Close() error
}
