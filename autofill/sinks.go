package autofill

import (
	"io"

	"github.com/infilloai/infillo-sub001/autofill/internal/sink"
)

// Sink receives engine events. Implementations must be safe for concurrent
// use; events are fire-and-forget from the engine's perspective.
type Sink = sink.Sink

// EventFunc adapts a plain function into a Sink.
type EventFunc = sink.EventFunc

// NewStdoutSink writes events as JSON lines to w.
func NewStdoutSink(w io.Writer) Sink { return sink.NewStdout(w) }

// NewWebhookSink POSTs events to url with retry and backoff.
func NewWebhookSink(url string) Sink { return sink.NewWebhook(url) }

// NewCallbackSink delivers events to fn.
func NewCallbackSink(fn EventFunc) Sink { return sink.NewCallback(fn) }

// NewSQLiteSink appends events to an SQLite database at path, creating the
// schema on first use.
func NewSQLiteSink(path string) (Sink, error) { return sink.NewSQLite(path) }
