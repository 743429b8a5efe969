package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// Stdout writes events as JSON lines. Safe for concurrent use.
type Stdout struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewStdout creates a JSONL sink. A nil writer defaults to os.Stdout.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w, enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, ev suggest.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

func (s *Stdout) Close() error { return nil }
