// Package scanner enumerates candidate fields from the live page and tracks
// which of them the engine has already seen.
package scanner

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

//go:embed scan.js
var scanJS string

// Evaluator runs a JS function expression in the page and returns its result
// as raw JSON. Implemented by the browser tab; tests use fakes.
type Evaluator interface {
	EvalJSON(ctx context.Context, js string) ([]byte, error)
}

// Scanner discovers candidate elements. It is pure with respect to engine
// state: the only page mutation is stamping each candidate with a stable
// handle attribute so later scans return the same identity for the same
// element.
type Scanner struct {
	ev     Evaluator
	logger *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a Scanner over the given page evaluator.
func New(ev Evaluator, opts ...Option) *Scanner {
	s := &Scanner{ev: ev, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan enumerates all currently eligible candidate elements: editable
// text-like inputs, textareas, contenteditable and textbox-role elements that
// are visible, enabled, writable, and not part of the engine's own overlay
// surfaces. Tree-query failures are treated as "no candidates"; the scanner
// never propagates them.
func (s *Scanner) Scan(ctx context.Context) []suggest.FieldDescriptor {
	raw, err := s.ev.EvalJSON(ctx, scanJS)
	if err != nil {
		s.logger.Warn("scanner: scan eval failed", "error", err)
		return nil
	}

	fields, err := decodeFields(raw)
	if err != nil {
		s.logger.Warn("scanner: parse scan result", "error", err)
		return nil
	}

	s.logger.Debug("scanner: scan complete", "candidates", len(fields))
	return fields
}

// decodeFields parses the eval result. The page runtime returns the candidate
// array directly; a runtime that stringifies its own return hands back a
// JSON-encoded string instead, so that form gets unwrapped once and reparsed.
func decodeFields(raw []byte) ([]suggest.FieldDescriptor, error) {
	var fields []suggest.FieldDescriptor
	err := json.Unmarshal(raw, &fields)
	if err == nil {
		return fields, nil
	}
	var inner string
	if json.Unmarshal(raw, &inner) != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inner), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
