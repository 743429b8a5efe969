// Package session implements the per-field suggestion workflow: open the
// cached entries, accept one into the field, dismiss, or refine against the
// inference service.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/infilloai/infillo-sub001/autofill/internal/inference"
	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// Refiner is the slice of the inference client the workflow needs.
type Refiner interface {
	RefineField(ctx context.Context, req inference.RefineRequest) (*inference.RefineResponse, error)
}

// PageControls writes to and reads from the host field. Implemented by the
// overlay manager.
type PageControls interface {
	Fill(ctx context.Context, handle, value string) error
	FieldValue(ctx context.Context, handle string) (string, error)
}

// Events receives the fire-and-forget analytics records.
type Events interface {
	Send(ctx context.Context, ev suggest.Event) error
}

// Session binds one field to its cached suggestions in the current detection
// session. Opening is a pure cache read, no network call. Methods run on the
// engine loop; the detection session they mutate is never touched elsewhere.
type Session struct {
	field     suggest.FieldDescriptor
	detection *suggest.DetectionSession
	refiner   Refiner
	page      PageControls
	events    Events
	pageURL   string
	logger    *slog.Logger
}

// Config wires a Session's collaborators.
type Config struct {
	Refiner Refiner
	Page    PageControls
	Events  Events
	PageURL string
	Logger  *slog.Logger
}

// Open creates a workflow for a field of the given detection session.
func Open(field suggest.FieldDescriptor, detection *suggest.DetectionSession, cfg Config) (*Session, error) {
	if detection == nil {
		return nil, fmt.Errorf("session: no current detection session")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		field:     field,
		detection: detection,
		refiner:   cfg.Refiner,
		page:      cfg.Page,
		events:    cfg.Events,
		pageURL:   cfg.PageURL,
		logger:    cfg.Logger,
	}, nil
}

// Field returns the field this workflow is bound to.
func (s *Session) Field() suggest.FieldDescriptor { return s.field }

// Entries returns the cached suggestions for the field. After a successful
// Refine this reflects the refined list, not the detect-time one.
func (s *Session) Entries() []suggest.SuggestionEntry {
	return s.detection.EntriesFor(s.field)
}

// Accept writes the chosen value into the field. The fill dispatches the
// host's standard input/change events so listening components observe the
// update, then the analytics event goes out.
func (s *Session) Accept(ctx context.Context, value string) error {
	if err := s.page.Fill(ctx, s.field.Handle, value); err != nil {
		return fmt.Errorf("session: accept: %w", err)
	}
	s.emit(suggest.EventAccepted, value, s.sourceOf(value))
	return nil
}

// Reject dismisses the workflow. Only the analytics event is emitted; the
// cached entries stay available for a later open.
func (s *Session) Reject(ctx context.Context) {
	s.emit(suggest.EventRejected, "", "")
}

// RefineInput carries the optional extra context for a refine call.
type RefineInput struct {
	ContextText  string
	CustomPrompt string
	DocumentIDs  []string
}

// Refine re-requests suggestions for the field, carrying its previous value
// plus the optional context. On success the refined list replaces the cached
// entries for this field inside the current detection session. On failure the
// previously cached entries are left untouched and the error is surfaced to
// the workflow only.
//
// The service call blocks for up to the configured timeout. Callers that must
// not stall, the engine loop among them, use RefineRequest and ApplyRefinement
// and run the call on their own goroutine.
func (s *Session) Refine(ctx context.Context, in RefineInput) error {
	resp, err := s.refiner.RefineField(ctx, s.RefineRequest(ctx, in))
	if err != nil {
		return fmt.Errorf("session: refine: %w", err)
	}
	s.ApplyRefinement(resp)
	return nil
}

// RefineRequest assembles the service request for this field, reading its
// current value from the page. An unreadable value degrades to empty.
func (s *Session) RefineRequest(ctx context.Context, in RefineInput) inference.RefineRequest {
	prev, err := s.page.FieldValue(ctx, s.field.Handle)
	if err != nil {
		s.logger.Warn("session: read previous value failed", "error", err)
		prev = ""
	}
	return inference.RefineRequest{
		FormID:        s.detection.FormID,
		FieldName:     suggest.FieldKey(s.field),
		PreviousValue: prev,
		ContextText:   in.ContextText,
		CustomPrompt:  in.CustomPrompt,
		DocumentIDs:   in.DocumentIDs,
	}
}

// ApplyRefinement replaces the cached entries for the field with the refined
// list and emits the refined event. Callers apply a response only while the
// detection session this workflow was opened against is still the current one.
func (s *Session) ApplyRefinement(resp *inference.RefineResponse) {
	entries := resp.AllSuggestions
	if len(entries) == 0 {
		entries = resp.RefinedSuggestions
	}
	s.detection.Replace(suggest.FieldKey(s.field), entries)
	s.emit(suggest.EventRefined, "", "")
}

// Detection returns the detection session this workflow reads from.
func (s *Session) Detection() *suggest.DetectionSession { return s.detection }

// sourceOf finds the source of the accepted entry; the user may have picked
// any of the cached values.
func (s *Session) sourceOf(value string) string {
	for _, e := range s.Entries() {
		if e.Value == value {
			return e.Source
		}
	}
	return ""
}

// emit sends the analytics event fire-and-forget: a slow or failing relay
// never blocks the workflow.
func (s *Session) emit(typ suggest.EventType, value, source string) {
	if s.events == nil {
		return
	}
	ev := suggest.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		FieldType: s.field.Subtype,
		FieldName: suggest.FieldKey(s.field),
		Value:     value,
		FormID:    s.detection.FormID,
		Source:    source,
		PageURL:   s.pageURL,
		Timestamp: time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Send(ctx, ev); err != nil {
			s.logger.Warn("session: analytics event failed", "type", typ, "error", err)
		}
	}()
}
