// Package overlay manages the per-field suggestion widgets injected into the
// host page: creation, positioning, visibility policy, and teardown. The
// widgets are the only DOM the engine owns; host elements are never touched
// beyond the explicit fill operation.
package overlay

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

//go:embed widget.js
var widgetJS string

// Executor runs a JS function expression in the page. Implemented by the
// browser tab; tests use fakes.
type Executor interface {
	EvalJSON(ctx context.Context, js string) ([]byte, error)
}

// Trigger selects which interactions reveal a widget.
type Trigger string

const (
	TriggerFocus Trigger = "focus"
	TriggerHover Trigger = "hover"
	TriggerBoth  Trigger = "both"
)

// LockReason records why a visible widget is held open.
type LockReason string

const (
	LockNone    LockReason = "none"
	LockFocused LockReason = "focused"
	LockHovered LockReason = "hovered"
)

// widgetState tracks one field's interaction state. A widget element exists
// in the page exactly while visible is true.
type widgetState struct {
	field   suggest.FieldDescriptor
	focused bool
	hovered bool
	visible bool
	pos     Point
}

// Config controls widget placement and the visibility trigger.
type Config struct {
	Trigger    Trigger
	Edge       Edge
	Offset     float64
	WidgetSize Size
	Logger     *slog.Logger
}

// Manager owns the overlay widgets. At most one widget exists per candidate
// element; a second show request for an already-visible field is a no-op.
// Not safe for concurrent use: the engine loop is its only caller.
type Manager struct {
	ex       Executor
	cfg      Config
	widgets  map[string]*widgetState
	viewport Size
}

// New creates a Manager.
func New(ex Executor, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WidgetSize.W <= 0 {
		cfg.WidgetSize = Size{W: 24, H: 24}
	}
	if cfg.Offset <= 0 {
		cfg.Offset = 8
	}
	switch cfg.Trigger {
	case TriggerFocus, TriggerHover, TriggerBoth:
	default:
		cfg.Trigger = TriggerBoth
	}
	if cfg.Edge != EdgeLeading {
		cfg.Edge = EdgeTrailing
	}
	return &Manager{
		ex:      ex,
		cfg:     cfg,
		widgets: make(map[string]*widgetState),
	}
}

// Inject installs the overlay runtime (widget factory, interaction listeners,
// SPA hooks) into the page. Idempotent on the JS side.
func (m *Manager) Inject(ctx context.Context) error {
	if _, err := m.ex.EvalJSON(ctx, widgetJS); err != nil {
		return fmt.Errorf("overlay: inject runtime: %w", err)
	}
	return nil
}

// SetViewport records the viewport size reported by the latest UI event.
func (m *Manager) SetViewport(v Size) {
	if v.W > 0 && v.H > 0 {
		m.viewport = v
	}
}

// FieldFocused handles focus entering a field.
func (m *Manager) FieldFocused(ctx context.Context, fd suggest.FieldDescriptor) {
	st := m.state(fd)
	st.focused = true
	m.apply(ctx, fd.Handle, st)
}

// FieldBlurred handles focus leaving a field. The widget stays up only while
// still hovered.
func (m *Manager) FieldBlurred(ctx context.Context, handle string) {
	st, ok := m.widgets[handle]
	if !ok {
		return
	}
	st.focused = false
	m.apply(ctx, handle, st)
}

// FieldHovered handles the pointer entering a field.
func (m *Manager) FieldHovered(ctx context.Context, fd suggest.FieldDescriptor) {
	st := m.state(fd)
	st.hovered = true
	m.apply(ctx, fd.Handle, st)
}

// FieldLeft handles the pointer leaving a field. The widget stays up while
// the field is focused or while the pointer is over the widget itself; the
// widget's own hover events keep the hovered flag alive.
func (m *Manager) FieldLeft(ctx context.Context, handle string) {
	st, ok := m.widgets[handle]
	if !ok {
		return
	}
	st.hovered = false
	m.apply(ctx, handle, st)
}

// WidgetHovered handles the pointer entering the widget element.
func (m *Manager) WidgetHovered(ctx context.Context, handle string) {
	st, ok := m.widgets[handle]
	if !ok {
		return
	}
	st.hovered = true
	m.apply(ctx, handle, st)
}

// WidgetLeft handles the pointer leaving the widget element.
func (m *Manager) WidgetLeft(ctx context.Context, handle string) {
	st, ok := m.widgets[handle]
	if !ok {
		return
	}
	st.hovered = false
	m.apply(ctx, handle, st)
}

// UpdateRect refreshes the stored bounding rectangle for a field.
func (m *Manager) UpdateRect(handle string, r suggest.Rect) {
	if st, ok := m.widgets[handle]; ok {
		st.field.Rect = r
	}
}

func (m *Manager) state(fd suggest.FieldDescriptor) *widgetState {
	st, ok := m.widgets[fd.Handle]
	if !ok {
		st = &widgetState{field: fd}
		m.widgets[fd.Handle] = st
	} else {
		st.field = fd
	}
	return st
}

// eligible applies the visibility policy for the configured trigger.
func (m *Manager) eligible(st *widgetState) bool {
	switch m.cfg.Trigger {
	case TriggerFocus:
		return st.focused
	case TriggerHover:
		return st.hovered
	default:
		return st.focused || st.hovered
	}
}

// apply reconciles a widget's page presence with its interaction state.
func (m *Manager) apply(ctx context.Context, handle string, st *widgetState) {
	want := m.eligible(st)
	switch {
	case want && !st.visible:
		st.pos = Position(st.field.Rect, m.viewport, m.cfg.Edge, m.cfg.Offset, m.cfg.WidgetSize)
		js := fmt.Sprintf(`() => window.__autofill.show(%q, %v, %v)`, handle, st.pos.X, st.pos.Y)
		if _, err := m.ex.EvalJSON(ctx, js); err != nil {
			m.cfg.Logger.Warn("overlay: show widget failed", "handle", handle, "error", err)
			return
		}
		st.visible = true
	case !want && st.visible:
		m.hide(ctx, handle, st)
	}
}

func (m *Manager) hide(ctx context.Context, handle string, st *widgetState) {
	js := fmt.Sprintf(`() => window.__autofill.hide(%q)`, handle)
	if _, err := m.ex.EvalJSON(ctx, js); err != nil {
		m.cfg.Logger.Warn("overlay: hide widget failed", "handle", handle, "error", err)
	}
	st.visible = false
}

// HideWidget forces a widget down regardless of interaction state.
func (m *Manager) HideWidget(ctx context.Context, handle string) {
	st, ok := m.widgets[handle]
	if !ok || !st.visible {
		return
	}
	st.focused = false
	st.hovered = false
	m.hide(ctx, handle, st)
}

// RepositionAll recomputes anchor positions for every visible widget from the
// reported field rectangles. Called on viewport resize and scroll.
func (m *Manager) RepositionAll(ctx context.Context, rects map[string]suggest.Rect, viewport Size) {
	m.SetViewport(viewport)
	for handle, st := range m.widgets {
		if r, ok := rects[handle]; ok {
			st.field.Rect = r
		}
		if !st.visible {
			continue
		}
		pos := Position(st.field.Rect, m.viewport, m.cfg.Edge, m.cfg.Offset, m.cfg.WidgetSize)
		if pos == st.pos {
			continue
		}
		st.pos = pos
		js := fmt.Sprintf(`() => window.__autofill.move(%q, %v, %v)`, handle, pos.X, pos.Y)
		if _, err := m.ex.EvalJSON(ctx, js); err != nil {
			m.cfg.Logger.Warn("overlay: move widget failed", "handle", handle, "error", err)
		}
	}
}

// ShowMenu renders the suggestion menu anchored to a field's widget.
func (m *Manager) ShowMenu(ctx context.Context, handle string, entries []suggest.SuggestionEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("overlay: marshal entries: %w", err)
	}
	js := fmt.Sprintf(`() => window.__autofill.menu(%q, %s)`, handle, data)
	if _, err := m.ex.EvalJSON(ctx, js); err != nil {
		return fmt.Errorf("overlay: show menu: %w", err)
	}
	return nil
}

// Fill writes a value into the field and dispatches the host's standard
// input/change events so listening components observe the update.
func (m *Manager) Fill(ctx context.Context, handle, value string) error {
	js := fmt.Sprintf(`() => window.__autofill.fill(%q, %q)`, handle, value)
	if _, err := m.ex.EvalJSON(ctx, js); err != nil {
		return fmt.Errorf("overlay: fill field: %w", err)
	}
	return nil
}

// FieldValue reads the field's current value.
func (m *Manager) FieldValue(ctx context.Context, handle string) (string, error) {
	js := fmt.Sprintf(`() => window.__autofill.value(%q)`, handle)
	raw, err := m.ex.EvalJSON(ctx, js)
	if err != nil {
		return "", fmt.Errorf("overlay: read field value: %w", err)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("overlay: parse field value: %w", err)
	}
	return v, nil
}

// RemoveAll tears down every widget, the menu, and the indicator. Called on
// engine stop and before a session supersedes the current one.
func (m *Manager) RemoveAll(ctx context.Context) {
	if _, err := m.ex.EvalJSON(ctx, `() => window.__autofill && window.__autofill.removeAll()`); err != nil {
		m.cfg.Logger.Warn("overlay: remove all failed", "error", err)
	}
	m.widgets = make(map[string]*widgetState)
}

// VisibleCount returns how many widgets currently exist in the page.
func (m *Manager) VisibleCount() int {
	n := 0
	for _, st := range m.widgets {
		if st.visible {
			n++
		}
	}
	return n
}

// Lock reports why a field's widget is held open.
func (m *Manager) Lock(handle string) LockReason {
	st, ok := m.widgets[handle]
	if !ok || !st.visible {
		return LockNone
	}
	if st.focused {
		return LockFocused
	}
	if st.hovered {
		return LockHovered
	}
	return LockNone
}
