// Package suggest defines the structured types exchanged by the autofill
// engine. These are the public API contract: any consumer (sinks, the admin
// API, custom host integrations) imports this package to receive and process
// engine output.
package suggest

// Rect is a viewport-relative bounding rectangle in CSS pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FieldDescriptor identifies one candidate element discovered by the scanner.
// The element itself is owned by the host page; Handle is the engine-stamped
// stable identifier (a data attribute) that survives until the element is
// removed from the tree. A re-inserted element receives a fresh handle.
type FieldDescriptor struct {
	Handle  string `json:"handle"`
	Tag     string `json:"tag"`
	Subtype string `json:"subtype,omitempty"` // input type attribute
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Label   string `json:"label,omitempty"`
	Visible bool   `json:"visible"`
	Rect    Rect   `json:"rect"`
}

// FieldKey returns the key under which suggestions for this field are stored:
// name, falling back to id, falling back to the engine handle.
func FieldKey(fd FieldDescriptor) string {
	if fd.Name != "" {
		return fd.Name
	}
	if fd.ID != "" {
		return fd.ID
	}
	return fd.Handle
}

// SuggestionEntry is an immutable value suggestion returned by the inference
// service.
type SuggestionEntry struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// SessionStatus is the outcome of one detection request.
type SessionStatus string

const (
	StatusPending SessionStatus = "pending"
	StatusSuccess SessionStatus = "success"
	StatusEmpty   SessionStatus = "empty"
	StatusFailed  SessionStatus = "failed"
)

// DetectionSession is the result set produced by one detect call. Exactly one
// session is current at a time; a new session supersedes the previous one
// wholesale, never merges into it.
type DetectionSession struct {
	FormID      string                       `json:"form_id"`
	Fields      []FieldDescriptor            `json:"fields"`
	Suggestions map[string][]SuggestionEntry `json:"suggestions,omitempty"`
	Status      SessionStatus                `json:"status"`
	CreatedAt   int64                        `json:"created_at"` // epoch milliseconds
}

// EntriesFor returns the cached suggestions for a field, or nil when the
// session holds none for it.
func (s *DetectionSession) EntriesFor(fd FieldDescriptor) []SuggestionEntry {
	if s == nil || s.Suggestions == nil {
		return nil
	}
	return s.Suggestions[FieldKey(fd)]
}

// HasSuggestions reports whether the session carries at least one suggestion
// for the given field. Overlay widgets are only ever created when this is true.
func (s *DetectionSession) HasSuggestions(fd FieldDescriptor) bool {
	return len(s.EntriesFor(fd)) > 0
}

// Replace swaps the cached entries for one field key. Used by refine: the
// refined list replaces the detect-time list inside the same session.
func (s *DetectionSession) Replace(key string, entries []SuggestionEntry) {
	if s.Suggestions == nil {
		s.Suggestions = make(map[string][]SuggestionEntry)
	}
	s.Suggestions[key] = entries
}

// FieldByHandle finds a session field by its engine handle.
func (s *DetectionSession) FieldByHandle(handle string) (FieldDescriptor, bool) {
	if s == nil {
		return FieldDescriptor{}, false
	}
	for _, fd := range s.Fields {
		if fd.Handle == handle {
			return fd, true
		}
	}
	return FieldDescriptor{}, false
}
