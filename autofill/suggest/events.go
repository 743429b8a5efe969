package suggest

import "encoding/json"

// EventType classifies an engine event.
type EventType string

const (
	EventDetected      EventType = "detected"       // detection completed with suggestions
	EventNoSuggestions EventType = "no_suggestions" // detection returned nothing usable
	EventAccepted      EventType = "accepted"       // user accepted a suggestion
	EventRejected      EventType = "rejected"       // user dismissed the workflow
	EventRefined       EventType = "refined"        // refine replaced cached entries
	EventStarted       EventType = "started"        // engine became Active
	EventStopped       EventType = "stopped"        // engine became Inactive
)

// Event is the fire-and-forget analytics record emitted to sinks. Value is
// omitted for reject events.
type Event struct {
	ID        string    `json:"id"` // UUID
	Type      EventType `json:"type"`
	FieldType string    `json:"field_type,omitempty"`
	FieldName string    `json:"field_name,omitempty"`
	Value     string    `json:"value,omitempty"`
	FormID    string    `json:"form_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	PageURL   string    `json:"page_url,omitempty"`
	Timestamp int64     `json:"timestamp"` // epoch milliseconds
}

// MarshalEvent serialises an Event to JSON.
func MarshalEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserialises an Event from JSON.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
