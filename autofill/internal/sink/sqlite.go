package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS autofill_events (
	event_id   TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	field_type TEXT,
	field_name TEXT,
	value      TEXT,
	form_id    TEXT,
	source     TEXT,
	page_url   TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_autofill_events_type
	ON autofill_events(event_type, created_at);
`

// SQLite persists events to a local audit table. Failures never block the
// engine; callers treat Send errors as log-only.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the audit database at path and ensures the
// events table exists.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Send(ctx context.Context, ev suggest.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO autofill_events (
			event_id, event_type, field_type, field_name, value,
			form_id, source, page_url, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.ID, string(ev.Type), ev.FieldType, ev.FieldName, ev.Value,
		ev.FormID, ev.Source, ev.PageURL, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("sink: insert event: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
