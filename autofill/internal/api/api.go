// Package api exposes the local admin surface: engine lifecycle control and
// a status snapshot for operators.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/infilloai/infillo-sub001/autofill"
	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// Engine is the controller surface the admin API drives.
type Engine interface {
	State() autofill.State
	OriginBlocked() bool
	Start(ctx context.Context) error
	Stop()
	Rescan() bool
	Current() *suggest.DetectionSession
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	State         string         `json:"state"`
	OriginBlocked bool           `json:"origin_blocked"`
	Session       *SessionStatus `json:"session,omitempty"`
}

// SessionStatus summarises the current detection session.
type SessionStatus struct {
	FormID    string `json:"form_id"`
	Status    string `json:"status"`
	Fields    int    `json:"fields"`
	Suggested int    `json:"suggested"`
}

// NewHandler builds the admin router.
func NewHandler(e Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			State:         e.State().String(),
			OriginBlocked: e.OriginBlocked(),
		}
		if sess := e.Current(); sess != nil {
			resp.Session = &SessionStatus{
				FormID:    sess.FormID,
				Status:    string(sess.Status),
				Fields:    len(sess.Fields),
				Suggested: len(sess.Suggestions),
			}
		}
		writeJSON(w, 200, resp)
	})

	r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
		if err := e.Start(r.Context()); err != nil {
			logger.Warn("api: start failed", "error", err)
			writeError(w, 409, err)
			return
		}
		writeJSON(w, 200, map[string]string{"state": e.State().String()})
	})

	r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
		e.Stop()
		writeJSON(w, 200, map[string]string{"state": e.State().String()})
	})

	r.Post("/rescan", func(w http.ResponseWriter, _ *http.Request) {
		if !e.Rescan() {
			writeJSON(w, 409, map[string]string{"error": "engine not active"})
			return
		}
		writeJSON(w, 202, map[string]string{"status": "scheduled"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
