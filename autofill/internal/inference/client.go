// Package inference is the HTTP client for the suggestion service. The engine
// consumes it as an opaque API: detect a form, refine one field. How the
// service computes suggestions is its own concern.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// DetectRequest carries the page context for one detection call.
type DetectRequest struct {
	Markup     string                    `json:"markup"`
	PageURL    string                    `json:"page_url"`
	PageDomain string                    `json:"page_domain"`
	Fields     []suggest.FieldDescriptor `json:"fields"`
}

// DetectResponse is the service's answer to a detect call.
type DetectResponse struct {
	FormID      string                               `json:"form_id"`
	Fields      []suggest.FieldDescriptor            `json:"fields"`
	Suggestions map[string][]suggest.SuggestionEntry `json:"suggestions,omitempty"`
}

// RefineRequest re-asks the service about one field with extra context.
type RefineRequest struct {
	FormID        string   `json:"form_id"`
	FieldName     string   `json:"field_name"`
	PreviousValue string   `json:"previous_value"`
	ContextText   string   `json:"context_text,omitempty"`
	CustomPrompt  string   `json:"custom_prompt,omitempty"`
	DocumentIDs   []string `json:"document_ids,omitempty"`
}

// RefineResponse carries the refined entries plus the full updated list.
type RefineResponse struct {
	RefinedSuggestions []suggest.SuggestionEntry `json:"refined_suggestions"`
	AllSuggestions     []suggest.SuggestionEntry `json:"all_suggestions"`
}

// Client talks to the inference service over HTTP.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithTimeout bounds each request. Zero means no bound: the call waits until
// the service responds or errors.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.client.Timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client for the given service endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DetectForm submits page markup and scanned fields, returning the form id
// and per-field suggestions.
func (c *Client) DetectForm(ctx context.Context, req DetectRequest) (*DetectResponse, error) {
	var resp DetectResponse
	if err := c.post(ctx, "/v1/forms/detect", req, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("inference: detect done",
		"form_id", resp.FormID,
		"fields", len(resp.Fields),
		"suggested", len(resp.Suggestions))
	return &resp, nil
}

// RefineField re-requests suggestions for one field with extra context.
func (c *Client) RefineField(ctx context.Context, req RefineRequest) (*RefineResponse, error) {
	var resp RefineResponse
	if err := c.post(ctx, "/v1/fields/refine", req, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("inference: refine done",
		"form_id", req.FormID,
		"field", req.FieldName,
		"entries", len(resp.AllSuggestions))
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("inference: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("inference: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a little of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference: %s: status %d: %s", path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("inference: decode: %w", err)
	}
	return nil
}
