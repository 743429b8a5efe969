// Package detect owns the single in-flight form detection request and the
// current detection session.
package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/infilloai/infillo-sub001/autofill/internal/inference"
	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// Service is the slice of the inference client the coordinator needs.
type Service interface {
	DetectForm(ctx context.Context, req inference.DetectRequest) (*inference.DetectResponse, error)
}

// Result is delivered on the Results channel when a detection completes.
// Err is set only for service failures; Session is always populated with the
// matching status.
type Result struct {
	Session *suggest.DetectionSession
	Err     error
}

// Coordinator enforces the single-flight invariant: at most one detection
// request is outstanding at any instant. Triggers arriving while one is
// outstanding are dropped, not queued: under rapid churn the engine can run
// one rescan behind, and the next structural change catches it up.
type Coordinator struct {
	svc     Service
	logger  *slog.Logger
	results chan Result

	mu       sync.Mutex
	inFlight bool
	current  *suggest.DetectionSession
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator over the given detection service.
func New(svc Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		svc:     svc,
		logger:  slog.Default(),
		// Unbuffered: a result is either handed to the engine loop or
		// discarded when the Active period's context dies. Nothing stale can
		// sit in a buffer across stop/start.
		results: make(chan Result),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Results returns the channel detection outcomes are delivered on. The
// consumer decides whether the engine is still Active before acting; a result
// arriving after stop is simply never read.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// InFlight reports whether a detection request is outstanding.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Request starts a detection call unless one is already outstanding, in which
// case the trigger is dropped and false is returned. The request itself runs
// on its own goroutine; the outcome arrives on Results. Cancellation of ctx
// abandons result delivery but never interrupts the bookkeeping: completion
// always returns the coordinator to Idle.
func (c *Coordinator) Request(ctx context.Context, req inference.DetectRequest) bool {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		c.logger.Debug("detect: request dropped, one already in flight")
		return false
	}
	c.inFlight = true
	c.mu.Unlock()

	go c.run(ctx, req)
	return true
}

func (c *Coordinator) run(ctx context.Context, req inference.DetectRequest) {
	resp, err := c.svc.DetectForm(ctx, req)

	sess := &suggest.DetectionSession{
		Fields:    req.Fields,
		CreatedAt: time.Now().UnixMilli(),
	}
	switch {
	case err != nil:
		sess.FormID = uuid.NewString()
		sess.Status = suggest.StatusFailed
		c.logger.Warn("detect: service call failed", "error", err)
	case len(resp.Suggestions) == 0:
		sess.FormID = resp.FormID
		sess.Status = suggest.StatusEmpty
		if len(resp.Fields) > 0 {
			sess.Fields = resp.Fields
		}
	default:
		sess.FormID = resp.FormID
		sess.Status = suggest.StatusSuccess
		sess.Suggestions = resp.Suggestions
		if len(resp.Fields) > 0 {
			sess.Fields = resp.Fields
		}
	}
	if sess.FormID == "" {
		sess.FormID = uuid.NewString()
	}

	// Back to Idle before delivery: only Idle accepts new requests, and that
	// must hold even when the consumer is gone.
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()

	select {
	case c.results <- Result{Session: sess, Err: err}:
	case <-ctx.Done():
		c.logger.Debug("detect: result discarded, engine stopped")
	}
}

// Store records the session as current. Called by the engine loop after it
// has checked the engine is still Active.
func (c *Coordinator) Store(sess *suggest.DetectionSession) {
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
}

// Current returns the current detection session, or nil before the first
// successful detection of this Active period.
func (c *Coordinator) Current() *suggest.DetectionSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Reset discards the current session. Called on engine stop; superseded
// sessions are discarded, never merged.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}
