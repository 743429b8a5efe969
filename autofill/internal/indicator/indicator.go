// Package indicator controls the engine-wide detection badge: one instance,
// shown while a detection request is outstanding.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Executor runs a JS function expression in the page.
type Executor interface {
	EvalJSON(ctx context.Context, js string) ([]byte, error)
}

const (
	showJS = `() => window.__autofill && window.__autofill.indicator(true)`
	hideJS = `() => window.__autofill && window.__autofill.indicator(false)`
)

// Controller shows and hides the loading badge, enforcing a minimum visible
// duration so a fast response does not produce a visible flash. Fade-out is
// asynchronous in the page, but teardown is deterministic: ForceHide removes
// the badge immediately on engine stop.
type Controller struct {
	ex     Executor
	min    time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	visible   bool
	shownAt   time.Time
	hideTimer *time.Timer
}

// New creates a Controller. minVisible <= 0 defaults to 500ms.
func New(ex Executor, minVisible time.Duration, logger *slog.Logger) *Controller {
	if minVisible <= 0 {
		minVisible = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{ex: ex, min: minVisible, logger: logger}
}

// Show displays the badge. A pending delayed hide is cancelled: a new
// detection keeps the badge up.
func (c *Controller) Show(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hideTimer != nil {
		c.hideTimer.Stop()
		c.hideTimer = nil
	}
	if c.visible {
		return
	}
	if _, err := c.ex.EvalJSON(ctx, showJS); err != nil {
		c.logger.Warn("indicator: show failed", "error", err)
		return
	}
	c.visible = true
	c.shownAt = time.Now()
}

// Hide removes the badge once the minimum visible duration has elapsed,
// scheduling the removal when the response came back faster.
func (c *Controller) Hide(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.visible || c.hideTimer != nil {
		return
	}

	remaining := c.min - time.Since(c.shownAt)
	if remaining <= 0 {
		c.hideLocked(ctx)
		return
	}
	c.hideTimer = time.AfterFunc(remaining, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.hideTimer = nil
		if c.visible {
			c.hideLocked(ctx)
		}
	})
}

// ForceHide removes the badge immediately and cancels any pending delayed
// hide. Called on engine stop.
func (c *Controller) ForceHide(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hideTimer != nil {
		c.hideTimer.Stop()
		c.hideTimer = nil
	}
	if c.visible {
		c.hideLocked(ctx)
	}
}

// Visible reports whether the badge is currently up.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Controller) hideLocked(ctx context.Context) {
	if _, err := c.ex.EvalJSON(ctx, hideJS); err != nil {
		c.logger.Warn("indicator: hide failed", "error", err)
	}
	c.visible = false
}
