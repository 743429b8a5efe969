// Package observer watches the document for structural drift and schedules
// debounced rescans. Raw mutation notifications fire far more often than
// meaningful field changes (class and style churn, unrelated subtree edits);
// the structural signature collapses a burst into a single semantically
// meaningful trigger.
package observer

import (
	"context"
	"log/slog"
	"time"
)

// Config for creating an Observer.
type Config struct {
	// Window is the debounce time. Default: 300ms.
	Window time.Duration
	// Signature recomputes the structural signature of the current candidate
	// set. Called once per quiesced burst.
	Signature func(ctx context.Context) string
	// OnChange fires when the recomputed signature differs from the last
	// recorded one. Runs on the observer goroutine.
	OnChange func(sig string)
	Logger   *slog.Logger
}

// Observer debounces mutation notifications and fires OnChange only when the
// candidate set meaningfully changed. Subscribe it once per Active period.
type Observer struct {
	cfg      Config
	notifyCh chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	lastSig  string // owned by the loop goroutine after Start
}

// New creates an Observer. Start must be called before notifications have any
// effect.
func New(cfg Config) *Observer {
	if cfg.Window <= 0 {
		cfg.Window = 300 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Observer{
		cfg:      cfg,
		notifyCh: make(chan struct{}, 1),
	}
}

// SetBaseline records the signature future batches are compared against.
// Called with the signature of the initial scan before Start.
func (o *Observer) SetBaseline(sig string) {
	o.lastSig = sig
}

// Start runs the debounce loop until Stop or context cancellation.
func (o *Observer) Start(ctx context.Context) {
	o.ctx, o.cancel = context.WithCancel(ctx)
	go o.loop()
}

// Notify records one mutation notification. Bursts coalesce: repeated calls
// within the debounce window reset the timer rather than firing multiple
// times. Safe to call from any goroutine; never blocks.
func (o *Observer) Notify() {
	select {
	case o.notifyCh <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and any pending debounce timer synchronously.
func (o *Observer) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Observer) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-o.ctx.Done():
			return

		case <-o.notifyCh:
			// (Re)start the window timer.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(o.cfg.Window)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			o.flush()
		}
	}
}

// flush recomputes the signature and fires OnChange when it moved. The
// comparison is always against the last recorded signature, so updates are
// strictly sequenced even when notifications arrive in bursts.
func (o *Observer) flush() {
	sig := o.cfg.Signature(o.ctx)

	if sig == o.lastSig {
		o.cfg.Logger.Debug("observer: signature unchanged, rescan skipped")
		return
	}

	o.cfg.Logger.Debug("observer: structural change detected",
		"old", o.lastSig, "new", sig)
	o.lastSig = sig

	if o.cfg.OnChange != nil {
		o.cfg.OnChange(sig)
	}
}
