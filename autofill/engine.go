// Package autofill runs the field detection and suggestion overlay engine: it
// attaches to a live page, discovers fillable fields, asks the inference
// service for value suggestions, and surfaces them through injected overlay
// widgets the user can accept, dismiss, or refine.
package autofill

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/infilloai/infillo-sub001/autofill/internal/browser"
	"github.com/infilloai/infillo-sub001/autofill/internal/detect"
	"github.com/infilloai/infillo-sub001/autofill/internal/indicator"
	"github.com/infilloai/infillo-sub001/autofill/internal/inference"
	"github.com/infilloai/infillo-sub001/autofill/internal/markup"
	"github.com/infilloai/infillo-sub001/autofill/internal/observer"
	"github.com/infilloai/infillo-sub001/autofill/internal/overlay"
	"github.com/infilloai/infillo-sub001/autofill/internal/scanner"
	"github.com/infilloai/infillo-sub001/autofill/internal/session"
	"github.com/infilloai/infillo-sub001/autofill/internal/sink"
	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// State is the engine lifecycle state.
type State int32

const (
	StateInactive State = iota
	StateStarting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "inactive"
	}
}

// RefineInput carries the optional extra context for a refine call.
type RefineInput = session.RefineInput

// pageEval runs a JS function expression in the page.
type pageEval interface {
	EvalJSON(ctx context.Context, js string) ([]byte, error)
}

// domSource provides the raw page HTML and current address.
type domSource interface {
	GetFullDOM(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)
}

// Engine drives one page. All page and session state is owned by a single
// loop goroutine; external operations are serialized onto it, so there is
// never a concurrent mutation of overlay or session state.
type Engine struct {
	cfg    *Config
	logger *slog.Logger
	events *sink.Router

	state         atomic.Int32
	originBlocked atomic.Bool

	mu       sync.Mutex // serializes Start and Stop
	cancel   context.CancelFunc
	loopDone chan struct{}

	// Live browser surfaces. Nil when the engine was wired onto fakes.
	mgr *browser.Manager
	tab *browser.Tab
	cdp *observer.CDPListener
	ui  *overlay.UIListener

	// retrack re-arms DOM mutation delivery after a document replacement.
	retrack func() error

	scan     *scanner.Scanner
	registry *scanner.Registry
	obs      *observer.Observer
	coord    *detect.Coordinator
	ov       *overlay.Manager
	ind      *indicator.Controller
	pages    *markup.Builder
	dom      domSource
	refiner  session.Refiner

	uiCh     chan overlay.UIEvent
	rescanCh chan struct{}
	resetCh  chan struct{}
	cmdCh    chan command

	// Loop-owned state.
	pageURL    string
	obsStarted bool
}

type command struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSinks registers event sinks. Events fan out to all of them.
func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) { e.events = sink.NewRouter(e.logger, sinks...) }
}

// New creates an Engine. Call Start to attach to the page.
func New(cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.ApplyDefaults()
	}
	e := &Engine{
		cfg:      cfg,
		logger:   slog.Default(),
		uiCh:     make(chan overlay.UIEvent, 64),
		rescanCh: make(chan struct{}, 1),
		resetCh:  make(chan struct{}, 1),
		cmdCh:    make(chan command),
	}
	for _, o := range opts {
		o(e)
	}
	if e.events == nil {
		e.events = sink.NewRouter(e.logger)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// OriginBlocked reports whether the engine is currently refused for the page
// origin, either by the configured blocklist or by the host's block signal.
func (e *Engine) OriginBlocked() bool {
	return e.originBlocked.Load()
}

// SetOriginBlocked applies the host's origin-block signal. Blocking stops a
// running engine immediately; Start is refused until the signal clears.
func (e *Engine) SetOriginBlocked(blocked bool) {
	e.originBlocked.Store(blocked)
	if blocked {
		e.Stop()
	}
}

// Current returns the current detection session, or nil.
func (e *Engine) Current() *suggest.DetectionSession {
	if e.coord == nil {
		return nil
	}
	return e.coord.Current()
}

// Start attaches to the configured page and activates the engine. Starting an
// engine that is not Inactive is a no-op. When the page origin is on the
// blocklist the engine stays Inactive and ErrOriginBlocked is returned.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateInactive {
		e.logger.Debug("engine: start ignored, already running", "state", e.State())
		return nil
	}

	if e.originBlocked.Load() {
		return &ErrOriginBlocked{Origin: domainOf(e.cfg.Page.URL)}
	}
	if origin, blocked := blockedOrigin(e.cfg.Page.URL, e.cfg.Page.BlockedOrigins); blocked {
		e.originBlocked.Store(true)
		e.logger.Info("engine: origin blocked, staying inactive", "origin", origin)
		return &ErrOriginBlocked{Origin: origin}
	}
	e.state.Store(int32(StateStarting))

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        e.cfg.Browser.Remote,
		Mode:             browser.Mode(e.cfg.Browser.Stealth),
		ResourceBlocking: e.cfg.Browser.ResourceBlocking,
		Logger:           e.logger,
	})
	if _, err := mgr.Start(); err != nil {
		e.state.Store(int32(StateInactive))
		return err
	}
	tab, err := browser.OpenTab(ctx, mgr, e.cfg.Page.URL)
	if err != nil {
		mgr.Close()
		e.state.Store(int32(StateInactive))
		return err
	}
	e.mgr, e.tab = mgr, tab
	e.pageURL = e.cfg.Page.URL

	infer := inference.New(e.cfg.Service.Endpoint,
		inference.WithTimeout(e.cfg.Service.Timeout),
		inference.WithLogger(e.logger))
	e.wire(tab, tab, infer, infer)

	runCtx, cancel := context.WithCancel(context.Background())

	// The binding listener must be live before the overlay runtime is
	// injected, or an early interaction event is lost.
	e.ui = overlay.NewUIListener(tab.Page, e.uiCh, e.logger)
	if err := e.ui.Start(runCtx); err != nil {
		cancel()
		e.teardownBrowser()
		e.state.Store(int32(StateInactive))
		return err
	}
	if err := e.ov.Inject(runCtx); err != nil {
		cancel()
		e.ui.Stop()
		e.teardownBrowser()
		e.state.Store(int32(StateInactive))
		return err
	}
	e.cdp = observer.NewCDPListener(tab.Page, e.obs, e.requestReset)
	if err := e.cdp.Start(runCtx); err != nil {
		cancel()
		e.ui.Stop()
		e.teardownBrowser()
		e.state.Store(int32(StateInactive))
		return err
	}
	e.retrack = e.cdp.Retrack

	e.activate(runCtx, cancel)
	e.logger.Info("engine: active", "url", e.pageURL)
	return nil
}

// wire builds the loop collaborators over the given page surfaces. Split from
// Start so tests can run the loop against fakes.
func (e *Engine) wire(ev pageEval, dom domSource, svc detect.Service, ref session.Refiner) {
	e.scan = scanner.New(ev, scanner.WithLogger(e.logger))
	e.registry = scanner.NewRegistry()
	e.pages = markup.New()
	e.dom = dom
	e.refiner = ref
	e.coord = detect.New(svc, detect.WithLogger(e.logger))
	e.ov = overlay.New(ev, overlay.Config{
		Trigger: overlay.Trigger(e.cfg.Overlay.Trigger),
		Edge:    overlay.Edge(e.cfg.Overlay.Edge),
		Offset:  e.cfg.Overlay.Offset,
		Logger:  e.logger,
	})
	e.ind = indicator.New(ev, e.cfg.Detection.IndicatorMinVisible, e.logger)
	e.obs = observer.New(observer.Config{
		Window: e.cfg.Detection.DebounceWindow,
		Signature: func(ctx context.Context) string {
			return suggest.Signature(e.scan.Scan(ctx))
		},
		OnChange: func(string) { e.requestRescan() },
		Logger:   e.logger,
	})
	e.obsStarted = false
	e.retrack = nil
}

// activate flips the engine Active and starts the loop goroutine.
func (e *Engine) activate(runCtx context.Context, cancel context.CancelFunc) {
	e.cancel = cancel
	e.loopDone = make(chan struct{})
	e.state.Store(int32(StateActive))
	e.emit(suggest.Event{Type: suggest.EventStarted})
	go e.run(runCtx)
}

// Stop deactivates the engine: the loop is stopped first, then every injected
// surface is torn down, so no overlay render can land after Stop returns.
// Idempotent; stopping an Inactive engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == StateInactive {
		return
	}
	e.state.Store(int32(StateInactive))

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	// loopDone stays closed, not nil: a caller racing Stop inside runOnLoop
	// still needs a channel to select on.
	if e.loopDone != nil {
		<-e.loopDone
	}

	// The run context is dead; teardown evals get a fresh bounded one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.obs != nil {
		e.obs.Stop()
	}
	if e.cdp != nil {
		e.cdp.Stop()
		e.cdp = nil
	}
	if e.ui != nil {
		e.ui.Stop()
		e.ui = nil
	}
	if e.ind != nil {
		e.ind.ForceHide(ctx)
	}
	if e.ov != nil {
		e.ov.RemoveAll(ctx)
	}
	if e.registry != nil {
		e.registry.Reset()
	}
	if e.coord != nil {
		e.coord.Reset()
	}
	e.teardownBrowser()

	e.emit(suggest.Event{Type: suggest.EventStopped})
	e.logger.Info("engine: stopped")
}

func (e *Engine) teardownBrowser() {
	if e.tab != nil {
		e.tab.Close()
		e.tab = nil
	}
	if e.mgr != nil {
		e.mgr.Close()
		e.mgr = nil
	}
}

// Rescan schedules a manual scan. Returns false when the engine is not
// Active; a scan already pending coalesces into one.
func (e *Engine) Rescan() bool {
	if e.State() != StateActive {
		return false
	}
	e.requestRescan()
	return true
}

// Accept fills the field with the chosen value and emits the accept event.
func (e *Engine) Accept(ctx context.Context, handle, value string) error {
	return e.runOnLoop(ctx, func(lctx context.Context) error {
		ws, err := e.openSession(handle)
		if err != nil {
			return err
		}
		return ws.Accept(lctx, value)
	})
}

// Reject dismisses the suggestion workflow for the field.
func (e *Engine) Reject(ctx context.Context, handle string) error {
	return e.runOnLoop(ctx, func(lctx context.Context) error {
		ws, err := e.openSession(handle)
		if err != nil {
			return err
		}
		ws.Reject(lctx)
		return nil
	})
}

// Refine re-requests suggestions for the field with extra context. The service
// call runs on the caller's goroutine so the loop keeps serving UI events and
// detection results in the meantime; only the request assembly and the cache
// replacement are serialized onto the loop. On failure, or when the detection
// session was superseded while the call was out, the cache is left untouched.
func (e *Engine) Refine(ctx context.Context, handle string, in RefineInput) error {
	var ws *session.Session
	var req inference.RefineRequest
	if err := e.runOnLoop(ctx, func(lctx context.Context) error {
		var err error
		ws, err = e.openSession(handle)
		if err != nil {
			return err
		}
		req = ws.RefineRequest(lctx, in)
		return nil
	}); err != nil {
		return err
	}

	resp, err := e.refiner.RefineField(ctx, req)
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}

	return e.runOnLoop(ctx, func(context.Context) error {
		if e.coord.Current() != ws.Detection() {
			return ErrNoSession
		}
		ws.ApplyRefinement(resp)
		return nil
	})
}

// Suggestions returns the cached entries for a field of the current session.
func (e *Engine) Suggestions(handle string) ([]suggest.SuggestionEntry, error) {
	sess := e.Current()
	if sess == nil {
		return nil, ErrNoSession
	}
	fd, ok := sess.FieldByHandle(handle)
	if !ok {
		return nil, &ErrFieldUnknown{Handle: handle}
	}
	return sess.EntriesFor(fd), nil
}

// runOnLoop executes fn on the engine loop goroutine, preserving the
// single-writer discipline for overlay and session state. Stop can complete
// between the state check and the send; the loopDone arms keep the call from
// blocking on a loop that is no longer receiving.
func (e *Engine) runOnLoop(ctx context.Context, fn func(context.Context) error) error {
	loopDone := e.loopDoneCh()
	if loopDone == nil || e.State() != StateActive {
		return ErrNotActive
	}
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case e.cmdCh <- c:
	case <-loopDone:
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.done:
		return err
	case <-loopDone:
		// The loop exited; it may still have finished this command first.
		select {
		case err := <-c.done:
			return err
		default:
			return ErrNotActive
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loopDoneCh() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loopDone
}

func (e *Engine) requestRescan() {
	select {
	case e.rescanCh <- struct{}{}:
	default:
	}
}

func (e *Engine) requestReset() {
	select {
	case e.resetCh <- struct{}{}:
	default:
	}
}

// run is the engine loop. Everything that touches overlay, registry, or
// session state happens here.
func (e *Engine) run(ctx context.Context) {
	defer close(e.loopDone)

	initial := time.NewTimer(e.cfg.Detection.InitialDelay)
	defer initial.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initial.C:
			e.runScan(ctx, "initial")
		case <-e.rescanCh:
			e.runScan(ctx, "rescan")
		case <-e.resetCh:
			e.reinitDocument(ctx)
		case res := <-e.coord.Results():
			e.handleResult(ctx, res)
		case ev := <-e.uiCh:
			e.handleUIEvent(ctx, ev)
		case c := <-e.cmdCh:
			c.done <- c.fn(ctx)
		}
	}
}

// runScan enumerates candidates and, when any exist, submits a detection
// request. A request already in flight swallows the trigger: the engine runs
// at most one rescan behind, and the next structural change catches it up.
func (e *Engine) runScan(ctx context.Context, trigger string) {
	fields := e.scan.Scan(ctx)
	e.registry.Prune(fields)

	fresh := 0
	for _, fd := range fields {
		if e.registry.MarkSeen(fd.Handle) {
			fresh++
		}
	}

	// The mutation observer starts only once a baseline signature exists,
	// so the first quiesced burst is compared against the initial scan.
	if !e.obsStarted {
		e.obs.SetBaseline(suggest.Signature(fields))
		e.obs.Start(ctx)
		e.obsStarted = true
	}

	if len(fields) == 0 {
		e.logger.Debug("engine: no candidates, detection skipped", "trigger", trigger)
		return
	}

	raw, err := e.dom.GetFullDOM(ctx)
	if err != nil {
		e.logger.Warn("engine: read page DOM failed", "error", err)
		return
	}
	payload, err := e.pages.Detect(raw)
	if err != nil {
		e.logger.Warn("engine: build detect payload failed", "error", err)
		return
	}

	accepted := e.coord.Request(ctx, inference.DetectRequest{
		Markup:     payload,
		PageURL:    e.pageURL,
		PageDomain: domainOf(e.pageURL),
		Fields:     fields,
	})
	if accepted {
		e.ind.Show(ctx)
		e.logger.Debug("engine: detection requested",
			"trigger", trigger, "candidates", len(fields), "fresh", fresh)
	}
}

// handleResult installs a completed detection session. The new session
// supersedes the previous one wholesale: stale widgets are removed and fresh
// ones appear on the next interaction, gated by the new session's
// suggestions.
func (e *Engine) handleResult(ctx context.Context, res detect.Result) {
	if e.State() != StateActive {
		return
	}
	sess := res.Session
	e.coord.Store(sess)
	e.ind.Hide(ctx)
	e.ov.RemoveAll(ctx)

	switch sess.Status {
	case suggest.StatusSuccess:
		e.emit(suggest.Event{Type: suggest.EventDetected, FormID: sess.FormID})
		e.logger.Info("engine: detection complete",
			"form_id", sess.FormID, "fields", len(sess.Fields), "suggested", len(sess.Suggestions))
	default:
		e.emit(suggest.Event{Type: suggest.EventNoSuggestions, FormID: sess.FormID})
		e.logger.Info("engine: detection returned no suggestions",
			"form_id", sess.FormID, "status", sess.Status)
	}
}

func (e *Engine) handleUIEvent(ctx context.Context, ev overlay.UIEvent) {
	e.ov.SetViewport(ev.Viewport)

	switch ev.Kind {
	case overlay.KindReflow:
		e.ov.RepositionAll(ctx, ev.Rects, ev.Viewport)
		return
	case overlay.KindNavigate:
		e.handleNavigate(ctx, ev.URL)
		return
	}

	sess := e.coord.Current()

	switch ev.Kind {
	case overlay.KindFocus, overlay.KindHover:
		// Widgets exist only for fields the current session has suggestions
		// for. No session or no entries means no overlay, ever.
		fd, ok := sess.FieldByHandle(ev.Handle)
		if !ok || !sess.HasSuggestions(fd) {
			return
		}
		if ev.Rect != nil {
			fd.Rect = *ev.Rect
		}
		if ev.Kind == overlay.KindFocus {
			e.ov.FieldFocused(ctx, fd)
		} else {
			e.ov.FieldHovered(ctx, fd)
		}
	case overlay.KindBlur:
		e.ov.FieldBlurred(ctx, ev.Handle)
	case overlay.KindLeave:
		e.ov.FieldLeft(ctx, ev.Handle)
	case overlay.KindWidgetHover:
		e.ov.WidgetHovered(ctx, ev.Handle)
	case overlay.KindWidgetLeave:
		e.ov.WidgetLeft(ctx, ev.Handle)
	case overlay.KindWidgetClick:
		ws, err := e.openSession(ev.Handle)
		if err != nil {
			e.logger.Debug("engine: widget click ignored", "handle", ev.Handle, "error", err)
			return
		}
		if err := e.ov.ShowMenu(ctx, ev.Handle, ws.Entries()); err != nil {
			e.logger.Warn("engine: show menu failed", "handle", ev.Handle, "error", err)
		}
	case overlay.KindAccept:
		ws, err := e.openSession(ev.Handle)
		if err != nil {
			e.logger.Debug("engine: accept ignored", "handle", ev.Handle, "error", err)
			return
		}
		if err := ws.Accept(ctx, ev.Value); err != nil {
			e.logger.Warn("engine: accept failed", "handle", ev.Handle, "error", err)
		}
	case overlay.KindReject:
		ws, err := e.openSession(ev.Handle)
		if err != nil {
			e.logger.Debug("engine: reject ignored", "handle", ev.Handle, "error", err)
			return
		}
		ws.Reject(ctx)
	default:
		e.logger.Debug("engine: unknown ui event", "kind", ev.Kind)
	}
}

// handleNavigate reacts to a client-side navigation: the current session is
// superseded, widgets come down, and a rescan is scheduled against the new
// view.
func (e *Engine) handleNavigate(ctx context.Context, newURL string) {
	if newURL != "" {
		e.pageURL = newURL
	}
	e.logger.Info("engine: navigation detected", "url", e.pageURL)
	e.ov.RemoveAll(ctx)
	e.registry.Reset()
	e.coord.Reset()
	e.requestRescan()
}

// reinitDocument handles a full document replacement: mutation tracking is
// re-armed first, since the browser stops delivering DOM events for the new
// document until then, and the injected runtime is gone with the old document,
// so it is re-installed before rescanning.
func (e *Engine) reinitDocument(ctx context.Context) {
	if e.retrack != nil {
		if err := e.retrack(); err != nil {
			e.logger.Warn("engine: re-arm dom tracking failed", "error", err)
		}
	}
	if err := e.ov.Inject(ctx); err != nil {
		e.logger.Warn("engine: re-inject runtime failed", "error", err)
	}
	current := ""
	if u, err := e.dom.URL(ctx); err == nil {
		current = u
	}
	e.handleNavigate(ctx, current)
}

func (e *Engine) openSession(handle string) (*session.Session, error) {
	sess := e.coord.Current()
	if sess == nil {
		return nil, ErrNoSession
	}
	fd, ok := sess.FieldByHandle(handle)
	if !ok {
		return nil, &ErrFieldUnknown{Handle: handle}
	}
	return session.Open(fd, sess, session.Config{
		Refiner: e.refiner,
		Page:    e.ov,
		Events:  e.events,
		PageURL: e.pageURL,
		Logger:  e.logger,
	})
}

// emit sends a lifecycle or detection event, fire-and-forget.
func (e *Engine) emit(ev suggest.Event) {
	if e.events == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.PageURL = e.pageURL
	ev.Timestamp = time.Now().UnixMilli()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.events.Send(ctx, ev); err != nil {
			e.logger.Warn("engine: emit event failed", "type", ev.Type, "error", err)
		}
	}()
}

// blockedOrigin reports whether the page URL's host matches an entry on the
// blocklist. Entries match the host exactly or as a parent domain.
func blockedOrigin(raw string, blocked []string) (string, bool) {
	if len(blocked) == 0 {
		return "", false
	}
	host := domainOf(raw)
	if host == "" {
		return "", false
	}
	for _, b := range blocked {
		b = strings.ToLower(strings.TrimSpace(b))
		b = strings.TrimPrefix(strings.TrimPrefix(b, "https://"), "http://")
		b = strings.TrimSuffix(b, "/")
		if b == "" {
			continue
		}
		if host == b || strings.HasSuffix(host, "."+b) {
			return host, true
		}
	}
	return "", false
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
