package overlay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

// BindingName is the JS→Go channel the overlay runtime reports through.
const BindingName = "__autofill_binding"

// UIEvent is one interaction or page signal reported by the injected runtime.
type UIEvent struct {
	Kind     string                  `json:"kind"`
	Handle   string                  `json:"handle,omitempty"`
	Value    string                  `json:"value,omitempty"`
	URL      string                  `json:"url,omitempty"`
	Rect     *suggest.Rect           `json:"rect,omitempty"`
	Rects    map[string]suggest.Rect `json:"rects,omitempty"`
	Viewport Size                    `json:"viewport"`
}

// Event kinds produced by widget.js.
const (
	KindFocus       = "focus"
	KindBlur        = "blur"
	KindHover       = "hover"
	KindLeave       = "leave"
	KindWidgetHover = "widget_hover"
	KindWidgetLeave = "widget_leave"
	KindWidgetClick = "widget_click"
	KindAccept      = "accept"
	KindReject      = "reject"
	KindReflow      = "reflow"
	KindNavigate    = "navigate"
)

// UIListener receives binding calls from the injected runtime and forwards
// parsed events to a channel consumed by the engine loop.
type UIListener struct {
	page   *rod.Page
	out    chan<- UIEvent
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewUIListener creates a listener delivering to out.
func NewUIListener(page *rod.Page, out chan<- UIEvent, logger *slog.Logger) *UIListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &UIListener{page: page, out: out, logger: logger}
}

// Start registers the binding and begins listening. Call before injecting the
// overlay runtime so no early event is lost.
func (l *UIListener) Start(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(l.page); err != nil {
		// The binding survives navigation; re-adding it reports an error that
		// is safe to continue past.
		l.logger.Warn("overlay: addBinding failed (may already exist)", "error", err)
	}

	go l.listen()
	return nil
}

// Stop disconnects the listener.
func (l *UIListener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *UIListener) listen() {
	wait := l.page.Context(l.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		var ev UIEvent
		if err := json.Unmarshal([]byte(e.Payload), &ev); err != nil {
			l.logger.Warn("overlay: parse binding payload", "error", err)
			return
		}
		select {
		case l.out <- ev:
		case <-l.ctx.Done():
		}
	})
	wait()
}
