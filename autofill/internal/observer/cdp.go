package observer

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// CDPListener subscribes to DOM mutation events on a page and forwards each
// one as a notification to the Observer. Structural events (insert, remove)
// and attribute events both count: attribute churn can flip a field's
// visibility or disabled state, which changes the candidate set.
type CDPListener struct {
	page    *rod.Page
	obs     *Observer
	onReset func()
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCDPListener creates a listener feeding obs. onReset fires when the whole
// document is replaced (DOM.documentUpdated) and on top-level navigation; the
// engine uses it to re-initialise tracking.
func NewCDPListener(page *rod.Page, obs *Observer, onReset func()) *CDPListener {
	return &CDPListener{page: page, obs: obs, onReset: onReset}
}

// Start enables the DOM domain and begins listening. DOM.getDocument with
// depth=-1 and pierce=true is the critical CDP constraint: without it,
// mutations on deep nodes are silently ignored.
func (cl *CDPListener) Start(ctx context.Context) error {
	cl.ctx, cl.cancel = context.WithCancel(ctx)

	if err := (proto.DOMEnable{}).Call(cl.page); err != nil {
		return err
	}
	if err := cl.Retrack(); err != nil {
		return err
	}

	go cl.listenAll()
	return nil
}

// Retrack re-pulls the full document. The browser stops delivering mutation
// events for a replaced document until getDocument is issued again, so this
// must run after every DOM.documentUpdated.
func (cl *CDPListener) Retrack() error {
	depth := -1
	_, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(cl.page)
	return err
}

// Stop disconnects the listener.
func (cl *CDPListener) Stop() {
	if cl.cancel != nil {
		cl.cancel()
	}
}

func (cl *CDPListener) listenAll() {
	wait := cl.page.Context(cl.ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			cl.obs.Notify()
		},
		func(e *proto.DOMChildNodeRemoved) {
			cl.obs.Notify()
		},
		func(e *proto.DOMAttributeModified) {
			cl.obs.Notify()
		},
		func(e *proto.DOMAttributeRemoved) {
			cl.obs.Notify()
		},
		func(e *proto.DOMDocumentUpdated) {
			if cl.onReset != nil {
				cl.onReset()
			}
		},
	)

	// EachEvent returns a wait function that blocks until context is cancelled.
	wait()
}
