package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page with engine-specific setup: stealth, resource
// blocking, and a JSON-returning eval surface the rest of the engine builds
// on.
type Tab struct {
	Page    *rod.Page
	PageURL string
}

// OpenTab creates a new tab, navigates to the URL with stealth applied, and
// waits for load.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// EvalJSON runs a JS function expression in the page and returns its result
// serialised as JSON. The scanner, overlay, and indicator all execute page
// script through this.
func (t *Tab) EvalJSON(ctx context.Context, js string) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.MarshalJSON()
}

// GetFullDOM serialises the complete DOM as outer HTML, the raw input for
// markup extraction.
func (t *Tab) GetFullDOM(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// URL returns the page's current address, tracking client-side navigations.
func (t *Tab) URL(ctx context.Context) (string, error) {
	info, err := t.Page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// Viewport returns the current layout viewport size in CSS pixels.
func (t *Tab) Viewport(ctx context.Context) (w, h float64, err error) {
	m, err := proto.PageGetLayoutMetrics{}.Call(t.Page.Context(ctx))
	if err != nil {
		return 0, 0, fmt.Errorf("browser: layout metrics: %w", err)
	}
	if m.CSSLayoutViewport != nil {
		return float64(m.CSSLayoutViewport.ClientWidth), float64(m.CSSLayoutViewport.ClientHeight), nil
	}
	return 0, 0, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
