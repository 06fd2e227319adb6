package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	defaultPageTimeout = 30 * time.Second
	stableDuration     = 500 * time.Millisecond
)

// blockedResourceTypes lists network resource types the renderer skips.
// Event pages are fetched for their markup only.
var blockedResourceTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeStylesheet,
	proto.NetworkResourceTypeMedia,
}

// Renderer fetches JavaScript-rendered pages and returns their HTML.
// Adapters accept this interface so tests can substitute fixture HTML.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// RodRenderer drives a headless Chromium instance via Rod. One renderer is
// opened per adapter invocation and must be closed when the invocation ends,
// including on parse failures. Callers defer Close immediately after New.
type RodRenderer struct {
	browser     *rod.Browser
	pageTimeout time.Duration
}

// NewRodRenderer launches a headless Chromium process.
func NewRodRenderer(pageTimeout time.Duration) (*RodRenderer, error) {
	if pageTimeout <= 0 {
		pageTimeout = defaultPageTimeout
	}

	u, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to headless browser: %w", err)
	}

	return &RodRenderer{browser: browser, pageTimeout: pageTimeout}, nil
}

// Render navigates to pageURL, waits for the DOM to stabilize, and returns
// the rendered HTML. Each page load is bounded by the renderer's timeout so
// one slow page cannot stall the whole run.
func (r *RodRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	page, err := stealth.Page(r.browser)
	if err != nil {
		return "", fmt.Errorf("create tab: %w", err)
	}
	defer page.Close()

	renderCtx, cancel := context.WithTimeout(ctx, r.pageTimeout)
	defer cancel()
	page = page.Context(renderCtx)

	router := page.HijackRequests()
	for _, rt := range blockedResourceTypes {
		rt := rt
		_ = router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
	defer router.MustStop()

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", pageURL, err)
	}

	// WaitStable waits until the DOM stops changing for the given duration,
	// which covers the client-side rendering michigan.gov does on load.
	_ = page.WaitStable(stableDuration)

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("get HTML from %s: %w", pageURL, err)
	}

	return html, nil
}

// Close shuts down the headless browser process.
func (r *RodRenderer) Close() {
	_ = r.browser.Close()
}
