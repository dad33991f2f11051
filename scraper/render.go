package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/shopscout/models"
)

// Render loads pageURL in a fresh incognito context and returns the
// serialized DOM.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard      – per-mode deadline on the entire render
//  2. Isolated context   – incognito browser context + page, both released on return
//  3. Identity           – random desktop UA, stealth JS, Google referer
//  4. Hijack mount       – block heavy resources and ad hosts
//  5. Wait registration  – lifecycle listener installed before navigating
//  6. Navigate + wait
//  7. Scroll             – bounded, to trigger lazy product grids
//  8. Extract            – DOM + final URL, size check
//
// Steps 3-5 must precede step 6: stealth, blocking and the lifecycle
// listener only apply to navigations that start after they are installed.
func (b *Browser) Render(ctx context.Context, pageURL string, mode models.RenderMode) (*models.RenderedPage, error) {
	b.active.Add(1)
	defer b.active.Add(-1)

	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout, event := b.cfg.FastTimeout, proto.PageLifecycleEventNameDOMContentLoaded
	if mode == models.RenderDeep {
		timeout, event = b.cfg.DeepTimeout, proto.PageLifecycleEventNameNetworkAlmostIdle
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// ── 2. Isolated context ───────────────────────────────────────────
	incognito, err := b.rod.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create browser context", err)
	}
	defer func() {
		if err := incognito.Close(); err != nil {
			slog.Debug("cleanup: dispose browser context failed", "url", pageURL, "error", err)
		}
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}
	defer func() { _ = page.Close() }()

	// ── 3. Identity ───────────────────────────────────────────────────
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      RandomUserAgent(),
		AcceptLanguage: "en-AU,en;q=0.9",
	}); err != nil {
		slog.Debug("user agent override failed", "url", pageURL, "error", err)
	}
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "url", pageURL, "error", err)
	}
	if u, err := url.Parse(pageURL); err == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
			}),
		}.Call(page)
	}

	// ── 4. Hijack mount ───────────────────────────────────────────────
	if router := setupHijack(page, b.cfg.BlockedResourceTypes, b.cfg.BlockAds); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 5. Wait registration ──────────────────────────────────────────
	p := page.Context(ctx)
	wait := p.WaitNavigation(event)

	// ── 6. Navigate + wait ────────────────────────────────────────────
	if err := p.Navigate(pageURL); err != nil {
		return nil, categorizeError(err, "navigation failed")
	}
	wait()
	if ctx.Err() != nil {
		return nil, categorizeError(ctx.Err(), fmt.Sprintf("page did not reach %s", event))
	}

	// ── 7. Scroll ─────────────────────────────────────────────────────
	b.scroll(ctx, p)

	// ── 8. Extract ────────────────────────────────────────────────────
	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to read page HTML")
	}
	if len(html) < b.cfg.MinDocumentBytes {
		return nil, models.NewScrapeError(models.ErrCodeShortDocument,
			fmt.Sprintf("document is %d bytes, below the %d byte minimum", len(html), b.cfg.MinDocumentBytes), nil)
	}

	finalURL := pageURL
	if res, err := p.Eval(`() => window.location.href`); err == nil {
		if s := res.Value.Str(); s != "" {
			finalURL = s
		}
	}

	return &models.RenderedPage{
		URL:      pageURL,
		FinalURL: finalURL,
		HTML:     html,
		Engine:   "rod",
	}, nil
}

// scroll nudges the viewport down a few times so lazy-loaded grids render.
// Errors are ignored; a page that refuses to scroll is still usable.
func (b *Browser) scroll(ctx context.Context, p *rod.Page) {
	for i := 0; i < b.cfg.ScrollSteps; i++ {
		if _, err := p.Eval(`(dy) => window.scrollBy(0, dy)`, b.cfg.ScrollStepPx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.ScrollPause):
		}
	}
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "render canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
