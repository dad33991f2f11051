// Package scraper renders pages in a headless Chromium driven by rod. A
// Browser belongs to one discovery session; every render gets its own
// incognito context so workers never share cookies or page state.
package scraper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/models"
)

// Browser is a launched Chromium process. It is safe for concurrent use
// and must be closed exactly once by its owner; Close is idempotent.
type Browser struct {
	rod      *rod.Browser
	launcher *launcher.Launcher
	cfg      config.RenderConfig

	active    atomic.Int32
	closeOnce sync.Once
}

// Launch starts Chromium with the stealth flag set and connects to it.
func Launch(ctx context.Context, bcfg config.BrowserConfig, rcfg config.RenderConfig) (*Browser, error) {
	if bcfg.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bcfg.LaunchTimeout)
		defer cancel()
	}

	l := launcher.New().
		Headless(bcfg.Headless).
		NoSandbox(bcfg.NoSandbox)

	if bcfg.BrowserBin != "" {
		l = l.Bin(bcfg.BrowserBin)
	}
	if bcfg.Proxy != "" {
		l = l.Proxy(bcfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("mute-audio"))

	// ctx bounds start-up only; the process outlives it.
	type launched struct {
		url string
		err error
	}
	done := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		done <- launched{u, err}
	}()

	var controlURL string
	select {
	case r := <-done:
		if r.err != nil {
			l.Kill()
			return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", r.err)
		}
		controlURL = r.url
	case <-ctx.Done():
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "browser launch timed out", ctx.Err())
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	return &Browser{rod: browser, launcher: l, cfg: rcfg}, nil
}

// Active reports how many renders are in flight.
func (b *Browser) Active() int { return int(b.active.Load()) }

// Close shuts the browser down and removes its profile directory. Calls
// after the first are no-ops.
func (b *Browser) Close() {
	b.closeOnce.Do(func() {
		if err := b.rod.Close(); err != nil {
			slog.Debug("browser close returned error", "error", err)
		}
		b.launcher.Kill()
		b.launcher.Cleanup()
		slog.Debug("browser closed")
	})
}
