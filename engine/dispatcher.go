package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/shopscout/models"
)

// Dispatcher races engines with staged escalation: engines[i] starts
// delays[i] after the race begins, and the first success cancels the rest.
type Dispatcher struct {
	engines []Engine
	delays  []time.Duration
	memory  *DomainMemory
}

// NewDispatcher creates a Dispatcher. Missing delays default to zero.
func NewDispatcher(engines []Engine, delays []time.Duration, memory *DomainMemory) *Dispatcher {
	d := make([]time.Duration, len(engines))
	copy(d, delays)
	return &Dispatcher{engines: engines, delays: d, memory: memory}
}

// Dispatch fetches req. A domain whose last winner is remembered goes
// straight to that engine; if it fails the full race runs.
func (d *Dispatcher) Dispatch(ctx context.Context, req *FetchRequest) (*models.RenderedPage, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	domain := extractDomain(req.URL)

	if remembered := d.memory.Get(domain); remembered != "" {
		for _, eng := range d.engines {
			if eng.Name() != remembered {
				continue
			}
			slog.Debug("domain memory hit", "domain", domain, "engine", remembered)
			page, err := eng.Fetch(ctx, req)
			if err == nil {
				return page, nil
			}
			slog.Debug("remembered engine failed, running full race",
				"domain", domain, "engine", remembered, "error", err)
			d.memory.Delete(domain)
			break
		}
	}

	return d.race(ctx, req, domain)
}

func (d *Dispatcher) race(ctx context.Context, req *FetchRequest, domain string) (*models.RenderedPage, error) {
	type raceResult struct {
		page *models.RenderedPage
		err  error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	results := make(chan raceResult, len(d.engines))
	var wg sync.WaitGroup

	for i, eng := range d.engines {
		delay := d.delays[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			if delay > 0 {
				select {
				case <-raceCtx.Done():
					return
				case <-time.After(delay):
				}
			}
			if raceCtx.Err() != nil {
				return
			}

			page, err := eng.Fetch(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", eng.Name(), "url", req.URL, "error", err)
			}
			results <- raceResult{page: page, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var lastErr error
	for rr := range results {
		if rr.err != nil {
			lastErr = rr.err
			continue
		}
		raceCancel()
		slog.Debug("engine won race", "engine", rr.page.Engine, "url", req.URL)
		d.memory.Set(domain, rr.page.Engine)
		return rr.page, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: all engines failed for %s", req.URL)
	}
	return nil, lastErr
}

// extractDomain returns the host of rawURL without "www.".
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
