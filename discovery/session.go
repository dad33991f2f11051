package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/shopscout/engine"
	"github.com/use-agent/shopscout/models"
	"github.com/use-agent/shopscout/pricing"
	"github.com/use-agent/shopscout/search"
	"github.com/use-agent/shopscout/webhook"
)

// State is a session's lifecycle stage.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving_urls"
	StateRendering State = "rendering"
	StateDeepPass  State = "deep_pass"
	StateDone      State = "done"
)

type pass string

const (
	passFast pass = "fast"
	passDeep pass = "deep"
)

// session is one discovery run. Only the goroutine running run emits
// events and touches completed, products and state.
type session struct {
	svc      *Service
	id       string
	req      models.DiscoverRequest
	keyword  string
	twoPhase bool
	markup   *pricing.Table
	out      chan<- models.Event
	log      *slog.Logger

	state      State
	renderer   Renderer
	dispatcher *engine.Dispatcher
	closeOnce  sync.Once

	mu   sync.Mutex
	seen map[string]bool

	total     int
	completed int
	products  int
}

// siteResult is what a worker reports for one site.
type siteResult struct {
	site    models.CandidateURL
	domain  string
	product *models.ProductCandidate
	err     error
	skipped bool
}

func newSession(svc *Service, req models.DiscoverRequest, out chan<- models.Event) *session {
	id := uuid.NewString()
	twoPhase := svc.cfg.TwoPhase
	if req.Deep != nil {
		twoPhase = *req.Deep
	}
	return &session{
		svc:      svc,
		id:       id,
		req:      req,
		keyword:  req.Keyword,
		twoPhase: twoPhase,
		markup:   pricing.NewTable(req.MarkupRules, req.DefaultMarkup),
		out:      out,
		log:      slog.With("session", id, "keyword", req.Keyword),
		state:    StateIdle,
		seen:     make(map[string]bool),
	}
}

func (s *session) run(ctx context.Context) {
	defer close(s.out)
	defer s.closeRenderer()

	s.svc.active.Add(1)
	s.svc.started.Add(1)
	s.svc.deps.Metrics.SessionStarted()
	outcome := "completed"
	defer func() {
		s.svc.active.Add(-1)
		s.svc.finished.Add(1)
		s.svc.deps.Metrics.SessionFinished(outcome)
	}()

	start := time.Now()
	s.transition(StateResolving)

	var urls []models.CandidateURL
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.svc.deps.Launch(gctx)
		if err != nil {
			return err
		}
		s.renderer = r
		return nil
	})
	g.Go(func() error {
		urls = s.svc.deps.Resolver.Resolve(gctx, s.keyword)
		return nil
	})
	if err := g.Wait(); err != nil {
		outcome = "failed"
		if models.CodeOf(err) == models.ErrCodeInternal {
			err = models.NewScrapeError(models.ErrCodeBrowserCrash, "browser launch failed", err)
		}
		s.log.Error("session aborted", "error", err)
		s.svc.deps.Metrics.Error(models.CodeOf(err))
		s.emit(ctx, models.NewFatalEvent(err))
		s.finish(ctx, 0, start)
		return
	}

	s.total = len(urls)
	if len(urls) == 0 {
		s.emit(ctx, models.NewProgressEvent(fmt.Sprintf("No candidate sites found for %q", s.keyword), 0, 0))
		s.finish(ctx, 0, start)
		return
	}

	s.transition(StateRendering)
	if s.svc.multiEngine() {
		s.dispatcher = engine.NewDispatcher(
			[]engine.Engine{s.svc.deps.HTTPEngine, engine.NewRodEngine(s.renderer.Render)},
			s.svc.engineCfg.EscalationDelays,
			s.svc.deps.Memory,
		)
	}
	s.emit(ctx, models.NewProgressEvent(fmt.Sprintf("Scanning %d sites", len(urls)), 0, len(urls)))

	retry := s.pass(ctx, passFast, urls, s.svc.cfg.Concurrency)
	processed := s.completed

	if s.twoPhase && len(retry) > 0 && ctx.Err() == nil {
		s.transition(StateDeepPass)
		if limit := s.svc.cfg.DeepPassLimit; limit > 0 && len(retry) > limit {
			retry = retry[:limit]
		}
		s.emit(ctx, models.NewProgressEvent(
			fmt.Sprintf("Taking a closer look at %d sites", len(retry)), s.completed, s.total))
		s.pass(ctx, passDeep, retry, s.svc.cfg.DeepConcurrency)
	}

	if ctx.Err() != nil {
		outcome = "cancelled"
	}
	s.finish(ctx, processed, start)
}

// pass renders urls with the given number of workers and returns the sites
// worth another attempt.
func (s *session) pass(ctx context.Context, p pass, urls []models.CandidateURL, workers int) []models.CandidateURL {
	queue := make(chan models.CandidateURL, len(urls))
	for _, u := range urls {
		queue <- u
	}
	close(queue)

	workers = max(1, min(workers, len(urls)))
	results := make(chan siteResult)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for site := range queue {
				if ctx.Err() != nil {
					return
				}
				results <- s.processSite(ctx, p, site)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var retry []models.CandidateURL
	done := 0
	for r := range results {
		done++
		if s.collect(ctx, p, r, done, len(urls)) {
			retry = append(retry, r.site)
		}
	}
	return retry
}

// collect handles one worker result on the emitting goroutine and reports
// whether the site should be retried in the deep pass.
func (s *session) collect(ctx context.Context, p pass, r siteResult, done, passTotal int) bool {
	log := s.log.With("site", r.site.URL, "pass", p)
	if p == passFast {
		s.completed++
	}

	retry := false
	switch {
	case r.skipped:
		s.svc.deps.Metrics.Site(string(p), "skipped")
	case r.err != nil:
		code := models.CodeOf(r.err)
		log.Warn("site failed", "code", code, "error", r.err)
		s.svc.deps.Metrics.Site(string(p), "error")
		s.svc.deps.Metrics.Error(code)
		s.emit(ctx, models.NewErrorEvent(r.site.URL, r.err))
		retry = p == passFast && models.IsRetryable(r.err)
	case r.product == nil:
		log.Debug("no product found")
		s.svc.deps.Metrics.Site(string(p), "empty")
		retry = p == passFast
	case !s.claim(r.domain):
		log.Debug("domain already has a product", "domain", r.domain)
		s.svc.deps.Metrics.Site(string(p), "duplicate")
	default:
		product := models.Product{
			ProductCandidate: *r.product,
			Domain:           r.domain,
			SiteURL:          r.site.URL,
			FinalPrice:       s.markup.Apply(r.product.Price),
		}
		s.products++
		s.svc.products.Add(1)
		s.svc.deps.Metrics.Site(string(p), "product")
		s.svc.deps.Metrics.Product(r.product.Source)
		log.Info("product found", "title", product.Title, "source", product.Source)
		s.emit(ctx, models.NewProductEvent(product))
	}

	msg := fmt.Sprintf("Checked %s", r.domain)
	if p == passDeep {
		msg = fmt.Sprintf("Rechecked %s (%d/%d)", r.domain, done, passTotal)
	}
	s.emit(ctx, models.NewProgressEvent(msg, s.completed, s.total))
	return retry
}

// claim records domain as emitted and reports whether it was free.
func (s *session) claim(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[domain] {
		return false
	}
	s.seen[domain] = true
	return true
}

func (s *session) claimed(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[domain]
}

func (s *session) finish(ctx context.Context, processed int, start time.Time) {
	s.transition(StateDone)
	s.closeRenderer()
	s.log.Info("session finished",
		"sites", processed,
		"products", s.products,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	s.emit(ctx, models.NewDoneEvent(processed, s.products))

	if s.req.WebhookURL != "" && s.svc.deps.Webhook != nil {
		s.svc.deps.Webhook.DeliverAsync(s.req.WebhookURL, s.req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventCompleted,
			SessionID: s.id,
			Keyword:   s.keyword,
			Timestamp: time.Now().Unix(),
			Data:      models.DoneData{TotalSitesProcessed: processed, Products: s.products},
		})
	}
}

func (s *session) transition(next State) {
	s.log.Debug("session state", "from", s.state, "to", next)
	s.state = next
}

// emit delivers ev unless the caller has gone away.
func (s *session) emit(ctx context.Context, ev models.Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *session) closeRenderer() {
	s.closeOnce.Do(func() {
		if s.renderer != nil {
			s.renderer.Close()
		}
	})
}

// domainOf returns the dedup key for a site.
func domainOf(site models.CandidateURL) string {
	if d := search.Domain(site.URL); d != "" {
		return d
	}
	return site.URL
}
