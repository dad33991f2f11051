// Package discovery runs keyword discovery sessions: resolve candidate
// sites, render each one, extract and rank products, and stream the best
// product per domain to the caller as events.
package discovery

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/engine"
	"github.com/use-agent/shopscout/extract"
	"github.com/use-agent/shopscout/filter"
	"github.com/use-agent/shopscout/metrics"
	"github.com/use-agent/shopscout/models"
	"github.com/use-agent/shopscout/webhook"
)

// URLResolver turns a keyword into candidate sites. It never fails; an
// empty list means nothing usable was found.
type URLResolver interface {
	Resolve(ctx context.Context, keyword string) []models.CandidateURL
}

// Renderer renders pages for one session and is closed when it ends.
type Renderer interface {
	Render(ctx context.Context, url string, mode models.RenderMode) (*models.RenderedPage, error)
	Close()
}

// LaunchFunc starts a Renderer for a new session.
type LaunchFunc func(ctx context.Context) (Renderer, error)

// Deps are the collaborators a Service is built from. Resolver, Launch and
// Filter are required; the rest may be nil.
type Deps struct {
	Resolver URLResolver
	Launch   LaunchFunc
	Filter   *filter.Filter
	AI       *extract.AIExtractor

	// HTTPEngine is raced against the browser in the fast pass when
	// multi-engine rendering is enabled.
	HTTPEngine engine.Engine
	Memory     *engine.DomainMemory

	Metrics *metrics.Metrics
	Webhook *webhook.Sender
}

// Service starts discovery sessions. It is safe for concurrent use; each
// Run owns its own browser and state.
type Service struct {
	deps      Deps
	cfg       config.DiscoveryConfig
	engineCfg config.EngineConfig
	render    config.RenderConfig

	currency     string
	triggerBelow int

	active   atomic.Int64
	started  atomic.Int64
	finished atomic.Int64
	products atomic.Int64
}

// New creates a Service from cfg and deps.
func New(cfg *config.Config, deps Deps) *Service {
	return &Service{
		deps:         deps,
		cfg:          cfg.Discovery,
		engineCfg:    cfg.Engine,
		render:       cfg.Render,
		currency:     cfg.Filter.Currency,
		triggerBelow: cfg.AI.TriggerBelow,
	}
}

// Run starts a session for req and returns its event stream. The channel
// is closed after the done event, or early if ctx is cancelled.
func (s *Service) Run(ctx context.Context, req models.DiscoverRequest) <-chan models.Event {
	req.Defaults()
	out := make(chan models.Event, 16)
	sess := newSession(s, req, out)
	go sess.run(ctx)
	return out
}

// ActiveSessions returns the number of sessions currently streaming.
func (s *Service) ActiveSessions() int { return int(s.active.Load()) }

// Stats summarizes sessions served since start-up.
func (s *Service) Stats() models.SessionStats {
	return models.SessionStats{
		Started:  s.started.Load(),
		Finished: s.finished.Load(),
		Products: s.products.Load(),
	}
}

func (s *Service) multiEngine() bool {
	return s.engineCfg.EnableMultiEngine && s.deps.HTTPEngine != nil
}

func (s *Service) fastTimeout() time.Duration { return s.render.FastTimeout }
