// Package app assembles a discovery Service from configuration. The HTTP
// server and the CLI share it so both run identical sessions.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/use-agent/shopscout/api/handler"
	"github.com/use-agent/shopscout/cache"
	"github.com/use-agent/shopscout/cleaner"
	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/discovery"
	"github.com/use-agent/shopscout/engine"
	"github.com/use-agent/shopscout/extract"
	"github.com/use-agent/shopscout/filter"
	"github.com/use-agent/shopscout/llm"
	"github.com/use-agent/shopscout/metrics"
	"github.com/use-agent/shopscout/scraper"
	"github.com/use-agent/shopscout/search"
	"github.com/use-agent/shopscout/webhook"
)

// App is a wired discovery stack.
type App struct {
	Service *discovery.Service
	Metrics *metrics.Metrics
	Health  handler.HealthInfo
}

// New builds every component from cfg. Metrics are created only when
// enabled.
func New(cfg *config.Config) (*App, error) {
	// ── Filter policy ───────────────────────────────────────────────
	policy := filter.DefaultPolicy()
	if cfg.Filter.PolicyFile != "" {
		p, err := filter.LoadPolicy(cfg.Filter.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load filter policy: %w", err)
		}
		policy = p
	}
	policy = policy.WithMatch(cfg.Filter.MatchMode, cfg.Filter.MinFraction)

	// ── Search ──────────────────────────────────────────────────────
	httpClient := &http.Client{Timeout: cfg.Search.Timeout}
	google := search.NewGoogleProvider(cfg.Search, httpClient)
	resolver := search.NewResolver(google, cfg.Search, cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL))
	if !resolver.Configured() {
		slog.Warn("search provider not configured, sessions will find no sites",
			"error", search.ErrMissingCredentials)
	}

	// ── AI fallback ─────────────────────────────────────────────────
	provider, err := llm.New(cfg.AI, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	aiName := "none"
	if provider != nil {
		aiName = provider.Name()
	}
	ai := extract.NewAIExtractor(provider, cleaner.NewCleaner(), cfg.AI)

	var m *metrics.Metrics
	if cfg.Server.Metrics {
		m = metrics.New()
		resolver.OnCacheHit(m.CacheHit)
	}

	deps := discovery.Deps{
		Resolver: resolver,
		Launch: func(ctx context.Context) (discovery.Renderer, error) {
			b, err := scraper.Launch(ctx, cfg.Browser, cfg.Render)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		Filter:  filter.New(policy),
		AI:      ai,
		Metrics: m,
		Webhook: webhook.NewSender(nil),
	}

	// ── Multi-engine fast pass ──────────────────────────────────────
	if cfg.Engine.EnableMultiEngine {
		deps.HTTPEngine = engine.NewHTTPEngine(cfg.Engine.HTTPTimeout, cfg.Render.MinDocumentBytes)
		deps.Memory = engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL)
		slog.Info("multi-engine fast pass enabled", "delays", cfg.Engine.EscalationDelays)
	}

	return &App{
		Service: discovery.New(cfg, deps),
		Metrics: m,
		Health: handler.HealthInfo{
			SearchConfigured: resolver.Configured(),
			AIProvider:       aiName,
		},
	}, nil
}
