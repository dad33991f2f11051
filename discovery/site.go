package discovery

import (
	"context"
	"time"

	"github.com/use-agent/shopscout/engine"
	"github.com/use-agent/shopscout/extract"
	"github.com/use-agent/shopscout/filter"
	"github.com/use-agent/shopscout/models"
)

// processSite renders one site and picks its best product. It runs on a
// worker goroutine and touches no session state except the seen set.
func (s *session) processSite(ctx context.Context, p pass, site models.CandidateURL) siteResult {
	res := siteResult{site: site, domain: domainOf(site)}
	if s.claimed(res.domain) {
		res.skipped = true
		return res
	}

	mode := models.RenderFast
	if p == passDeep {
		mode = models.RenderDeep
	}

	start := time.Now()
	page, err := s.render(ctx, site.URL, mode)
	s.svc.deps.Metrics.ObserveRender(string(mode), time.Since(start))
	if err != nil {
		res.err = err
		return res
	}

	candidates := extract.Structured(page.HTML, page.BaseURL(), s.svc.currency)
	if s.wantAI(p, len(candidates)) {
		candidates = append(candidates, s.svc.deps.AI.Extract(ctx, page.HTML, page.BaseURL(), s.keyword)...)
	}

	ranked := s.svc.deps.Filter.FilterAndRank(candidates, s.keyword)
	for range len(candidates) - len(ranked) {
		s.svc.deps.Metrics.Rejected("filtered")
	}
	res.product = filter.Best(ranked)
	return res
}

// render uses the engine race for the fast pass when one is configured.
func (s *session) render(ctx context.Context, url string, mode models.RenderMode) (*models.RenderedPage, error) {
	if mode == models.RenderFast && s.dispatcher != nil {
		return s.dispatcher.Dispatch(ctx, &engine.FetchRequest{
			URL:     url,
			Mode:    mode,
			Timeout: s.svc.fastTimeout(),
		})
	}
	return s.renderer.Render(ctx, url, mode)
}

// wantAI reports whether the model fallback runs in pass p. With two
// phases the fast pass stays structured-only.
func (s *session) wantAI(p pass, structured int) bool {
	if !s.svc.deps.AI.Enabled() || structured >= s.svc.triggerBelow {
		return false
	}
	return p == passDeep || !s.twoPhase
}
