package search

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/shopscout/cache"
	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/models"
)

var errFirstPageEmpty = errors.New("first result page empty")

// Resolver turns a keyword into candidate URLs. It never fails: provider
// errors are logged and shrink the result.
type Resolver struct {
	provider Provider
	cfg      config.SearchConfig
	cache    *cache.Cache
	onHit    func()
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(p Provider, cfg config.SearchConfig, c *cache.Cache) *Resolver {
	if cfg.Pages <= 0 {
		cfg.Pages = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	return &Resolver{provider: p, cfg: cfg, cache: c}
}

// OnCacheHit registers fn to run whenever a keyword is served from cache.
func (r *Resolver) OnCacheHit(fn func()) { r.onHit = fn }

// Configured reports whether the underlying provider has credentials.
func (r *Resolver) Configured() bool { return r.provider != nil && r.provider.Configured() }

// Resolve searches for keyword and returns at most MaxSites URLs, one per
// registrable domain, priority vendors first, blocked hosts removed.
func (r *Resolver) Resolve(ctx context.Context, keyword string) []models.CandidateURL {
	log := slog.With("keyword", keyword)

	if !r.Configured() {
		log.Error("search provider not configured", "error", ErrMissingCredentials)
		return nil
	}

	key := cache.Key(keyword, r.cfg.Region)
	if hit, ok := r.cache.Get(key); ok {
		log.Debug("resolved URLs served from cache", "count", len(hit))
		if r.onHit != nil {
			r.onHit()
		}
		return hit
	}

	query := Augment(keyword, r.cfg.IntentWord)
	pages := make([][]Result, r.cfg.Pages)

	g, gctx := errgroup.WithContext(ctx)
	for i := range pages {
		g.Go(func() error {
			res, err := r.provider.Search(gctx, Query{
				Text:   query,
				Start:  1 + i*r.cfg.PageSize,
				Num:    r.cfg.PageSize,
				Region: r.cfg.Region,
			})
			if err != nil {
				if gctx.Err() == nil {
					log.Warn("search page failed",
						"page", i+1, "code", models.CodeOf(err), "error", err,
					)
				}
				return nil
			}
			if i == 0 && len(res) == 0 {
				return errFirstPageEmpty
			}
			pages[i] = res
			return nil
		})
	}
	if err := g.Wait(); errors.Is(err, errFirstPageEmpty) {
		log.Info("search returned no results", "query", query)
		return nil
	}

	var all []Result
	for _, p := range pages {
		all = append(all, p...)
	}

	urls := r.shortlist(all)
	log.Info("resolved candidate URLs", "query", query, "results", len(all), "kept", len(urls))
	r.cache.Set(key, urls)
	return urls
}

// shortlist applies the blocklist, registrable-domain dedup, priority ordering and cap.
func (r *Resolver) shortlist(results []Result) []models.CandidateURL {
	seen := make(map[string]struct{})
	var out []models.CandidateURL
	for _, res := range results {
		u, err := url.Parse(strings.TrimSpace(res.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		host := hostOf(res.URL)
		if matchesAny(host, r.cfg.Blocklist) {
			continue
		}
		domain := Domain(res.URL)
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, models.CandidateURL{
			URL:      u.String(),
			Priority: matchesAny(host, r.cfg.PriorityVendors),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority && !out[j].Priority })

	if r.cfg.MaxSites > 0 && len(out) > r.cfg.MaxSites {
		out = out[:r.cfg.MaxSites]
	}
	return out
}

// Augment appends the intent word unless the keyword already has it.
func Augment(keyword, intent string) string {
	keyword = strings.Join(strings.Fields(keyword), " ")
	if intent == "" {
		return keyword
	}
	for _, w := range strings.Fields(strings.ToLower(keyword)) {
		if w == strings.ToLower(intent) {
			return keyword
		}
	}
	return keyword + " " + intent
}

// Domain returns the registrable domain of rawURL ("shop.example.com.au"
// → "example.com.au"). IP addresses and hosts without a public suffix are
// returned as the bare host without "www.".
func Domain(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// hostOf returns the lower-cased host of rawURL without port or "www.".
func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// matchesAny reports whether host equals or is a subdomain of any entry.
func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
