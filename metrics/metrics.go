package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for discovery sessions. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsTotal   *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	SitesTotal      *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	ProductsTotal   *prometheus.CounterVec
	RejectedTotal   *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	SearchCacheHits prometheus.Counter
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_sessions_total",
			Help: "Discovery sessions by outcome.",
		},
		[]string{"outcome"},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopscout_active_sessions",
			Help: "Discovery sessions currently streaming.",
		},
	)
	sites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_sites_total",
			Help: "Sites processed by pass and result.",
		},
		[]string{"pass", "result"},
	)
	renderDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopscout_render_duration_seconds",
			Help:    "Page render latency by mode.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 25, 40},
		},
		[]string{"mode"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_products_total",
			Help: "Products emitted by extraction source.",
		},
		[]string{"source"},
	)
	rejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_candidates_rejected_total",
			Help: "Candidates dropped before emission by reason.",
		},
		[]string{"reason"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_errors_total",
			Help: "Errors by code.",
		},
		[]string{"code"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopscout_search_cache_hits_total",
			Help: "Keyword resolutions served from cache.",
		},
	)

	registry.MustRegister(sessions, active, sites, renderDuration, products, rejected, errorsTotal, cacheHits)

	return &Metrics{
		Registry:        registry,
		SessionsTotal:   sessions,
		ActiveSessions:  active,
		SitesTotal:      sites,
		RenderDuration:  renderDuration,
		ProductsTotal:   products,
		RejectedTotal:   rejected,
		ErrorsTotal:     errorsTotal,
		SearchCacheHits: cacheHits,
	}
}

// SessionStarted marks a session as streaming.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionFinished records a session's outcome ("completed", "failed" or
// "cancelled").
func (m *Metrics) SessionFinished(outcome string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// Site records one processed site.
func (m *Metrics) Site(pass, result string) {
	if m == nil {
		return
	}
	m.SitesTotal.WithLabelValues(pass, result).Inc()
}

// ObserveRender records a render duration.
func (m *Metrics) ObserveRender(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.RenderDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// Product counts an emitted product.
func (m *Metrics) Product(source string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(source).Inc()
}

// Rejected counts a dropped candidate.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// Error counts an error by code.
func (m *Metrics) Error(code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// CacheHit counts a search cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.SearchCacheHits.Inc()
}
