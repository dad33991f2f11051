package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Render    RenderConfig
	Search    SearchConfig
	AI        AIConfig
	Filter    FilterConfig
	Discovery DiscoveryConfig
	Engine    EngineConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// Metrics exposes Prometheus collectors on /metrics.
	Metrics bool // default: true
}

// BrowserConfig controls the per-session Chromium process.
type BrowserConfig struct {
	Headless   bool // default: true
	NoSandbox  bool // default: false
	BrowserBin string
	Proxy      string

	// LaunchTimeout bounds browser start-up.
	LaunchTimeout time.Duration // default: 30s
}

// RenderConfig controls how a single page is rendered.
type RenderConfig struct {
	// FastTimeout bounds a fast-pass render (DOMContentLoaded).
	FastTimeout time.Duration // default: 15s

	// DeepTimeout bounds a deep-pass render (network almost idle).
	DeepTimeout time.Duration // default: 25s

	// MinDocumentBytes rejects suspiciously small documents.
	MinDocumentBytes int // default: 2000

	ScrollSteps  int           // default: 3
	ScrollStepPx int           // default: 800
	ScrollPause  time.Duration // default: 250ms

	// BlockedResourceTypes lists sub-resource types aborted before navigation.
	BlockedResourceTypes []string // default: ["Image", "Font", "Media"]

	BlockAds bool // default: true
}

// SearchConfig controls URL resolution.
type SearchConfig struct {
	APIKey   string
	EngineID string // Google Programmable Search "cx"
	Endpoint string

	Region   string // default: "au"
	Pages    int    // default: 2
	PageSize int    // default: 10
	MaxSites int    // default: 15

	// IntentWord is appended to the keyword unless already present.
	IntentWord string // default: "buy"

	Blocklist       []string
	PriorityVendors []string

	// RequestsPerSecond throttles calls to the provider.
	RequestsPerSecond float64 // default: 5
	Timeout           time.Duration
}

// AIConfig controls the language-model fallback.
type AIConfig struct {
	// Provider is "openai", "ollama" or "none".
	Provider string
	APIKey   string
	Model    string
	BaseURL  string

	// Timeout must stay below Render.FastTimeout.
	Timeout   time.Duration // default: 12s
	MaxTokens int           // default: 1200

	// MaxChars is the character budget of the HTML fragment sent to the model.
	MaxChars int // default: 60000

	// MaxResults caps how many products the model is asked for.
	MaxResults int // default: 3

	// TriggerBelow runs the model when structured extraction produced
	// fewer candidates than this.
	TriggerBelow int // default: 1

	// PrepareMode is "html", "markdown" or "readability".
	PrepareMode string // default: "html"
}

// FilterConfig controls relevance filtering.
type FilterConfig struct {
	// PolicyFile optionally overrides the built-in policy tables.
	PolicyFile string

	MatchMode   string  // "any" or "fraction"; default: "any"
	MinFraction float64 // default: 0.5

	// Currency is the default price currency for structured data.
	Currency string // default: "AUD"
}

// DiscoveryConfig controls the session orchestrator.
type DiscoveryConfig struct {
	Concurrency     int  // default: 5
	TwoPhase        bool // default: true
	DeepConcurrency int  // default: 2
	DeepPassLimit   int  // default: 8
}

// EngineConfig controls the fast-pass engine race.
type EngineConfig struct {
	// EnableMultiEngine races a plain HTTP fetch against the browser
	// during the fast pass.
	EnableMultiEngine bool // default: false

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 1500ms]

	HTTPTimeout     time.Duration // default: 6s
	DomainMemoryTTL time.Duration // default: 24h
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 0.5
	Burst             int     // default: 3
}

// CacheConfig controls the resolved-URL cache.
type CacheConfig struct {
	MaxEntries int           // default: 500
	TTL        time.Duration // default: 30m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:    envOr("SHOPSCOUT_HOST", "0.0.0.0"),
			Port:    envIntOr("SHOPSCOUT_PORT", 8080),
			Mode:    envOr("SHOPSCOUT_MODE", "release"),
			Metrics: envBoolOr("SHOPSCOUT_METRICS", true),
		},
		Browser: BrowserConfig{
			Headless:      envBoolOr("SHOPSCOUT_HEADLESS", true),
			NoSandbox:     envBoolOr("SHOPSCOUT_NO_SANDBOX", false),
			BrowserBin:    os.Getenv("SHOPSCOUT_BROWSER_BIN"),
			Proxy:         os.Getenv("SHOPSCOUT_PROXY"),
			LaunchTimeout: envDurationOr("SHOPSCOUT_LAUNCH_TIMEOUT", 30*time.Second),
		},
		Render: RenderConfig{
			FastTimeout:      envDurationOr("SHOPSCOUT_PAGE_TIMEOUT", 15*time.Second),
			DeepTimeout:      envDurationOr("SHOPSCOUT_DEEP_PAGE_TIMEOUT", 25*time.Second),
			MinDocumentBytes: envIntOr("SHOPSCOUT_MIN_DOCUMENT_BYTES", 2000),
			ScrollSteps:      envIntOr("SHOPSCOUT_SCROLL_STEPS", 3),
			ScrollStepPx:     envIntOr("SHOPSCOUT_SCROLL_STEP_PX", 800),
			ScrollPause:      envDurationOr("SHOPSCOUT_SCROLL_PAUSE", 250*time.Millisecond),
			BlockedResourceTypes: envSliceOr("SHOPSCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("SHOPSCOUT_BLOCK_ADS", true),
		},
		Search: SearchConfig{
			APIKey:            os.Getenv("GOOGLE_API_KEY"),
			EngineID:          os.Getenv("GOOGLE_CX"),
			Endpoint:          envOr("SHOPSCOUT_SEARCH_ENDPOINT", "https://www.googleapis.com/customsearch/v1"),
			Region:            envOr("SHOPSCOUT_SEARCH_REGION", "au"),
			Pages:             envIntOr("SHOPSCOUT_SEARCH_PAGES", 2),
			PageSize:          envIntOr("SHOPSCOUT_SEARCH_PAGE_SIZE", 10),
			MaxSites:          envIntOr("SHOPSCOUT_MAX_SITES", 15),
			IntentWord:        envOr("SHOPSCOUT_SEARCH_INTENT", "buy"),
			Blocklist:         envSliceOr("SHOPSCOUT_SEARCH_BLOCKLIST", DefaultBlocklist),
			PriorityVendors:   envSliceOr("SHOPSCOUT_PRIORITY_VENDORS", nil),
			RequestsPerSecond: envFloatOr("SHOPSCOUT_SEARCH_RPS", 5),
			Timeout:           envDurationOr("SHOPSCOUT_SEARCH_TIMEOUT", 8*time.Second),
		},
		AI: AIConfig{
			Provider:     envOr("SHOPSCOUT_AI_PROVIDER", defaultAIProvider()),
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			Model:        envOr("SHOPSCOUT_AI_MODEL", "gpt-4o-mini"),
			BaseURL:      envOr("SHOPSCOUT_AI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:      envDurationOr("SHOPSCOUT_AI_TIMEOUT", 12*time.Second),
			MaxTokens:    envIntOr("SHOPSCOUT_AI_MAX_TOKENS", 1200),
			MaxChars:     envIntOr("SHOPSCOUT_AI_MAX_CHARS", 60000),
			MaxResults:   envIntOr("SHOPSCOUT_AI_MAX_RESULTS", 3),
			TriggerBelow: envIntOr("SHOPSCOUT_AI_TRIGGER_BELOW", 1),
			PrepareMode:  envOr("SHOPSCOUT_AI_PREPARE_MODE", "html"),
		},
		Filter: FilterConfig{
			PolicyFile:  os.Getenv("SHOPSCOUT_FILTER_POLICY"),
			MatchMode:   envOr("SHOPSCOUT_MATCH_MODE", "any"),
			MinFraction: envFloatOr("SHOPSCOUT_MATCH_MIN_FRACTION", 0.5),
			Currency:    envOr("SHOPSCOUT_CURRENCY", "AUD"),
		},
		Discovery: DiscoveryConfig{
			Concurrency:     envIntOr("SHOPSCOUT_CONCURRENCY", 5),
			TwoPhase:        envBoolOr("SHOPSCOUT_TWO_PHASE", true),
			DeepConcurrency: envIntOr("SHOPSCOUT_DEEP_CONCURRENCY", 2),
			DeepPassLimit:   envIntOr("SHOPSCOUT_DEEP_LIMIT", 8),
		},
		Engine: EngineConfig{
			EnableMultiEngine: envBoolOr("SHOPSCOUT_MULTI_ENGINE", false),
			EscalationDelays:  envDurationSliceOr("SHOPSCOUT_ESCALATION_DELAYS", []time.Duration{0, 1500 * time.Millisecond}),
			HTTPTimeout:       envDurationOr("SHOPSCOUT_HTTP_TIMEOUT", 6*time.Second),
			DomainMemoryTTL:   envDurationOr("SHOPSCOUT_DOMAIN_MEMORY_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SHOPSCOUT_RATE_RPS", 0.5),
			Burst:             envIntOr("SHOPSCOUT_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SHOPSCOUT_CACHE_MAX_ENTRIES", 500),
			TTL:        envDurationOr("SHOPSCOUT_CACHE_TTL", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("SHOPSCOUT_LOG_LEVEL", "info"),
			Format: envOr("SHOPSCOUT_LOG_FORMAT", "json"),
		},
	}
}

// DefaultBlocklist holds hosts that never lead to a storefront worth rendering.
var DefaultBlocklist = []string{
	"facebook.com", "youtube.com", "pinterest.com", "instagram.com",
	"reddit.com", "wikipedia.org", "tiktok.com", "twitter.com", "x.com",
	"linkedin.com", "quora.com", "amazon.com", "amazon.com.au", "ebay.com",
	"ebay.com.au", "etsy.com", "aliexpress.com", "temu.com", "gumtree.com.au",
}

// defaultAIProvider picks openai when a key is present in the environment.
// The choice is made once here and passed explicitly to the extractor.
func defaultAIProvider() string {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return "openai"
	}
	return "none"
}

// Validate reports configuration that cannot produce a working session.
func (c *Config) Validate() error {
	var errs []error
	if c.Discovery.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Discovery.Concurrency))
	}
	if c.Discovery.TwoPhase && c.Discovery.DeepConcurrency < 1 {
		errs = append(errs, fmt.Errorf("deep concurrency must be >= 1, got %d", c.Discovery.DeepConcurrency))
	}
	if c.Render.FastTimeout <= 0 || c.Render.DeepTimeout <= 0 {
		errs = append(errs, errors.New("render timeouts must be positive"))
	}
	if c.AI.Provider != "none" && c.AI.Timeout >= c.Render.FastTimeout {
		errs = append(errs, fmt.Errorf("AI timeout %s must be shorter than page timeout %s", c.AI.Timeout, c.Render.FastTimeout))
	}
	switch c.Filter.MatchMode {
	case "any", "fraction":
	default:
		errs = append(errs, fmt.Errorf("unknown match mode %q", c.Filter.MatchMode))
	}
	if c.Search.Pages < 1 || c.Search.PageSize < 1 || c.Search.PageSize > 10 {
		errs = append(errs, errors.New("search pages must be >= 1 and page size within 1..10"))
	}
	return errors.Join(errs...)
}
