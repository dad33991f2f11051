// Package search turns a keyword into a short, ordered list of candidate
// storefront URLs.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/models"
)

// ErrMissingCredentials is returned when no API key or engine ID is set.
var ErrMissingCredentials = errors.New("search: GOOGLE_API_KEY and GOOGLE_CX must be set")

// Query is one page request against a provider.
type Query struct {
	Text   string
	Start  int // 1-based rank of the first result
	Num    int
	Region string
}

// Result is one organic hit.
type Result struct {
	URL   string
	Title string
}

// Provider is a web search backend.
type Provider interface {
	Name() string
	Configured() bool
	Search(ctx context.Context, q Query) ([]Result, error)
}

// GoogleProvider queries the Google Custom Search JSON API.
type GoogleProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	endpoint   string
	apiKey     string
	engineID   string
}

// NewGoogleProvider creates a provider throttled to cfg.RequestsPerSecond.
func NewGoogleProvider(cfg config.SearchConfig, httpClient *http.Client) *GoogleProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://www.googleapis.com/customsearch/v1"
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &GoogleProvider{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1+cfg.Pages),
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		engineID:   cfg.EngineID,
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) Configured() bool { return g.apiKey != "" && g.engineID != "" }

type googleResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Title string `json:"title"`
	} `json:"items"`
}

type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search fetches one page of results.
func (g *GoogleProvider) Search(ctx context.Context, q Query) ([]Result, error) {
	if !g.Configured() {
		return nil, models.NewScrapeError(models.ErrCodeSearchUnconfigured, ErrMissingCredentials.Error(), ErrMissingCredentials)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "search throttled past deadline", err)
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", q.Text)
	if q.Num > 0 {
		params.Set("num", strconv.Itoa(q.Num))
	}
	if q.Start > 0 {
		params.Set("start", strconv.Itoa(q.Start))
	}
	if q.Region != "" {
		params.Set("gl", q.Region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSearchFailed, "search request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSearchFailed, "failed to read search response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifySearchError(resp.StatusCode, body)
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSearchFailed, "malformed search response", err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{URL: item.Link, Title: item.Title})
	}
	return results, nil
}

// classifySearchError attaches the operator hint for the two statuses that
// usually mean misconfiguration rather than a transient fault.
func classifySearchError(status int, body []byte) *models.ScrapeError {
	var ge googleError
	msg := http.StatusText(status)
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		msg = ge.Error.Message
	}

	switch status {
	case http.StatusForbidden:
		return models.NewScrapeError(models.ErrCodeSearchForbidden,
			"search API returned 403 ("+msg+"): check that the Custom Search API is enabled and the key is valid", nil)
	case http.StatusTooManyRequests:
		return models.NewScrapeError(models.ErrCodeSearchQuota,
			"search API returned 429 ("+msg+"): daily quota exhausted", nil)
	default:
		return models.NewScrapeError(models.ErrCodeSearchFailed,
			fmt.Sprintf("search API returned %d: %s", status, msg), nil)
	}
}
