package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/use-agent/shopscout/cache"
	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/models"
)

const endpoint = "https://search.test/customsearch/v1"

func testConfig() config.SearchConfig {
	return config.SearchConfig{
		APIKey:     "key",
		EngineID:   "cx",
		Endpoint:   endpoint,
		Region:     "au",
		Pages:      2,
		PageSize:   10,
		MaxSites:   15,
		IntentWord: "buy",
		Blocklist:  config.DefaultBlocklist,
		Timeout:    time.Second,
	}
}

func items(links ...string) string {
	parts := make([]string, len(links))
	for i, l := range links {
		parts[i] = fmt.Sprintf(`{"link":%q,"title":"t%d"}`, l, i)
	}
	return `{"items":[` + strings.Join(parts, ",") + `]}`
}

// pagedResponder answers by the "start" parameter and records the queries.
func pagedResponder(pages map[string]string, queries *[]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		if queries != nil {
			*queries = append(*queries, q.Get("q")+"@"+q.Get("start"))
		}
		body, ok := pages[q.Get("start")]
		if !ok {
			return httpmock.NewStringResponse(200, `{}`), nil
		}
		return httpmock.NewStringResponse(200, body), nil
	}
}

func newResolver(t *testing.T, cfg config.SearchConfig, responder httpmock.Responder, c *cache.Cache) *Resolver {
	t.Helper()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", endpoint, responder)
	return NewResolver(NewGoogleProvider(cfg, &http.Client{Transport: transport}), cfg, c)
}

func TestResolveFiltersDedupesAndCaps(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSites = 4
	cfg.PriorityVendors = []string{"vistaprint.com.au"}

	pages := map[string]string{
		"1": items(
			"https://www.magnets.example/shop",
			"https://www.facebook.com/magnets",
			"https://magnets.example/other",
			"https://en.wikipedia.org/wiki/Magnet",
			"ftp://files.example/x",
			"https://printco.example/magnets",
		),
		"11": items(
			"https://www.vistaprint.com.au/magnets",
			"https://fridge.example/",
			"https://sixth.example/",
		),
	}
	r := newResolver(t, cfg, pagedResponder(pages, nil), nil)

	got := r.Resolve(context.Background(), "fridge magnets")

	want := []models.CandidateURL{
		{URL: "https://www.vistaprint.com.au/magnets", Priority: true},
		{URL: "https://www.magnets.example/shop"},
		{URL: "https://printco.example/magnets"},
		{URL: "https://fridge.example/"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d URLs %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestResolveOneURLPerRegistrableDomain(t *testing.T) {
	cfg := testConfig()
	cfg.Blocklist = []string{"blog.example.com.au"}

	pages := map[string]string{
		"1": items(
			"https://blog.example.com.au/magnets",
			"https://shop.example.com.au/magnets",
			"https://example.com.au/fridge-magnets",
			"https://au.example.com.au/p/1",
			"https://other.example/magnets",
		),
		"11": items(),
	}
	r := newResolver(t, cfg, pagedResponder(pages, nil), nil)

	got := r.Resolve(context.Background(), "fridge magnets")

	want := []models.CandidateURL{
		{URL: "https://shop.example.com.au/magnets"},
		{URL: "https://other.example/magnets"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d URLs %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestResolveQueriesBothPagesWithIntent(t *testing.T) {
	var queries []string
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	base := pagedResponder(map[string]string{"1": items("https://a.example/")}, &queries)
	responder := func(req *http.Request) (*http.Response, error) {
		<-mu
		defer func() { mu <- struct{}{} }()
		return base(req)
	}

	r := newResolver(t, testConfig(), responder, nil)
	r.Resolve(context.Background(), "  bumper   stickers ")

	joined := strings.Join(queries, ",")
	for _, want := range []string{"bumper stickers buy@1", "bumper stickers buy@11"} {
		if !strings.Contains(joined, want) {
			t.Errorf("queries %v missing %q", queries, want)
		}
	}
}

func TestResolveFirstPageEmpty(t *testing.T) {
	pages := map[string]string{
		"1":  `{"items":[]}`,
		"11": items("https://late.example/"),
	}
	r := newResolver(t, testConfig(), pagedResponder(pages, nil), nil)
	if got := r.Resolve(context.Background(), "nothing"); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestResolveSurvivesPageFailure(t *testing.T) {
	responder := func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("start") == "11" {
			return httpmock.NewStringResponse(500, `oops`), nil
		}
		return httpmock.NewStringResponse(200, items("https://ok.example/")), nil
	}
	r := newResolver(t, testConfig(), responder, nil)
	got := r.Resolve(context.Background(), "mugs")
	if len(got) != 1 || got[0].URL != "https://ok.example/" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveUnconfigured(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	var calls int32
	r := newResolver(t, cfg, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return httpmock.NewStringResponse(200, items("https://a.example/")), nil
	}, nil)

	if got := r.Resolve(context.Background(), "mugs"); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
	if calls != 0 {
		t.Errorf("provider called %d times without credentials", calls)
	}
}

func TestResolveUsesCache(t *testing.T) {
	var calls int32
	responder := func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return httpmock.NewStringResponse(200, items("https://a.example/")), nil
	}
	r := newResolver(t, testConfig(), responder, cache.New(10, time.Minute))
	hits := 0
	r.OnCacheHit(func() { hits++ })

	first := r.Resolve(context.Background(), "Tote Bags")
	second := r.Resolve(context.Background(), "tote bags")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("first=%v second=%v", first, second)
	}
	if calls != 2 {
		t.Errorf("provider called %d times, want 2 (one search, two pages)", calls)
	}
	if hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}
}

func TestGoogleStatusDiagnostics(t *testing.T) {
	tests := []struct {
		status int
		code   string
		hint   string
	}{
		{403, models.ErrCodeSearchForbidden, "enabled"},
		{429, models.ErrCodeSearchQuota, "quota"},
		{500, models.ErrCodeSearchFailed, "500"},
	}
	for _, tt := range tests {
		transport := httpmock.NewMockTransport()
		transport.RegisterResponder("GET", endpoint,
			httpmock.NewStringResponder(tt.status, `{"error":{"code":1,"message":"denied"}}`))
		p := NewGoogleProvider(testConfig(), &http.Client{Transport: transport})

		_, err := p.Search(context.Background(), Query{Text: "x", Start: 1, Num: 10})
		if models.CodeOf(err) != tt.code {
			t.Errorf("status %d: code = %s, want %s", tt.status, models.CodeOf(err), tt.code)
		}
		if err == nil || !strings.Contains(err.Error(), tt.hint) {
			t.Errorf("status %d: error %v lacks hint %q", tt.status, err, tt.hint)
		}
	}
}

func TestGoogleSendsParameters(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var got string
	transport.RegisterResponder("GET", endpoint, func(req *http.Request) (*http.Response, error) {
		got = req.URL.RawQuery
		return httpmock.NewStringResponse(200, `{"items":[{"link":""},{"link":"https://a.example"}]}`), nil
	})
	p := NewGoogleProvider(testConfig(), &http.Client{Transport: transport})

	res, err := p.Search(context.Background(), Query{Text: "mugs buy", Start: 11, Num: 10, Region: "au"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 {
		t.Errorf("empty links should be skipped: %v", res)
	}
	for _, want := range []string{"key=key", "cx=cx", "q=mugs+buy", "start=11", "num=10", "gl=au"} {
		if !strings.Contains(got, want) {
			t.Errorf("query %q missing %s", got, want)
		}
	}
}

func TestAugment(t *testing.T) {
	tests := []struct{ in, want string }{
		{"fridge magnets", "fridge magnets buy"},
		{"buy fridge magnets", "buy fridge magnets"},
		{"  Buy   mugs", "Buy mugs"},
	}
	for _, tt := range tests {
		if got := Augment(tt.in, "buy"); got != tt.want {
			t.Errorf("Augment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := Augment("mugs", ""); got != "mugs" {
		t.Errorf("empty intent: %q", got)
	}
}

func TestDomain(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://WWW.Shop.Example:8443/p", "shop.example"},
		{"http://sub.shop.example", "shop.example"},
		{"https://shop.example.com.au/magnets", "example.com.au"},
		{"https://au.example.com.au/", "example.com.au"},
		{"https://www.example.co.uk/p", "example.co.uk"},
		{"https://store.myshopify.com/p", "store.myshopify.com"},
		{"http://127.0.0.1:8080/p", "127.0.0.1"},
		{"http://localhost/p", "localhost"},
		{"::", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.in); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
