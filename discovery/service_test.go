package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/extract"
	"github.com/use-agent/shopscout/filter"
	"github.com/use-agent/shopscout/llm"
	"github.com/use-agent/shopscout/models"
)

type fakeResolver struct {
	urls []models.CandidateURL
}

func (f *fakeResolver) Resolve(ctx context.Context, keyword string) []models.CandidateURL {
	return f.urls
}

type fakeRenderer struct {
	mu      sync.Mutex
	fast    map[string]string
	deep    map[string]string
	fastErr map[string]error
	block   bool
	hang    map[string]time.Duration
	modes   map[string][]models.RenderMode
	closed  atomic.Int32
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		fast:    make(map[string]string),
		deep:    make(map[string]string),
		fastErr: make(map[string]error),
		hang:    make(map[string]time.Duration),
		modes:   make(map[string][]models.RenderMode),
	}
}

func (f *fakeRenderer) Render(ctx context.Context, url string, mode models.RenderMode) (*models.RenderedPage, error) {
	f.mu.Lock()
	f.modes[url] = append(f.modes[url], mode)
	html, ok := f.fast[url]
	if deep, found := f.deep[url]; found && mode == models.RenderDeep {
		html, ok = deep, true
	}
	err := f.fastErr[url]
	deadline, hangs := f.hang[url]
	f.mu.Unlock()

	if hangs {
		// A page that never finishes loading, bounded by the render deadline.
		ctx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		<-ctx.Done()
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "render timed out", ctx.Err())
	}
	if f.block {
		<-ctx.Done()
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "render timed out", ctx.Err())
	}
	if mode == models.RenderFast && err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "no such page", nil)
	}
	return &models.RenderedPage{URL: url, FinalURL: url, HTML: html}, nil
}

func (f *fakeRenderer) Close() { f.closed.Add(1) }

func (f *fakeRenderer) modesFor(url string) []models.RenderMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RenderMode(nil), f.modes[url]...)
}

type fakeProvider struct {
	out   string
	calls atomic.Int32
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	f.calls.Add(1)
	return f.out, nil
}

func productPage(title, price string) string {
	return fmt.Sprintf(`<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":%q,"image":"/img/product.jpg",
 "offers":{"@type":"Offer","price":%q,"priceCurrency":"AUD"}}
</script></head><body><h1>%s</h1></body></html>`, title, price, title)
}

func testConfig() *config.Config {
	return &config.Config{
		Render:    config.RenderConfig{FastTimeout: 5 * time.Second, DeepTimeout: 5 * time.Second},
		AI:        config.AIConfig{TriggerBelow: 1, MaxResults: 3, MaxChars: 10000},
		Filter:    config.FilterConfig{Currency: "AUD"},
		Discovery: config.DiscoveryConfig{Concurrency: 3, TwoPhase: true, DeepConcurrency: 2, DeepPassLimit: 8},
	}
}

func newService(cfg *config.Config, resolver URLResolver, r *fakeRenderer, provider llm.Provider) *Service {
	return New(cfg, Deps{
		Resolver: resolver,
		Launch:   func(ctx context.Context) (Renderer, error) { return r, nil },
		Filter:   filter.New(filter.DefaultPolicy()),
		AI:       extract.NewAIExtractor(provider, nil, cfg.AI),
	})
}

func drain(t *testing.T, ch <-chan models.Event) []models.Event {
	t.Helper()
	var events []models.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events", len(events))
		}
	}
}

func byType(events []models.Event, typ models.EventType) []models.Event {
	var out []models.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func lastDone(t *testing.T, events []models.Event) models.DoneData {
	t.Helper()
	if len(events) == 0 || events[len(events)-1].Type != models.EventDone {
		t.Fatalf("last event is not done: %+v", events)
	}
	return events[len(events)-1].Data.(models.DoneData)
}

func TestFridgeMagnetsSession(t *testing.T) {
	r := newFakeRenderer()
	var urls []models.CandidateURL
	add := func(url, html string) {
		urls = append(urls, models.CandidateURL{URL: url})
		r.fast[url] = html
	}

	for _, d := range []string{"a", "b", "c"} {
		add("https://"+d+".example/magnets/1", productPage("Personalised Fridge Magnet", "12.50"))
		add("https://www."+d+".example/magnets/2", productPage("Photo Fridge Magnets Set", "20"))
	}
	for _, d := range []string{"d", "e", "f", "g"} {
		add("https://"+d+".example/magnets", productPage("Custom Fridge Magnet "+d, "9.95"))
	}
	add("https://h.example/plaques", productPage("Cremation Memorial Plaque", "80"))
	add("https://i.example/magnets", "")
	r.fastErr["https://i.example/magnets"] = models.NewScrapeError(models.ErrCodeTimeout, "render timed out", context.DeadlineExceeded)
	r.deep["https://i.example/magnets"] = productPage("Magnetic Fridge Calendar", "15")

	svc := newService(testConfig(), &fakeResolver{urls: urls}, r, nil)
	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "fridge magnets"}))

	products := byType(events, models.EventProduct)
	if len(products) != 8 {
		t.Fatalf("got %d products, want 8", len(products))
	}
	domains := make(map[string]bool)
	for _, ev := range products {
		p := ev.Data.(models.Product)
		if domains[p.Domain] {
			t.Errorf("domain %s emitted twice", p.Domain)
		}
		domains[p.Domain] = true
		if !p.HasImage() {
			t.Errorf("product %q has no image", p.Title)
		}
		if p.Domain == "h.example" {
			t.Errorf("blacklisted product emitted: %q", p.Title)
		}
	}
	if !domains["i.example"] {
		t.Error("deep pass did not recover i.example")
	}

	errs := byType(events, models.EventError)
	if len(errs) != 1 {
		t.Fatalf("got %d error events, want 1", len(errs))
	}
	if ed := errs[0].Data.(models.ErrorData); ed.Site != "https://i.example/magnets" || ed.Fatal || ed.Code != models.ErrCodeTimeout {
		t.Errorf("error event = %+v", ed)
	}

	done := lastDone(t, events)
	if done.TotalSitesProcessed != 12 || done.Products != 8 {
		t.Errorf("done = %+v, want 12 sites and 8 products", done)
	}
	if got := r.modesFor("https://h.example/plaques"); len(got) != 2 || got[1] != models.RenderDeep {
		t.Errorf("h.example modes = %v, want fast then deep", got)
	}
	if r.closed.Load() != 1 {
		t.Errorf("renderer closed %d times, want 1", r.closed.Load())
	}
	if st := svc.Stats(); st.Started != 1 || st.Finished != 1 || st.Products != 8 {
		t.Errorf("stats = %+v", st)
	}
	if svc.ActiveSessions() != 0 {
		t.Errorf("active sessions = %d", svc.ActiveSessions())
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	r := newFakeRenderer()
	var urls []models.CandidateURL
	for i := range 6 {
		u := fmt.Sprintf("https://shop%d.example/", i)
		urls = append(urls, models.CandidateURL{URL: u})
		r.fast[u] = productPage("Bumper Sticker", "5")
	}
	svc := newService(testConfig(), &fakeResolver{urls: urls}, r, nil)
	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "bumper stickers"}))

	last := -1
	for _, ev := range byType(events, models.EventProgress) {
		pd := ev.Data.(models.ProgressData)
		if pd.Completed < last {
			t.Fatalf("completed went backwards: %d after %d", pd.Completed, last)
		}
		if pd.Total != 6 {
			t.Errorf("total = %d, want 6", pd.Total)
		}
		last = pd.Completed
	}
	if last != 6 {
		t.Errorf("final completed = %d, want 6", last)
	}
}

func TestZeroResultsDegradesGracefully(t *testing.T) {
	r := newFakeRenderer()
	svc := newService(testConfig(), &fakeResolver{}, r, nil)
	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "fridge magnets"}))

	if len(events) != 2 || events[0].Type != models.EventProgress {
		t.Fatalf("events = %+v, want progress then done", events)
	}
	if done := lastDone(t, events); done.TotalSitesProcessed != 0 {
		t.Errorf("done = %+v", done)
	}
	if r.closed.Load() != 1 {
		t.Errorf("renderer closed %d times, want 1", r.closed.Load())
	}
}

func TestLaunchFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	svc := New(cfg, Deps{
		Resolver: &fakeResolver{urls: []models.CandidateURL{{URL: "https://a.example/"}}},
		Launch: func(ctx context.Context) (Renderer, error) {
			return nil, errors.New("chromium not found")
		},
		Filter: filter.New(filter.DefaultPolicy()),
	})
	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "fridge magnets"}))

	if len(events) != 2 {
		t.Fatalf("events = %+v, want error then done", events)
	}
	ed, ok := events[0].Data.(models.ErrorData)
	if !ok || events[0].Type != models.EventError || !ed.Fatal || ed.Site != "" {
		t.Errorf("first event = %+v, want fatal error", events[0])
	}
	if ed.Code != models.ErrCodeBrowserCrash {
		t.Errorf("code = %s, want %s", ed.Code, models.ErrCodeBrowserCrash)
	}
	if done := lastDone(t, events); done.TotalSitesProcessed != 0 || done.Products != 0 {
		t.Errorf("done = %+v", done)
	}
}

func TestMarkupApplied(t *testing.T) {
	r := newFakeRenderer()
	r.fast["https://a.example/"] = productPage("Personalised Fridge Magnet", "12.50")
	svc := newService(testConfig(), &fakeResolver{urls: []models.CandidateURL{{URL: "https://a.example/"}}}, r, nil)

	def := 10.0
	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{
		Keyword:       "fridge magnets",
		MarkupRules:   []models.MarkupRule{{Threshold: 50, Percent: 50}},
		DefaultMarkup: &def,
	}))
	products := byType(events, models.EventProduct)
	if len(products) != 1 {
		t.Fatalf("got %d products", len(products))
	}
	p := products[0].Data.(models.Product)
	if p.FinalPrice == nil || *p.FinalPrice != "AUD 18.75" {
		t.Errorf("FinalPrice = %v, want AUD 18.75", p.FinalPrice)
	}
	if p.Price == nil || *p.Price != "AUD 12.50" {
		t.Errorf("Price = %v, want AUD 12.50", p.Price)
	}
}

func TestSinglePassUsesAI(t *testing.T) {
	r := newFakeRenderer()
	url := "https://plain.example/magnets"
	r.fast[url] = `<html><body><main><h1>Our magnets</h1><p>Round fridge magnet, 50mm, $4.00</p><img src="/m.jpg"></main></body></html>`
	r.fastErr["https://down.example/"] = models.NewScrapeError(models.ErrCodeNavigation, "connection refused", nil)

	provider := &fakeProvider{out: `[{"title":"Round Fridge Magnet","price":"$4.00","size":"50mm","imageUrl":"/m.jpg","productUrl":"/p/round"}]`}
	noDeep := false
	svc := newService(testConfig(), &fakeResolver{urls: []models.CandidateURL{
		{URL: url}, {URL: "https://down.example/"},
	}}, r, provider)

	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "fridge magnets", Deep: &noDeep}))
	products := byType(events, models.EventProduct)
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1", len(products))
	}
	p := products[0].Data.(models.Product)
	if p.Source != models.SourceAI || p.ProductURL != "https://plain.example/p/round" {
		t.Errorf("product = %+v", p)
	}
	if got := r.modesFor("https://down.example/"); len(got) != 1 {
		t.Errorf("failed site rendered %d times without deep pass, want 1", len(got))
	}
}

func TestFastPassSkipsAIWhenTwoPhase(t *testing.T) {
	r := newFakeRenderer()
	url := "https://plain.example/magnets"
	r.fast[url] = `<html><body><p>Round fridge magnet</p><img src="/m.jpg"></body></html>`
	provider := &fakeProvider{out: `[]`}

	cfg := testConfig()
	cfg.Discovery.DeepPassLimit = 1
	svc := newService(cfg, &fakeResolver{urls: []models.CandidateURL{{URL: url}}}, r, provider)
	drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "fridge magnets"}))

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("model called %d times, want once (deep pass only)", got)
	}
	if got := r.modesFor(url); len(got) != 2 {
		t.Errorf("modes = %v, want fast then deep", got)
	}
}

func TestCancellationClosesStream(t *testing.T) {
	r := newFakeRenderer()
	r.block = true
	svc := newService(testConfig(), &fakeResolver{urls: []models.CandidateURL{
		{URL: "https://a.example/"}, {URL: "https://b.example/"},
	}}, r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := svc.Run(ctx, models.DiscoverRequest{Keyword: "fridge magnets"})
	<-ch // first progress event
	cancel()
	drain(t, ch)

	if r.closed.Load() != 1 {
		t.Errorf("renderer closed %d times, want 1", r.closed.Load())
	}
}

func TestOneProductPerRegistrableDomain(t *testing.T) {
	r := newFakeRenderer()
	var urls []models.CandidateURL
	for _, u := range []string{
		"https://shop.example.com.au/magnets",
		"https://example.com.au/magnets",
		"https://au.example.com.au/magnets",
		"https://other.example/magnets",
	} {
		urls = append(urls, models.CandidateURL{URL: u})
		r.fast[u] = productPage("Personalised Fridge Magnet", "12.50")
	}
	svc := newService(testConfig(), &fakeResolver{urls: urls}, r, nil)
	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "fridge magnets"}))

	products := byType(events, models.EventProduct)
	if len(products) != 2 {
		t.Fatalf("got %d products, want one for example.com.au and one for other.example", len(products))
	}
	domains := make(map[string]bool)
	for _, ev := range products {
		domains[ev.Data.(models.Product).Domain] = true
	}
	if !domains["example.com.au"] || !domains["other.example"] {
		t.Errorf("domains = %v", domains)
	}
	if done := lastDone(t, events); done.TotalSitesProcessed != 4 || done.Products != 2 {
		t.Errorf("done = %+v, want 4 sites and 2 products", done)
	}
}

func TestHungSiteTimesOutAlone(t *testing.T) {
	r := newFakeRenderer()
	hung := "https://slow.example/magnets"
	r.hang[hung] = 150 * time.Millisecond
	var urls []models.CandidateURL
	for _, u := range []string{"https://a.example/magnets", hung, "https://b.example/magnets"} {
		urls = append(urls, models.CandidateURL{URL: u})
		if u != hung {
			r.fast[u] = productPage("Personalised Fridge Magnet", "12.50")
		}
	}
	svc := newService(testConfig(), &fakeResolver{urls: urls}, r, nil)

	noDeep := false
	start := time.Now()
	events := drain(t, svc.Run(context.Background(), models.DiscoverRequest{Keyword: "fridge magnets", Deep: &noDeep}))
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond+2*time.Second {
		t.Errorf("session took %v", elapsed)
	}

	if got := len(byType(events, models.EventProduct)); got != 2 {
		t.Errorf("got %d products, want 2 from the responsive sites", got)
	}
	errs := byType(events, models.EventError)
	if len(errs) != 1 {
		t.Fatalf("got %d error events, want 1", len(errs))
	}
	ed := errs[0].Data.(models.ErrorData)
	if ed.Site != hung || ed.Code != models.ErrCodeTimeout || ed.Fatal {
		t.Errorf("error event = %+v", ed)
	}
	if done := lastDone(t, events); done.TotalSitesProcessed != 3 || done.Products != 2 {
		t.Errorf("done = %+v", done)
	}
}
