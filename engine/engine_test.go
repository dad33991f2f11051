package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/shopscout/models"
)

func productPage() string {
	var b strings.Builder
	b.WriteString(`<html><head><script type="application/ld+json">{"@type":"Product","name":"Fridge Magnet"}</script></head><body>`)
	for i := 0; i < 20; i++ {
		b.WriteString("<p>Custom fridge magnets printed in full colour on flexible vinyl.</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestNeedsBrowser(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"server rendered", productPage(), false},
		{"empty shell", `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`, true},
		{"noscript notice", `<html><body><noscript>You need to enable JavaScript to run this app.</noscript>` +
			strings.Repeat("<p>filler text for the page body</p>", 20) + `</body></html>`, true},
		{"script text ignored", `<html><body><script>` + strings.Repeat("var x = 1;", 100) + `</script></body></html>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsBrowser([]byte(tt.body)); got != tt.want {
				t.Errorf("needsBrowser() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVisibleTextSkipsScripts(t *testing.T) {
	got := visibleText([]byte(`<html><head><title>T</title></head><body><p>Hello</p><script>secret()</script><style>.a{}</style><p>world</p></body></html>`))
	if strings.TrimSpace(got) != "Hello world" {
		t.Errorf("visibleText = %q", got)
	}
}

func TestHTTPEngineDecodesBodies(t *testing.T) {
	page := productPage()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(&buf)
			gz.Write([]byte(page))
			gz.Close()
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			br := brotli.NewWriter(&buf)
			br.Write([]byte(page))
			br.Close()
		default:
			buf.WriteString(page)
		}
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	e := newHTTPEngine(srv.Client(), 100)
	for _, path := range []string{"/plain", "/gzip", "/br"} {
		t.Run(path, func(t *testing.T) {
			got, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + path})
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got.HTML != page {
				t.Errorf("body mismatch, got %d bytes", len(got.HTML))
			}
			if got.Engine != "http" {
				t.Errorf("Engine = %q", got.Engine)
			}
		})
	}
}

func TestHTTPEngineRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(productPage()))
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		case "/short":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body>hi</body></html>`))
		case "/shell":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><div id="app"></div>` + strings.Repeat(" ", 3000) + `</body></html>`))
		}
	}))
	defer srv.Close()

	e := newHTTPEngine(srv.Client(), 1000)
	tests := []struct {
		path string
		code string
	}{
		{"/missing", models.ErrCodeNavigation},
		{"/json", models.ErrCodeNavigation},
		{"/short", models.ErrCodeShortDocument},
		{"/shell", models.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + tt.path})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := models.CodeOf(err); got != tt.code {
				t.Errorf("CodeOf = %s, want %s", got, tt.code)
			}
		})
	}
}

// silentServer accepts requests and never answers until the test ends.
func silentServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestHTTPEngineTimesOut(t *testing.T) {
	srv := silentServer(t)
	e := newHTTPEngine(srv.Client(), 100)

	const timeout = 150 * time.Millisecond
	start := time.Now()
	_, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/p", Timeout: timeout})
	elapsed := time.Since(start)

	if got := models.CodeOf(err); got != models.ErrCodeTimeout {
		t.Fatalf("CodeOf = %s (%v), want %s", got, err, models.ErrCodeTimeout)
	}
	if !models.IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
	if elapsed > timeout+time.Second {
		t.Errorf("fetch took %v, want about %v", elapsed, timeout)
	}
}

func TestDispatcherBoundedByTimeout(t *testing.T) {
	srv := silentServer(t)
	hung := NewRodEngine(func(ctx context.Context, url string, mode models.RenderMode) (*models.RenderedPage, error) {
		<-ctx.Done()
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "render timed out", ctx.Err())
	})
	d := NewDispatcher([]Engine{newHTTPEngine(srv.Client(), 100), hung}, []time.Duration{0, 20 * time.Millisecond}, nil)

	const timeout = 200 * time.Millisecond
	start := time.Now()
	_, err := d.Dispatch(context.Background(), &FetchRequest{URL: srv.URL + "/p", Timeout: timeout})
	elapsed := time.Since(start)

	if got := models.CodeOf(err); got != models.ErrCodeTimeout {
		t.Fatalf("CodeOf = %s (%v), want %s", got, err, models.ErrCodeTimeout)
	}
	if elapsed > timeout+time.Second {
		t.Errorf("dispatch took %v, want about %v", elapsed, timeout)
	}
}

func TestClientHelloFallsBackToStockChrome(t *testing.T) {
	saved := chromeH1Spec
	t.Cleanup(func() { chromeH1Spec = saved })

	chromeH1Spec = nil
	id, spec := clientHello()
	if id != tls.HelloChrome_Auto || spec != nil {
		t.Errorf("clientHello() = %v, %v; want HelloChrome_Auto without a spec", id, spec)
	}

	chromeH1Spec = &tls.ClientHelloSpec{}
	if id, spec := clientHello(); id != tls.HelloCustom || spec != chromeH1Spec {
		t.Errorf("clientHello() = %v, %v; want HelloCustom with the http/1.1 spec", id, spec)
	}
}

type fakeEngine struct {
	name  string
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(ctx context.Context, req *FetchRequest) (*models.RenderedPage, error) {
	f.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.RenderedPage{URL: req.URL, HTML: f.name, Engine: f.name}, nil
}

func TestDispatcherFirstSuccessWins(t *testing.T) {
	fast := &fakeEngine{name: "http", delay: 5 * time.Millisecond}
	slow := &fakeEngine{name: "rod", delay: time.Second}
	mem := NewDomainMemory(time.Hour)
	d := NewDispatcher([]Engine{fast, slow}, nil, mem)

	page, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://www.shop.example/p"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if page.Engine != "http" {
		t.Errorf("winner = %s, want http", page.Engine)
	}
	if got := mem.Get("shop.example"); got != "http" {
		t.Errorf("memory = %q, want http", got)
	}
}

func TestDispatcherFallsThrough(t *testing.T) {
	failing := &fakeEngine{name: "http", err: errors.New("blocked")}
	browser := &fakeEngine{name: "rod", delay: 5 * time.Millisecond}
	d := NewDispatcher([]Engine{failing, browser}, []time.Duration{0, 10 * time.Millisecond}, nil)

	page, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example/"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if page.Engine != "rod" {
		t.Errorf("winner = %s, want rod", page.Engine)
	}
}

func TestDispatcherAllFail(t *testing.T) {
	want := models.NewScrapeError(models.ErrCodeTimeout, "too slow", nil)
	d := NewDispatcher([]Engine{
		&fakeEngine{name: "http", err: errors.New("blocked")},
		&fakeEngine{name: "rod", delay: time.Millisecond, err: want},
	}, []time.Duration{0, 20 * time.Millisecond}, nil)

	_, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example/"})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want the last engine's error", err)
	}
}

func TestDispatcherUsesMemory(t *testing.T) {
	httpEng := &fakeEngine{name: "http", delay: time.Millisecond}
	rodEng := &fakeEngine{name: "rod", delay: time.Millisecond}
	mem := NewDomainMemory(time.Hour)
	mem.Set("shop.example", "rod")

	d := NewDispatcher([]Engine{httpEng, rodEng}, []time.Duration{0, 0}, mem)
	page, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example/a"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if page.Engine != "rod" || httpEng.calls.Load() != 0 {
		t.Errorf("remembered engine not used: winner=%s http calls=%d", page.Engine, httpEng.calls.Load())
	}
}

func TestDomainMemoryNilSafe(t *testing.T) {
	var dm *DomainMemory
	dm.Set("a", "b")
	dm.Delete("a")
	if dm.Get("a") != "" {
		t.Error("nil memory should return empty")
	}
}

func TestRodEngineTagsPage(t *testing.T) {
	var gotMode models.RenderMode
	e := NewRodEngine(func(ctx context.Context, url string, mode models.RenderMode) (*models.RenderedPage, error) {
		gotMode = mode
		return &models.RenderedPage{URL: url}, nil
	})
	page, err := e.Fetch(context.Background(), &FetchRequest{URL: "https://shop.example/"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Engine != "rod" || gotMode != models.RenderFast {
		t.Errorf("Engine=%q mode=%q", page.Engine, gotMode)
	}
}
