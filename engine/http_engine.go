package engine

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/shopscout/models"
	"github.com/use-agent/shopscout/scraper"
)

// maxBody caps how much of a response is read.
const maxBody = 10 << 20

// HTTPEngine fetches pages without a browser, presenting a Chrome TLS
// fingerprint. It refuses documents that look like script-rendered shells
// so the dispatcher can fall through to the browser.
type HTTPEngine struct {
	client   *http.Client
	minBytes int
}

// chromeH1Spec is a Chrome-like ClientHello with ALPN forced to http/1.1,
// since http.Transport cannot speak h2 over a utls connection. It is nil
// when the spec could not be generated.
var chromeH1Spec *tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		slog.Warn("http_engine: chrome tls spec unavailable, using stock chrome hello", "error", err)
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = &spec
}

// NewHTTPEngine creates an HTTPEngine. Documents shorter than minBytes are
// rejected like the browser renderer rejects them.
func NewHTTPEngine(timeout time.Duration, minBytes int) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext:      dialTLSChrome,
		ForceAttemptHTTP2:   false,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return newHTTPEngine(&http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}, minBytes)
}

func newHTTPEngine(client *http.Client, minBytes int) *HTTPEngine {
	return &HTTPEngine{client: client, minBytes: minBytes}
}

func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	id, spec := clientHello()
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, id)
	if spec != nil {
		if err := tlsConn.ApplyPreset(spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
		}
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// clientHello picks the http/1.1 Chrome spec, or the stock Chrome hello
// when the spec is unavailable.
func clientHello() (tls.ClientHelloID, *tls.ClientHelloSpec) {
	if chromeH1Spec == nil {
		return tls.HelloChrome_Auto, nil
	}
	return tls.HelloCustom, chromeH1Spec
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*models.RenderedPage, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("http_engine: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", scraper.RandomUserAgent())
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-AU,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if u := httpReq.URL; u != nil {
		httpReq.Header.Set("Referer", "https://www.google.com/search?q="+u.Hostname())
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fetchError(err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 || !isHTMLContentType(ct) {
		return nil, models.NewScrapeError(models.ErrCodeNavigation,
			fmt.Sprintf("http_engine: status %d, content-type %q", resp.StatusCode, ct), nil)
	}

	body, err := readBody(resp)
	if err != nil {
		if isTimeout(err) {
			return nil, models.NewScrapeError(models.ErrCodeTimeout, "http_engine: body read timed out", err)
		}
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "http_engine: read body", err)
	}
	if len(body) < e.minBytes {
		return nil, models.NewScrapeError(models.ErrCodeShortDocument,
			fmt.Sprintf("document is %d bytes", len(body)), nil)
	}
	if needsBrowser(body) {
		return nil, fmt.Errorf("http_engine: %s looks script-rendered", req.URL)
	}

	return &models.RenderedPage{
		URL:      req.URL,
		FinalURL: resp.Request.URL.String(),
		HTML:     string(body),
		Engine:   e.Name(),
	}, nil
}

// readBody decodes the response according to Content-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "br":
		r = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		r = fl
	}
	return io.ReadAll(io.LimitReader(r, maxBody))
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// fetchError classifies a transport failure. Deadlines and client timeouts
// are SCRAPE_TIMEOUT; everything else is a navigation failure.
func fetchError(err error) error {
	if isTimeout(err) {
		return models.NewScrapeError(models.ErrCodeTimeout, "http fetch timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeNavigation, "http fetch failed", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
