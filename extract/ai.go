package extract

import (
	"context"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/shopscout/cleaner"
	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/llm"
	"github.com/use-agent/shopscout/models"
)

const maxVariants = 20

// AIExtractor asks a language model for products when the page carries no
// usable structured markup. It never returns an error: every failure is
// logged and reported as no candidates.
type AIExtractor struct {
	provider llm.Provider
	cleaner  *cleaner.Cleaner
	cfg      config.AIConfig
}

// NewAIExtractor wires a provider into an extractor. A nil provider yields
// an extractor that is disabled.
func NewAIExtractor(provider llm.Provider, c *cleaner.Cleaner, cfg config.AIConfig) *AIExtractor {
	if c == nil {
		c = cleaner.NewCleaner()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	return &AIExtractor{provider: provider, cleaner: c, cfg: cfg}
}

// Enabled reports whether a provider is configured.
func (a *AIExtractor) Enabled() bool { return a != nil && a.provider != nil }

// Extract prepares rawHTML, queries the model under its own timeout, and
// returns normalized candidates that carry an image.
func (a *AIExtractor) Extract(ctx context.Context, rawHTML, pageURL, keyword string) []models.ProductCandidate {
	if !a.Enabled() {
		return nil
	}

	fragment := a.cleaner.Prepare(rawHTML, pageURL, cleaner.PrepareOptions{
		Mode:        a.cfg.PrepareMode,
		MaxChars:    a.cfg.MaxChars,
		MaxVariants: maxVariants,
	})
	if strings.TrimSpace(fragment) == "" {
		return nil
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	prompt := BuildPrompt(keyword, pageURL, fragment, a.cfg.MaxResults, a.cfg.MaxTokens)
	raw, err := a.provider.Complete(ctx, prompt)
	if err != nil {
		slog.Warn("ai extraction failed",
			"url", pageURL, "provider", a.provider.Name(), "code", models.CodeOf(err), "error", err,
		)
		return nil
	}

	parsed := ParseModelOutput(raw)
	if parsed.Status != ParseOK {
		slog.Debug("ai extraction yielded nothing",
			"url", pageURL, "status", parsed.Status.String(), "error", parsed.Err,
		)
		return nil
	}

	out := make([]models.ProductCandidate, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		c, ok := a.candidate(r, pageURL)
		if !ok {
			continue
		}
		out = append(out, c)
		if len(out) == a.cfg.MaxResults {
			break
		}
	}
	return out
}

func (a *AIExtractor) candidate(r ModelRecord, pageURL string) (models.ProductCandidate, bool) {
	title := html.UnescapeString(strings.TrimSpace(r.TitleText()))
	if utf8.RuneCountInString(title) < 3 {
		return models.ProductCandidate{}, false
	}
	image := normalizePtr(r.ImageText(), pageURL)
	if image == nil {
		return models.ProductCandidate{}, false
	}
	productURL, ok := NormalizeURL(r.URLText(), pageURL)
	if !ok {
		productURL, _ = NormalizeURL(pageURL, pageURL)
	}
	return models.ProductCandidate{
		Title:      title,
		Price:      models.StringPtr(string(r.Price)),
		Size:       models.StringPtr(string(r.Size)),
		ImageURL:   image,
		ProductURL: productURL,
		Source:     models.SourceAI,
	}, true
}
