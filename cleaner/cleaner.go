// Package cleaner reduces a rendered page to a compact fragment a language
// model can read within its input budget.
package cleaner

import (
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// Preparation modes.
const (
	ModeHTML        = "html"
	ModeMarkdown    = "markdown"
	ModeReadability = "readability"
)

const variantsPrefix = "\n\nVariant options: "

// Cleaner prepares page fragments for the model. The markdown converter is
// created once and shared; a Cleaner is safe for concurrent use.
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter()}
}

// PrepareOptions controls Prepare.
type PrepareOptions struct {
	// Mode is ModeHTML, ModeMarkdown or ModeReadability. Unknown modes are
	// treated as ModeHTML.
	Mode string
	// MaxChars caps the returned fragment, auxiliary context included.
	MaxChars int
	// MaxVariants caps harvested variant fragments. Zero disables harvesting.
	MaxVariants int
}

// Prepare strips chrome from rawHTML, converts it per opts.Mode, and
// truncates it so that main content plus the variant line fit MaxChars.
//
// Flow:
//  1. Harvest variant-selector text from the untouched page.
//  2. Reduce the page (stripped HTML, Markdown, or readability article).
//  3. Truncate main content, leaving room for the variant line.
func (c *Cleaner) Prepare(rawHTML, pageURL string, opts PrepareOptions) string {
	// ── 1. Auxiliary context ────────────────────────────────────────
	var aux string
	if variants := HarvestVariants(rawHTML, opts.MaxVariants); len(variants) > 0 {
		aux = variantsPrefix + strings.Join(variants, " | ")
	}

	// ── 2. Main content ─────────────────────────────────────────────
	var main string
	switch opts.Mode {
	case ModeReadability:
		if article, ok := MainContent(rawHTML, pageURL); ok {
			main = c.markdownOr(article, pageURL)
		} else {
			main = c.markdownOr(StripChrome(rawHTML), pageURL)
		}
	case ModeMarkdown:
		main = c.markdownOr(StripChrome(rawHTML), pageURL)
	default:
		main = StripChrome(rawHTML)
	}

	// ── 3. Budget ───────────────────────────────────────────────────
	if opts.MaxChars <= 0 {
		return main + aux
	}
	aux = Truncate(aux, opts.MaxChars/4)
	return Truncate(main, opts.MaxChars-len([]rune(aux))) + aux
}

// markdownOr converts fragment to Markdown, returning the fragment itself
// when conversion fails.
func (c *Cleaner) markdownOr(fragment, pageURL string) string {
	md, err := toMarkdown(c.mdConverter, fragment, pageURL)
	if err != nil {
		slog.Debug("cleaner: markdown conversion failed", "url", pageURL, "error", err)
		return fragment
	}
	return strings.TrimSpace(md)
}
