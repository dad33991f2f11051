package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the minimum TextContent length for readability output
// to be trusted. Product pages are thin on prose, so a failed extraction is
// common and falls back to the stripped page.
const minContentLength = 50

// MainContent runs the Mozilla Readability algorithm on rawHTML and returns
// the article HTML. ok is false when readability could not find enough
// content; the caller should then use the full page.
func MainContent(rawHTML, sourceURL string) (content string, ok bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Debug("readability: invalid source URL", "url", sourceURL, "error", err)
		return "", false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Debug("readability: extraction failed", "url", sourceURL, "error", err)
		return "", false
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Debug("readability: extracted content too short",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return "", false
	}
	return article.Content, true
}
