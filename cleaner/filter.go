package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// chromeSelectors match elements that never carry product content.
var chromeSelectors = []string{
	"script", "style", "noscript", "svg", "iframe", "template", "link", "meta",
	"nav", "header", "footer", "aside", "form[role=search]",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]", "[role=dialog]",
	"[aria-modal=true]",
	"[class*=cookie]", "[id*=cookie]", "[class*=popup]", "[id*=popup]",
	"[class*=modal]", "[class*=newsletter]", "[class*=breadcrumb]",
}

// keptAttrs are the attributes a model can use to locate images and links.
var keptAttrs = map[string]struct{}{
	"src": {}, "href": {}, "alt": {}, "content": {}, "itemprop": {}, "data-src": {},
}

// StripChrome removes navigation, scripts, popups and the like from rawHTML,
// drops every attribute except those in keptAttrs, and returns the body
// markup with whitespace collapsed.
func StripChrome(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return collapseWhitespace(rawHTML)
	}

	doc.Find(strings.Join(chromeSelectors, ", ")).Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		attrs := n.Attr[:0]
		for _, a := range n.Attr {
			if _, ok := keptAttrs[a.Key]; ok && !strings.HasPrefix(strings.TrimSpace(a.Val), "data:") {
				attrs = append(attrs, a)
			}
		}
		n.Attr = attrs
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	out, err := body.Html()
	if err != nil {
		return collapseWhitespace(rawHTML)
	}
	return collapseWhitespace(out)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
