package cleaner

import (
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// variantSelector matches form options and variant pickers. Their text is
// often the only place a page states sizes.
var variantSelector = cascadia.MustCompile(strings.Join([]string{
	"select option",
	"[role=option]",
	"[data-variant]",
	"[data-option-value]",
	"[class*=swatch]",
	"[class*=variant] label",
	"[class*=size] label",
	"[class*=size] li",
}, ", "))

const maxVariantLen = 40

// HarvestVariants returns up to max distinct short text fragments from
// variant-selector elements, in document order.
func HarvestVariants(rawHTML string, max int) []string {
	if max <= 0 {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, n := range cascadia.QueryAll(doc, variantSelector) {
		text := collapseWhitespace(nodeText(n))
		if text == "" || utf8.RuneCountInString(text) > maxVariantLen {
			continue
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, text)
		if len(out) == max {
			break
		}
	}
	return out
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
