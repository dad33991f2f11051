package extract

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/htmlquery"
	xhtml "golang.org/x/net/html"

	"github.com/use-agent/shopscout/models"
)

const productScopeXPath = `//*[@itemscope][contains(@itemtype, 'schema.org/Product') or contains(@itemtype, 'schema.org/IndividualProduct')]`

// Microdata extracts products annotated with schema.org itemscope/itemprop
// attributes.
func Microdata(rawHTML, baseURL, currency string) []models.ProductCandidate {
	root, err := htmlquery.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	scopes, err := htmlquery.QueryAll(root, productScopeXPath)
	if err != nil {
		return nil
	}

	var out []models.ProductCandidate
	for _, scope := range scopes {
		if c, ok := fromMicrodata(scope, baseURL, currency); ok {
			out = append(out, c)
		}
	}
	return out
}

func fromMicrodata(scope *xhtml.Node, baseURL, currency string) (models.ProductCandidate, bool) {
	props := ownProps(scope)

	title := html.UnescapeString(strings.TrimSpace(first(props, "name")))
	if utf8.RuneCountInString(title) < 3 {
		return models.ProductCandidate{}, false
	}
	image := normalizePtr(first(props, "image"), baseURL)
	if image == nil {
		return models.ProductCandidate{}, false
	}

	offer := props
	if nodes := propNodes(scope, "offers"); len(nodes) > 0 && hasAttr(nodes[0], "itemscope") {
		offer = ownProps(nodes[0])
	}

	var price *string
	amount := first(offer, "price")
	if amount == "" {
		amount = first(offer, "lowPrice")
	}
	if amount != "" {
		cur := first(offer, "priceCurrency")
		if cur == "" {
			cur = currency
		}
		price = formatPrice(cur, amount)
	}

	productURL, ok := NormalizeURL(first(props, "url"), baseURL)
	if !ok {
		productURL, _ = NormalizeURL(baseURL, baseURL)
	}

	return models.ProductCandidate{
		Title:      title,
		Price:      price,
		Size:       models.StringPtr(strings.TrimSpace(first(props, "size"))),
		ImageURL:   image,
		ProductURL: productURL,
		Source:     models.SourceMicrodata,
	}, true
}

// ownProps maps itemprop names to values for properties whose nearest
// enclosing itemscope is scope. Nested items are not descended into.
func ownProps(scope *xhtml.Node) map[string][]string {
	props := make(map[string][]string)
	for _, n := range htmlquery.Find(scope, ".//*[@itemprop]") {
		if nearestScope(n) != scope {
			continue
		}
		for _, name := range strings.Fields(htmlquery.SelectAttr(n, "itemprop")) {
			if hasAttr(n, "itemscope") {
				props[name] = append(props[name], "")
				continue
			}
			props[name] = append(props[name], propValue(n))
		}
	}
	return props
}

func propNodes(scope *xhtml.Node, name string) []*xhtml.Node {
	var out []*xhtml.Node
	for _, n := range htmlquery.Find(scope, ".//*[@itemprop]") {
		if nearestScope(n) != scope {
			continue
		}
		for _, p := range strings.Fields(htmlquery.SelectAttr(n, "itemprop")) {
			if p == name {
				out = append(out, n)
			}
		}
	}
	return out
}

func nearestScope(n *xhtml.Node) *xhtml.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == xhtml.ElementNode && hasAttr(p, "itemscope") {
			return p
		}
	}
	return nil
}

// propValue follows the microdata value rules: content wins, then the
// URL-bearing attribute of the element, then text.
func propValue(n *xhtml.Node) string {
	if hasAttr(n, "content") {
		return strings.TrimSpace(htmlquery.SelectAttr(n, "content"))
	}
	switch n.Data {
	case "img", "source", "audio", "video", "iframe", "embed":
		return strings.TrimSpace(htmlquery.SelectAttr(n, "src"))
	case "a", "link", "area":
		return strings.TrimSpace(htmlquery.SelectAttr(n, "href"))
	case "meta":
		return strings.TrimSpace(htmlquery.SelectAttr(n, "content"))
	case "data", "meter":
		return strings.TrimSpace(htmlquery.SelectAttr(n, "value"))
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

func hasAttr(n *xhtml.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func first(props map[string][]string, name string) string {
	for _, v := range props[name] {
		if v != "" {
			return v
		}
	}
	return ""
}
