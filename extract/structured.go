// Package extract turns a rendered DOM into product candidates, first from
// embedded schema.org markup and then, when that is not enough, from a
// language model.
package extract

import (
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/shopscout/models"
)

var sizePropertyRe = regexp.MustCompile(`(?i)size|dimension|width|height|length`)

// Structured extracts products from JSON-LD blocks, falling back to
// schema.org microdata and then Open Graph product tags. It never fails:
// malformed markup yields no candidates.
func Structured(rawHTML, baseURL, currency string) []models.ProductCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var out []models.ProductCandidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return
		}
		for _, entity := range productEntities(data, 0) {
			if c, ok := fromJSONLD(entity, baseURL, currency); ok {
				out = append(out, c)
			}
		}
	})
	if len(out) > 0 {
		return out
	}

	if out = Microdata(rawHTML, baseURL, currency); len(out) > 0 {
		return out
	}
	return openGraph(doc, baseURL, currency)
}

// maxDepth bounds the walk through nested JSON-LD containers.
const maxDepth = 6

// productEntities collects Product objects from a decoded JSON-LD value:
// bare objects, arrays, @graph containers, wrappers whose mainEntity is a
// Product, and ItemLists of products.
func productEntities(v any, depth int) []map[string]any {
	if depth > maxDepth {
		return nil
	}
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, productEntities(item, depth+1)...)
		}
		return out
	case map[string]any:
		if isType(t["@type"], "Product", "ProductGroup", "IndividualProduct", "ProductModel") {
			return []map[string]any{t}
		}
		var out []map[string]any
		for _, key := range []string{"@graph", "mainEntity", "mainEntityOfPage", "itemListElement", "item"} {
			if child, ok := t[key]; ok {
				out = append(out, productEntities(child, depth+1)...)
			}
		}
		return out
	}
	return nil
}

// isType reports whether an @type value (string or list) names one of want.
// Full schema.org IRIs are accepted.
func isType(v any, want ...string) bool {
	match := func(s string) bool {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "http://schema.org/"), "https://schema.org/")
		for _, w := range want {
			if strings.EqualFold(s, w) {
				return true
			}
		}
		return false
	}
	switch t := v.(type) {
	case string:
		return match(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && match(s) {
				return true
			}
		}
	}
	return false
}

func fromJSONLD(e map[string]any, baseURL, currency string) (models.ProductCandidate, bool) {
	title := html.UnescapeString(strings.TrimSpace(str(e["name"])))
	if utf8.RuneCountInString(title) < 3 {
		return models.ProductCandidate{}, false
	}

	image := normalizePtr(imageOf(e["image"]), baseURL)
	if image == nil {
		return models.ProductCandidate{}, false
	}

	offer := firstOffer(e["offers"])
	productURL, ok := NormalizeURL(str(e["url"]), baseURL)
	if !ok {
		if productURL, ok = NormalizeURL(str(offer["url"]), baseURL); !ok {
			productURL, _ = NormalizeURL(baseURL, baseURL)
		}
	}

	return models.ProductCandidate{
		Title:      title,
		Price:      priceOf(offer, currency),
		Size:       sizeOf(e),
		ImageURL:   image,
		ProductURL: productURL,
		Source:     models.SourceStructured,
	}, true
}

// firstOffer returns the first offer carrying a price, or the first offer.
func firstOffer(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if inner, ok := t["offers"]; ok && str(t["price"]) == "" && str(t["lowPrice"]) == "" {
			if o := firstOffer(inner); o != nil {
				return o
			}
		}
		return t
	case []any:
		var first map[string]any
		for _, item := range t {
			o, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if first == nil {
				first = o
			}
			if str(o["price"]) != "" || str(o["lowPrice"]) != "" {
				return o
			}
		}
		return first
	}
	return nil
}

// priceOf prefers price, then the low end of a range, then a nested
// priceSpecification.
func priceOf(offer map[string]any, currency string) *string {
	if offer == nil {
		return nil
	}
	amount := str(offer["price"])
	if amount == "" {
		amount = str(offer["lowPrice"])
	}
	spec, _ := offer["priceSpecification"].(map[string]any)
	if amount == "" && spec != nil {
		amount = str(spec["price"])
	}
	if amount == "" {
		return nil
	}

	cur := str(offer["priceCurrency"])
	if cur == "" && spec != nil {
		cur = str(spec["priceCurrency"])
	}
	if cur == "" {
		cur = currency
	}
	return formatPrice(cur, amount)
}

func formatPrice(currency, amount string) *string {
	amount = strings.TrimSpace(amount)
	if f, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64); err == nil {
		s := strings.TrimSpace(currency + " " + strconv.FormatFloat(f, 'f', 2, 64))
		return &s
	}
	s := strings.TrimSpace(currency + " " + amount)
	return &s
}

func sizeOf(e map[string]any) *string {
	if s := strings.TrimSpace(str(e["size"])); s != "" {
		return &s
	}
	props, _ := e["additionalProperty"].([]any)
	if p, ok := e["additionalProperty"].(map[string]any); ok {
		props = []any{p}
	}
	for _, item := range props {
		p, ok := item.(map[string]any)
		if !ok || !sizePropertyRe.MatchString(str(p["name"])) {
			continue
		}
		if v := strings.TrimSpace(str(p["value"])); v != "" {
			if unit := str(p["unitText"]); unit != "" {
				v += " " + unit
			}
			return &v
		}
	}
	return nil
}

// imageOf accepts a string, a list (first usable entry), or an
// ImageObject with url or contentUrl.
func imageOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s := imageOf(item); s != "" {
				return s
			}
		}
	case map[string]any:
		if s := str(t["url"]); s != "" {
			return s
		}
		return str(t["contentUrl"])
	}
	return ""
}

// str renders scalar JSON values as strings. Objects with a name (such as
// a size given as a SizeSpecification) yield the name.
func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]any:
		if n, ok := t["name"].(string); ok {
			return strings.TrimSpace(n)
		}
	}
	return ""
}

// openGraph reads og:type=product pages annotated with og:/product: tags.
func openGraph(doc *goquery.Document, baseURL, currency string) []models.ProductCandidate {
	meta := func(prop string) string {
		v, _ := doc.Find(`meta[property="` + prop + `"]`).First().Attr("content")
		return strings.TrimSpace(v)
	}
	if !strings.Contains(strings.ToLower(meta("og:type")), "product") {
		return nil
	}

	title := html.UnescapeString(meta("og:title"))
	image := normalizePtr(meta("og:image"), baseURL)
	if utf8.RuneCountInString(title) < 3 || image == nil {
		return nil
	}

	var price *string
	if amount := firstNonEmpty(meta("product:price:amount"), meta("og:price:amount")); amount != "" {
		cur := firstNonEmpty(meta("product:price:currency"), meta("og:price:currency"), currency)
		price = formatPrice(cur, amount)
	}

	productURL, ok := NormalizeURL(meta("og:url"), baseURL)
	if !ok {
		productURL, _ = NormalizeURL(baseURL, baseURL)
	}

	return []models.ProductCandidate{{
		Title:      title,
		Price:      price,
		ImageURL:   image,
		ProductURL: productURL,
		Source:     models.SourceStructured,
	}}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
