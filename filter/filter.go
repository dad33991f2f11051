// Package filter decides which extracted candidates are relevant to the
// search keyword and ranks the survivors of one site.
package filter

import (
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/use-agent/shopscout/models"
	"github.com/use-agent/shopscout/pricing"
	"github.com/use-agent/shopscout/simhash"
)

// titleDupDistance is the SimHash distance under which two titles from the
// same page are treated as one product.
const titleDupDistance = 3

// Filter applies a Policy. It is immutable and safe for concurrent use.
type Filter struct {
	policy    Policy
	blacklist []string
	stop      map[string]struct{}
	synonyms  map[string][]string
}

// New compiles p into a Filter.
func New(p Policy) *Filter {
	if p.MinTitleLength <= 0 {
		p.MinTitleLength = 3
	}
	f := &Filter{
		policy:   p,
		stop:     make(map[string]struct{}, len(p.StopWords)),
		synonyms: make(map[string][]string, len(p.Synonyms)),
	}
	for _, b := range p.Blacklist {
		if b = normalize(b); b != "" {
			f.blacklist = append(f.blacklist, b)
		}
	}
	for _, w := range p.StopWords {
		f.stop[normalize(w)] = struct{}{}
	}
	for k, syns := range p.Synonyms {
		key := normalize(k)
		for _, s := range syns {
			f.synonyms[key] = append(f.synonyms[key], normalize(s))
		}
	}
	return f
}

// Policy returns the policy the filter was built from.
func (f *Filter) Policy() Policy { return f.policy }

// normalize lower-cases s and folds accents ("Café" → "cafe").
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Tokenize splits s into normalized alphanumeric words.
func Tokenize(s string) []string {
	return strings.FieldsFunc(normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// KeywordTokens returns the significant words of keyword: longer than two
// characters, not a stop word, each listed once.
func (f *Filter) KeywordTokens(keyword string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range Tokenize(keyword) {
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		if _, stop := f.stop[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Blacklisted reports whether title contains a blacklisted phrase.
func (f *Filter) Blacklisted(title string) bool {
	t := normalize(title)
	for _, b := range f.blacklist {
		if strings.Contains(t, b) {
			return true
		}
	}
	return false
}

// Relevant reports whether title matches the keyword tokens under the
// configured match mode. No tokens means no signal, so every title passes.
func (f *Filter) Relevant(title string, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	t := normalize(title)

	matched := 0
	for _, tok := range tokens {
		if f.matches(t, tok) {
			matched++
		}
	}

	if f.policy.MatchMode == MatchFraction && len(tokens) > 1 {
		return float64(matched)/float64(len(tokens)) >= f.policy.MinFraction
	}
	return matched > 0
}

func (f *Filter) matches(title, tok string) bool {
	forms := []string{tok}
	if s := stem(tok); s != tok {
		forms = append(forms, s)
	}
	// "cookies" stems to "cooky"; "cookie" must still match.
	if n := len(tok); n > 4 && strings.HasSuffix(tok, "ies") {
		forms = append(forms, tok[:n-1])
	}
	for _, form := range forms {
		if strings.Contains(title, form) {
			return true
		}
		for _, syn := range f.synonyms[form] {
			if strings.Contains(title, syn) {
				return true
			}
		}
	}
	return false
}

// stem strips a regular English plural.
func stem(tok string) string {
	n := len(tok)
	switch {
	case n > 4 && strings.HasSuffix(tok, "ies"):
		return tok[:n-3] + "y"
	case n > 4 && (strings.HasSuffix(tok, "ches") || strings.HasSuffix(tok, "shes") ||
		strings.HasSuffix(tok, "sses") || strings.HasSuffix(tok, "xes") || strings.HasSuffix(tok, "zes")):
		return tok[:n-2]
	case n > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:n-1]
	}
	return tok
}

// Score ranks a candidate by completeness: a real price is worth more than
// a size.
func Score(c models.ProductCandidate) int {
	score := 0
	if c.Price != nil {
		if _, ok := pricing.ParseAmount(*c.Price); ok {
			score += 2
		}
	}
	if c.Size != nil && strings.TrimSpace(*c.Size) != "" {
		score++
	}
	return score
}

type ranked struct {
	c     models.ProductCandidate
	score int
}

// FilterAndRank drops unusable and irrelevant candidates, collapses
// duplicates, and orders the rest by Score. Ties keep extraction order.
func (f *Filter) FilterAndRank(candidates []models.ProductCandidate, keyword string) []models.ProductCandidate {
	tokens := f.KeywordTokens(keyword)
	titles := simhash.NewIndex(titleDupDistance)
	byURL := make(map[string]int)

	var kept []ranked
	for _, c := range candidates {
		c.Title = strings.TrimSpace(c.Title)
		if utf8.RuneCountInString(c.Title) < f.policy.MinTitleLength || !c.HasImage() {
			continue
		}
		if f.Blacklisted(c.Title) || !f.Relevant(c.Title, tokens) {
			continue
		}

		r := ranked{c: c, score: Score(c)}
		key := CanonicalURL(c.ProductURL)
		if i, dup := byURL[key]; dup && key != "" {
			if r.score > kept[i].score {
				kept[i] = r
			}
			continue
		}
		if key != "" {
			byURL[key] = len(kept)
		}
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	// Near-identical titles keep only their best-scored copy.
	out := make([]models.ProductCandidate, 0, len(kept))
	for _, r := range kept {
		if !titles.Add(simhash.Fingerprint(Tokenize(r.c.Title))) {
			continue
		}
		out = append(out, r.c)
	}
	return out
}

// Best returns the top-ranked candidate, or nil.
func Best(ranked []models.ProductCandidate) *models.ProductCandidate {
	if len(ranked) == 0 {
		return nil
	}
	best := ranked[0]
	return &best
}

// trackingParams are query parameters that never identify a product.
var trackingParams = []string{"fbclid", "gclid", "msclkid", "_ga", "ref", "srsltid"}

// CanonicalURL reduces a product URL to a comparison key: no scheme,
// lower-case host without "www.", no fragment, no tracking parameters,
// no trailing slash.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	for _, key := range trackingParams {
		q.Del(key)
	}

	key := host + strings.TrimRight(u.EscapedPath(), "/")
	if enc := q.Encode(); enc != "" {
		key += "?" + enc
	}
	return key
}
