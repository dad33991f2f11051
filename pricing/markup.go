// Package pricing turns extracted price strings into numbers and applies
// per-request markup tables to them.
package pricing

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/use-agent/shopscout/models"
)

var (
	// The first alternative is a comma decimal ("12,50", "1.299,00").
	amountRe   = regexp.MustCompile(`(\d{1,3}(?:[.\s]\d{3})*,\d{2})\b|\d{1,3}(?:[,\s]\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)
	currencyRe = regexp.MustCompile(`^\s*([A-Z]{3})\b`)
)

// ParseAmount returns the first numeric amount in s. Thousands separators
// and a two-digit comma decimal are accepted. Zero and negative amounts are
// treated as placeholders.
func ParseAmount(s string) (float64, bool) {
	sm := amountRe.FindStringSubmatch(s)
	if sm == nil {
		return 0, false
	}
	var m string
	if sm[1] != "" {
		m = strings.NewReplacer(".", "", " ", "", ",", ".").Replace(sm[1])
	} else {
		m = strings.NewReplacer(",", "", " ", "").Replace(sm[0])
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Currency returns the ISO code prefixing a formatted price, if any.
func Currency(s string) string {
	if m := currencyRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// Format renders an amount as "<CUR> 12.50", or "12.50" without a currency.
func Format(currency string, amount float64) string {
	if currency == "" {
		return strconv.FormatFloat(amount, 'f', 2, 64)
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}

// Table is an ordered markup table.
type Table struct {
	rules []models.MarkupRule
	def   float64
}

// NewTable sorts rules by ascending threshold. def is the percent applied
// to prices above every threshold.
func NewTable(rules []models.MarkupRule, def *float64) *Table {
	sorted := make([]models.MarkupRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	t := &Table{rules: sorted}
	if def != nil {
		t.def = *def
	}
	return t
}

// Empty reports whether the table would leave every price unchanged.
func (t *Table) Empty() bool {
	return t == nil || (len(t.rules) == 0 && t.def == 0)
}

// Percent returns the markup percent for amount: the first rule whose
// threshold is at or above amount, else the default.
func (t *Table) Percent(amount float64) float64 {
	for _, r := range t.rules {
		if amount <= r.Threshold {
			return r.Percent
		}
	}
	return t.def
}

// Apply returns the marked-up price, or nil when price has no usable amount.
func (t *Table) Apply(price *string) *string {
	if t.Empty() || price == nil {
		return nil
	}
	amount, ok := ParseAmount(*price)
	if !ok {
		return nil
	}
	final := math.Round(amount*(1+t.Percent(amount)/100)*100) / 100
	s := Format(Currency(*price), final)
	return &s
}

// ParseRules reads the compact "threshold:percent,..." form used on the
// command line and in query strings, e.g. "50:30,100:20".
func ParseRules(s string) ([]models.MarkupRule, error) {
	var rules []models.MarkupRule
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		threshold, percent, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("markup rule %q: want threshold:percent", part)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(threshold), 64)
		if err != nil {
			return nil, fmt.Errorf("markup rule %q: threshold: %w", part, err)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(percent), 64)
		if err != nil {
			return nil, fmt.Errorf("markup rule %q: percent: %w", part, err)
		}
		rules = append(rules, models.MarkupRule{Threshold: t, Percent: p})
	}
	return rules, nil
}
