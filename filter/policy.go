package filter

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// MatchMode selects how many keyword tokens a title must contain.
type MatchMode string

const (
	// MatchAny keeps a title containing at least one token or synonym.
	MatchAny MatchMode = "any"
	// MatchFraction keeps a title containing at least MinFraction of the
	// tokens of a multi-word keyword.
	MatchFraction MatchMode = "fraction"
)

// Policy is every tunable table the filter consults.
type Policy struct {
	Blacklist      []string            `mapstructure:"blacklist"`
	StopWords      []string            `mapstructure:"stop_words"`
	Synonyms       map[string][]string `mapstructure:"synonyms"`
	MatchMode      MatchMode           `mapstructure:"match_mode"`
	MinFraction    float64             `mapstructure:"min_fraction"`
	MinTitleLength int                 `mapstructure:"min_title_length"`
}

// DefaultPolicy returns the built-in tables.
func DefaultPolicy() Policy {
	return Policy{
		Blacklist: []string{
			// funeral and memorial services
			"funeral", "cremation", "memorial service", "obituary",
			// storefront chrome leaking in as titles
			"my account", "shopping cart", "your cart", "checkout", "sign in",
			"log in", "login", "create account", "wishlist", "page not found",
			"subscribe", "newsletter", "cookie policy", "privacy policy",
			"terms and conditions", "gift card",
			// services rather than goods
			"courses", "workshop", "classes", "tutorial", "for hire",
			"hire service", "rental", "consultation", "installation service",
			"repair service", "booking",
		},
		StopWords: []string{
			"the", "and", "for", "with", "buy", "best", "cheap", "online",
			"sale", "shop", "store", "custom", "new", "free", "shipping",
			"delivery", "australia", "aus", "sydney", "melbourne", "brisbane",
			"perth", "adelaide", "near", "from", "top", "quality", "price",
		},
		Synonyms: map[string][]string{
			"sticker":  {"decal", "label", "vinyl"},
			"magnet":   {"magnetic"},
			"mug":      {"cup", "tumbler"},
			"shirt":    {"tee", "t-shirt"},
			"hoodie":   {"sweatshirt", "jumper"},
			"bag":      {"tote", "pouch"},
			"keyring":  {"keychain", "key chain", "key ring"},
			"banner":   {"flag", "sign"},
			"poster":   {"print", "wall art"},
			"notebook": {"journal", "notepad"},
			"cap":      {"hat"},
		},
		MatchMode:      MatchAny,
		MinFraction:    0.5,
		MinTitleLength: 3,
	}
}

// LoadPolicy reads a YAML, JSON or TOML policy file on top of the defaults.
// Tables present in the file replace the built-in ones wholesale.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return p, fmt.Errorf("filter: read policy %s: %w", path, err)
	}
	var file Policy
	if err := v.Unmarshal(&file); err != nil {
		return p, fmt.Errorf("filter: decode policy %s: %w", path, err)
	}

	if file.Blacklist != nil {
		p.Blacklist = file.Blacklist
	}
	if file.StopWords != nil {
		p.StopWords = file.StopWords
	}
	if file.Synonyms != nil {
		p.Synonyms = file.Synonyms
	}
	p = p.WithMatch(string(file.MatchMode), file.MinFraction)
	if file.MinTitleLength > 0 {
		p.MinTitleLength = file.MinTitleLength
	}
	return p, p.validate()
}

func (p Policy) validate() error {
	switch p.MatchMode {
	case MatchAny, MatchFraction:
	default:
		return fmt.Errorf("filter: unknown match mode %q", p.MatchMode)
	}
	if p.MatchMode == MatchFraction && (p.MinFraction <= 0 || p.MinFraction > 1) {
		return fmt.Errorf("filter: min fraction %.2f outside (0, 1]", p.MinFraction)
	}
	return nil
}

// WithMatch returns a copy of p using the given match policy. An empty mode
// keeps the current one.
func (p Policy) WithMatch(mode string, minFraction float64) Policy {
	if mode != "" {
		p.MatchMode = MatchMode(strings.ToLower(mode))
	}
	if minFraction > 0 {
		p.MinFraction = minFraction
	}
	return p
}
