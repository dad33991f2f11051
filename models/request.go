package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiscoverRequest is the payload for POST /api/v1/discover. GET requests
// bind the same fields from the query string.
type DiscoverRequest struct {
	// Keyword is the product search term. Required, at least 2 characters.
	Keyword string `json:"keyword" form:"keyword" binding:"required,min=2"`

	// MarkupRules is an ordered table of [priceThreshold, markupPercent]
	// pairs applied to each emitted product's numeric price.
	MarkupRules []MarkupRule `json:"markup_rules,omitempty"`

	// DefaultMarkup is the percent applied above every threshold.
	DefaultMarkup *float64 `json:"default_markup,omitempty" form:"default_markup"`

	// Deep overrides the server's two-phase setting for this session.
	Deep *bool `json:"deep,omitempty" form:"deep"`

	// WebhookURL receives a signed discover.completed event when the
	// session finishes.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults normalizes free-form fields.
func (r *DiscoverRequest) Defaults() {
	r.Keyword = strings.Join(strings.Fields(r.Keyword), " ")
}

// MarkupRule applies Percent to prices at or below Threshold.
type MarkupRule struct {
	Threshold float64 `json:"threshold"`
	Percent   float64 `json:"percent"`
}

// UnmarshalJSON accepts both the pair form [threshold, percent] and the
// object form {"threshold": t, "percent": p}. Values may be numbers or
// numeric strings.
func (m *MarkupRule) UnmarshalJSON(data []byte) error {
	var pair []ruleValue
	err := json.Unmarshal(data, &pair)
	if err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("markup rule: want [threshold, percent], got %d values", len(pair))
		}
		m.Threshold, m.Percent = float64(pair[0]), float64(pair[1])
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		return fmt.Errorf("markup rule: %w", err)
	}

	var obj struct {
		Threshold ruleValue `json:"threshold"`
		Percent   ruleValue `json:"percent"`
	}
	if err = json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("markup rule: %w", err)
	}
	m.Threshold, m.Percent = float64(obj.Threshold), float64(obj.Percent)
	return nil
}

// ruleValue is a number that may arrive quoted.
type ruleValue float64

func (v *ruleValue) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	*v = ruleValue(f)
	return nil
}
