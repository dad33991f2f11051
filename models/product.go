package models

// Extraction sources recorded on a ProductCandidate.
const (
	SourceStructured = "structured"
	SourceMicrodata  = "microdata"
	SourceAI         = "ai"
)

// RenderMode selects how thoroughly a page is rendered.
type RenderMode string

const (
	// RenderFast waits for DOMContentLoaded under the short timeout.
	RenderFast RenderMode = "fast"
	// RenderDeep waits for the network to go mostly idle under the long timeout.
	RenderDeep RenderMode = "deep"
)

// CandidateURL is a site the resolver proposes for scanning.
type CandidateURL struct {
	URL string `json:"url"`

	// Priority is set when the host matches the curated vendor list.
	Priority bool `json:"priority"`
}

// RenderedPage is the DOM snapshot of one site. It is owned by a single
// worker and discarded once extraction finishes.
type RenderedPage struct {
	URL      string
	FinalURL string
	HTML     string
	Engine   string
}

// BaseURL returns the URL relative links on the page resolve against.
func (p *RenderedPage) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// ProductCandidate is a product record produced by one of the extractors.
type ProductCandidate struct {
	Title      string  `json:"title"`
	Price      *string `json:"price"`
	Size       *string `json:"size"`
	ImageURL   *string `json:"imageUrl"`
	ProductURL string  `json:"productUrl"`
	Source     string  `json:"source,omitempty"`
}

// HasImage reports whether the candidate carries a non-empty image URL.
func (c *ProductCandidate) HasImage() bool {
	return c.ImageURL != nil && *c.ImageURL != ""
}

// Product is the record streamed to the caller: the winning candidate of
// one site plus where it came from.
type Product struct {
	ProductCandidate

	Domain  string `json:"domain"`
	SiteURL string `json:"siteUrl"`

	// FinalPrice is the price after the request's markup table was applied.
	FinalPrice *string `json:"finalPrice,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
