package extract

import (
	"net/url"
	"strings"
)

// NormalizeURL makes raw absolute against base.
//
//	https://a.example/x  → unchanged
//	//cdn.example/x.jpg  → https://cdn.example/x.jpg
//	/x, x, ../x          → resolved against the origin of base
//	data:, javascript:, mailto:, empty → rejected
func NormalizeURL(raw, base string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return "", false
		}
		return raw, true
	case strings.HasPrefix(raw, "//"):
		u, err := url.Parse("https:" + raw)
		if err != nil || u.Host == "" {
			return "", false
		}
		return u.String(), true
	}

	ref, err := url.Parse(raw)
	if err != nil || ref.Scheme != "" {
		// data:, javascript:, mailto: and friends.
		return "", false
	}

	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || b.Host == "" || (b.Scheme != "http" && b.Scheme != "https") {
		return "", false
	}
	origin := &url.URL{Scheme: b.Scheme, Host: b.Host, Path: "/"}
	return origin.ResolveReference(ref).String(), true
}

// normalizePtr normalizes an optional URL, returning nil when unusable.
func normalizePtr(raw, base string) *string {
	if u, ok := NormalizeURL(raw, base); ok {
		return &u
	}
	return nil
}
