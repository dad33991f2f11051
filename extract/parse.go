package extract

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ParseStatus tags the outcome of reading model output.
type ParseStatus int

const (
	// ParseEmpty means the model returned nothing usable but nothing wrong:
	// blank text or an empty list.
	ParseEmpty ParseStatus = iota
	// ParseOK means at least one record was decoded.
	ParseOK
	// ParseMalformed means no JSON could be isolated or decoded.
	ParseMalformed
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseMalformed:
		return "malformed"
	default:
		return "empty"
	}
}

// ParseResult is the tagged result of ParseModelOutput.
type ParseResult struct {
	Status  ParseStatus
	Records []ModelRecord
	Err     error
}

// ModelRecord is one product as the model reports it. Fields are loose:
// prices and sizes arrive as strings, numbers or null.
type ModelRecord struct {
	Title      looseString `json:"title"`
	Name       looseString `json:"name"`
	Price      looseString `json:"price"`
	Size       looseString `json:"size"`
	ImageURL   looseString `json:"imageUrl"`
	Image      looseString `json:"image"`
	ProductURL looseString `json:"productUrl"`
	URL        looseString `json:"url"`
}

// TitleText returns title, falling back to name.
func (r ModelRecord) TitleText() string { return firstNonEmpty(string(r.Title), string(r.Name)) }

// ImageText returns imageUrl, falling back to image.
func (r ModelRecord) ImageText() string { return firstNonEmpty(string(r.ImageURL), string(r.Image)) }

// URLText returns productUrl, falling back to url.
func (r ModelRecord) URLText() string { return firstNonEmpty(string(r.ProductURL), string(r.URL)) }

// looseString decodes any JSON scalar to its text; null and objects decode
// to "".
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*s = looseString(strings.TrimSpace(t))
	case float64:
		*s = looseString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		*s = ""
	}
	if strings.EqualFold(string(*s), "null") || strings.EqualFold(string(*s), "n/a") {
		*s = ""
	}
	return nil
}

var errNoJSON = errors.New("no JSON value in model output")

// ParseModelOutput reads free-form model text. It strips code fences, then
// tries the outermost [...] span, then the outermost {...} span. An object
// may be a single product or wrap a "products" array.
func ParseModelOutput(raw string) ParseResult {
	text := stripFences(raw)
	if text == "" {
		return ParseResult{Status: ParseEmpty}
	}

	var lastErr error = errNoJSON
	if span, ok := between(text, '[', ']'); ok {
		var records []ModelRecord
		err := json.Unmarshal([]byte(span), &records)
		if err == nil {
			return result(records)
		}
		lastErr = err
	}
	if span, ok := between(text, '{', '}'); ok {
		var wrapper struct {
			Products []ModelRecord `json:"products"`
		}
		if err := json.Unmarshal([]byte(span), &wrapper); err == nil && wrapper.Products != nil {
			return result(wrapper.Products)
		}
		var single ModelRecord
		err := json.Unmarshal([]byte(span), &single)
		if err == nil {
			if single.TitleText() == "" {
				return ParseResult{Status: ParseEmpty}
			}
			return result([]ModelRecord{single})
		}
		lastErr = err
	}
	return ParseResult{Status: ParseMalformed, Err: lastErr}
}

func result(records []ModelRecord) ParseResult {
	if len(records) == 0 {
		return ParseResult{Status: ParseEmpty}
	}
	return ParseResult{Status: ParseOK, Records: records}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json".
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func between(s string, open, close byte) (string, bool) {
	i := strings.IndexByte(s, open)
	j := strings.LastIndexByte(s, close)
	if i < 0 || j <= i {
		return "", false
	}
	return s[i : j+1], true
}
