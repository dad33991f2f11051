// Package engine races interchangeable page fetchers for the fast pass: a
// plain HTTP fetch with a browser-like TLS fingerprint, and the rod
// renderer. Whichever returns a usable document first wins.
package engine

import (
	"context"
	"time"

	"github.com/use-agent/shopscout/models"
)

// Engine is the interface that all fetch engines implement.
type Engine interface {
	// Name returns the engine identifier ("http", "rod").
	Name() string

	// Fetch retrieves the document for req.
	Fetch(ctx context.Context, req *FetchRequest) (*models.RenderedPage, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Mode    models.RenderMode
	Timeout time.Duration
}
