package engine

import (
	"context"
	"fmt"

	"github.com/use-agent/shopscout/models"
)

// RenderFunc renders a page in a browser. It is injected by the caller so
// this package does not depend on the browser session that owns it.
type RenderFunc func(ctx context.Context, url string, mode models.RenderMode) (*models.RenderedPage, error)

// RodEngine adapts a RenderFunc to the Engine interface.
type RodEngine struct {
	render RenderFunc
}

// NewRodEngine creates a RodEngine around render.
func NewRodEngine(render RenderFunc) *RodEngine {
	return &RodEngine{render: render}
}

func (e *RodEngine) Name() string { return "rod" }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*models.RenderedPage, error) {
	if e.render == nil {
		return nil, fmt.Errorf("rod: render func not configured")
	}
	mode := req.Mode
	if mode == "" {
		mode = models.RenderFast
	}
	page, err := e.render(ctx, req.URL, mode)
	if err != nil {
		return nil, fmt.Errorf("rod: %w", err)
	}
	page.Engine = e.Name()
	return page, nil
}
