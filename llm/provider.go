// Package llm talks to the language-model backends used for product
// extraction. Backends are selected explicitly and injected; nothing here
// reads the environment.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/use-agent/shopscout/config"
)

// Prompt is one completion request.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider completes a prompt and returns the raw model text. The text is
// untrusted and may not be valid JSON.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// New builds the provider named by cfg.Provider. "none" and "" return a nil
// Provider and no error; AI extraction is then disabled.
func New(cfg config.AIConfig, httpClient *http.Client) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: openai provider needs an API key")
		}
		return NewOpenAIClient(httpClient, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaClient(httpClient, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
