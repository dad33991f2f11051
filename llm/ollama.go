package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/shopscout/models"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient calls a local Ollama server's /api/generate endpoint.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient creates a client. The OpenAI default base URL is treated
// as unset, so a config that only flips the provider still works.
func NewOllamaClient(httpClient *http.Client, baseURL, model string) *OllamaClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if baseURL == "" || strings.Contains(baseURL, "api.openai.com") {
		baseURL = defaultOllamaURL
	}
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = "llama3.1"
	}
	return &OllamaClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (c *OllamaClient) Complete(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: p.User,
		System: p.System,
		Options: generateOptions{
			Temperature: p.Temperature,
			NumPredict:  p.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "ollama request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "failed to read ollama response", err)
	}

	var out generateResponse
	_ = json.Unmarshal(respBody, &out)
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, msg), nil)
	}
	if out.Error != "" {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, out.Error, nil)
	}
	return out.Response, nil
}
