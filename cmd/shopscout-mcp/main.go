package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/shopscout/models"
	"github.com/use-agent/shopscout/pricing"
)

// discoverResult is what the tool returns to the model.
type discoverResult struct {
	Keyword  string             `json:"keyword"`
	Products []models.Product   `json:"products"`
	Errors   []models.ErrorData `json:"errors,omitempty"`
	Sites    int                `json:"sites_processed"`
}

func main() {
	apiURL := os.Getenv("SHOPSCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}

	s := server.NewMCPServer(
		"shopscout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	discoverTool := mcp.NewTool("discover_products",
		mcp.WithDescription("Search the web for a product keyword, render the top e-commerce sites in a headless browser, and return at most one relevant product per site with title, price, size, image and product URL."),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Product search term, e.g. 'custom fridge magnets'"),
		),
		mcp.WithString("markup",
			mcp.Description("Optional markup table as 'threshold:percent,...', e.g. '50:30,100:20'. Adds a finalPrice to each product."),
		),
	)
	s.AddTool(discoverTool, handleDiscover(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleDiscover(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 5 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keyword, err := request.RequireString("keyword")
		if err != nil {
			return mcp.NewToolResultError("keyword is required"), nil
		}

		req := models.DiscoverRequest{Keyword: keyword}
		if raw := request.GetString("markup", ""); raw != "" {
			rules, err := pricing.ParseRules(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			req.MarkupRules = rules
		}

		result, err := discover(ctx, client, apiURL, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// discover opens a session on the HTTP API and collects the whole stream.
func discover(ctx context.Context, client *http.Client, apiURL string, req models.DiscoverRequest) (*discoverResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/discover", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er models.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &er) == nil && er.Error != nil {
			return nil, fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
		}
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	events, err := sse.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	return collect(req.Keyword, events)
}

func collect(keyword string, events []sse.Event) (*discoverResult, error) {
	result := &discoverResult{Keyword: keyword, Products: []models.Product{}}
	for _, ev := range events {
		data, _ := ev.Data.(string)
		switch models.EventType(ev.Event) {
		case models.EventProduct:
			var p models.Product
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return nil, fmt.Errorf("parse product: %w", err)
			}
			result.Products = append(result.Products, p)
		case models.EventError:
			var e models.ErrorData
			if err := json.Unmarshal([]byte(data), &e); err != nil {
				return nil, fmt.Errorf("parse error event: %w", err)
			}
			if e.Fatal {
				return nil, fmt.Errorf("discovery failed: %s", e.Message)
			}
			result.Errors = append(result.Errors, e)
		case models.EventDone:
			var d models.DoneData
			if err := json.Unmarshal([]byte(data), &d); err == nil {
				result.Sites = d.TotalSitesProcessed
			}
		}
	}
	return result, nil
}
