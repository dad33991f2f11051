package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-contrib/sse"

	"github.com/use-agent/shopscout/models"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "shopscout API base URL")
	runs   = flag.Int("runs", 2, "Number of sessions per keyword for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
	noDeep = flag.Bool("no-deep", false, "Disable the deep pass")
)

// Keywords covering goods with and without structured data on typical stores.
var testKeywords = []string{
	"custom fridge magnets",
	"bumper stickers",
	"personalised coffee mugs",
	"tote bags",
	"enamel pins",
}

// --- Benchmark result types ---

type runResult struct {
	Run            int     `json:"run"`
	TotalMs        int64   `json:"total_ms"`
	FirstProductMs int64   `json:"first_product_ms,omitempty"`
	Sites          int     `json:"sites"`
	Products       int     `json:"products"`
	SiteErrors     int     `json:"site_errors"`
	AIProducts     int     `json:"ai_products"`
	YieldPercent   float64 `json:"yield_percent"`
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
}

type keywordAverages struct {
	TotalMs        float64 `json:"total_ms"`
	FirstProductMs float64 `json:"first_product_ms"`
	Products       float64 `json:"products"`
	YieldPercent   float64 `json:"yield_percent"`
}

type keywordResult struct {
	Keyword  string           `json:"keyword"`
	Runs     []runResult      `json:"runs"`
	Averages *keywordAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp      string          `json:"timestamp"`
	APIURL         string          `json:"api_url"`
	RunsPerKeyword int             `json:"runs_per_keyword"`
	Results        []keywordResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== shopscout discovery benchmark ===")
	fmt.Printf("API URL:      %s\n", *apiURL)
	fmt.Printf("Runs/keyword: %d\n", *runs)
	fmt.Printf("Output:       %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		APIURL:         *apiURL,
		RunsPerKeyword: *runs,
	}

	for _, kw := range testKeywords {
		fmt.Printf("Benchmarking %q ...\n", kw)
		kr := keywordResult{Keyword: kw}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkKeyword(kw, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d products from %d sites\n", rr.TotalMs, rr.Products, rr.Sites)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			kr.Runs = append(kr.Runs, rr)
		}

		kr.Averages = computeAverages(kr.Runs)
		report.Results = append(report.Results, kr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkKeyword(keyword string, run int) runResult {
	rr := runResult{Run: run}

	req := models.DiscoverRequest{Keyword: keyword}
	if *noDeep {
		deep := false
		req.Deep = &deep
	}
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	start := time.Now()
	resp, err := client.Post(*apiURL+"/api/v1/discover", "application/json", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		rr.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return rr
	}

	// Read line by line to time the first product as it arrives.
	var raw bytes.Buffer
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if rr.FirstProductMs == 0 && line == "event:product" {
			rr.FirstProductMs = time.Since(start).Milliseconds()
		}
		raw.WriteString(line)
		raw.WriteByte('\n')
	}
	rr.TotalMs = time.Since(start).Milliseconds()
	if err := sc.Err(); err != nil {
		rr.Error = fmt.Sprintf("read error: %v", err)
		return rr
	}

	events, err := sse.Decode(&raw)
	if err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	for _, ev := range events {
		data, _ := ev.Data.(string)
		switch models.EventType(ev.Event) {
		case models.EventProduct:
			var p models.Product
			if json.Unmarshal([]byte(data), &p) == nil && p.Source == models.SourceAI {
				rr.AIProducts++
			}
		case models.EventError:
			var e models.ErrorData
			if json.Unmarshal([]byte(data), &e) == nil && e.Fatal {
				rr.Error = e.Message
				return rr
			}
			rr.SiteErrors++
		case models.EventDone:
			var d models.DoneData
			if err := json.Unmarshal([]byte(data), &d); err == nil {
				rr.Sites = d.TotalSitesProcessed
				rr.Products = d.Products
				rr.Success = true
			}
		}
	}
	if rr.Sites > 0 {
		rr.YieldPercent = float64(rr.Products) / float64(rr.Sites) * 100
	}
	if !rr.Success {
		rr.Error = "stream ended without done"
	}
	return rr
}

func computeAverages(runs []runResult) *keywordAverages {
	var successCount, firstCount int
	var avg keywordAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.Products += float64(r.Products)
		avg.YieldPercent += r.YieldPercent
		if r.FirstProductMs > 0 {
			firstCount++
			avg.FirstProductMs += float64(r.FirstProductMs)
		}
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.Products /= n
	avg.YieldPercent /= n
	if firstCount > 0 {
		avg.FirstProductMs /= float64(firstCount)
	}
	return &avg
}

func printTable(results []keywordResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Keyword\tAvg Total\tFirst Product\tProducts\tYield\n")
	fmt.Fprintf(w, "───────\t─────────\t─────────────\t────────\t─────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", truncate(r.Keyword, 32))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.1f\t%.0f%%\n",
			truncate(r.Keyword, 32),
			int64(r.Averages.TotalMs),
			int64(r.Averages.FirstProductMs),
			r.Averages.Products,
			r.Averages.YieldPercent,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
