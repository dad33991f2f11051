package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/shopscout/app"
	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/models"
	"github.com/use-agent/shopscout/pricing"
)

var (
	discoverConcurrency int
	discoverNoDeep      bool
	discoverMarkup      string
	discoverDefault     float64
	discoverMultiEngine bool
	verbose             bool
)

func main() {
	root := &cobra.Command{
		Use:           "shopscout-cli",
		Short:         "Find products for a keyword across e-commerce sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	root.AddCommand(discoverCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// discoverCmd creates the "discover" subcommand.
func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [keyword]",
		Short: "Run one discovery session and print its events as NDJSON",
		Long: `Search for the keyword, render the candidate sites in a local headless
browser, and print every session event (progress, product, error, done) as
one JSON object per line on stdout.

Configuration is read from the environment and .env exactly like the server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDiscover,
	}

	cmd.Flags().IntVarP(&discoverConcurrency, "concurrency", "n", 0, "fast-pass workers (default from SHOPSCOUT_CONCURRENCY)")
	cmd.Flags().BoolVar(&discoverNoDeep, "no-deep", false, "skip the deep second pass")
	cmd.Flags().StringVar(&discoverMarkup, "markup", "", `markup table as "threshold:percent,...", e.g. "50:30,100:20"`)
	cmd.Flags().Float64Var(&discoverDefault, "default-markup", 0, "percent applied above every threshold")
	cmd.Flags().BoolVar(&discoverMultiEngine, "multi-engine", false, "race a plain HTTP fetch against the browser")

	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	setupLogger()

	cfg := config.Load()
	if discoverConcurrency > 0 {
		cfg.Discovery.Concurrency = discoverConcurrency
	}
	if discoverMultiEngine {
		cfg.Engine.EnableMultiEngine = true
	}
	cfg.Server.Metrics = false
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	req := models.DiscoverRequest{Keyword: strings.Join(args, " ")}
	if discoverMarkup != "" {
		rules, err := pricing.ParseRules(discoverMarkup)
		if err != nil {
			return err
		}
		req.MarkupRules = rules
	}
	if cmd.Flags().Changed("default-markup") {
		req.DefaultMarkup = &discoverDefault
	}
	if discoverNoDeep {
		deep := false
		req.Deep = &deep
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	var fatal error
	for ev := range a.Service.Run(ctx, req) {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		if ed, ok := ev.Data.(models.ErrorData); ok && ed.Fatal {
			fatal = fmt.Errorf("session failed: %s", ed.Message)
		}
	}
	if fatal == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return fatal
}

func setupLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
