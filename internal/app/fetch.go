package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"skim.fyi/skim/internal/cli"
	"skim.fyi/skim/internal/config"
	"skim.fyi/skim/internal/db"
	"skim.fyi/skim/internal/extract"
	"skim.fyi/skim/internal/logging"
)

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	pageURL := fs.String("url", "", "Page URL to fetch (required)")
	title := fs.String("title", "", "Candidate title (derived from content when empty)")
	dryRun := fs.Bool("dry-run", false, "Extract and print without writing to the database")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*pageURL) == "" {
		fmt.Fprintln(os.Stderr, "--url is required")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	item, err := extract.FetchCandidate(ctx, *pageURL, *title, extract.FetchOptions{
		UserAgent: cfg.FetchUserAgent,
	})
	if err != nil {
		logger.Error().Err(err).Str("url", *pageURL).Msg("fetch failed")
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		return 1
	}

	if *dryRun {
		preview, truncated := extract.TruncateText(item.ContentText, 500)
		fmt.Printf("title=%s\n", item.Title)
		fmt.Printf("content_chars=%d truncated_preview=%t\n", len(item.ContentText), truncated)
		fmt.Println(preview)
		return 0
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	coordinator := newCoordinator(pool, cfg, logger)

	result, err := coordinator.IngestOne(ctx, item)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	printIngestResult(result)
	return 0
}
