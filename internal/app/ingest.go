package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"skim.fyi/skim/internal/cli"
	"skim.fyi/skim/internal/config"
	"skim.fyi/skim/internal/db"
	"skim.fyi/skim/internal/dedup"
	"skim.fyi/skim/internal/ingest"
	"skim.fyi/skim/internal/langdetect"
	"skim.fyi/skim/internal/logging"
	payloadschema "skim.fyi/skim/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Second, "Command timeout")
	payload := fs.String("payload", "", "Candidate item payload JSON")
	payloadFile := fs.String("payload-file", "", "Path to payload JSON file (overrides --payload)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	payloadJSON, err := loadJSONInput(*payload, *payloadFile, "payload")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	candidate, err := payloadschema.ValidateCandidatePayload(payloadJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	publishedAt, err := parseOptionalRFC3339("payload.published_at", optionalString(candidate.PublishedAt))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	coordinator := newCoordinator(pool, cfg, logger)

	result, err := coordinator.IngestOne(ctx, ingest.CandidateItem{
		Source:      strings.TrimSpace(candidate.Source),
		ExternalID:  optionalString(candidate.ExternalID),
		URL:         optionalString(candidate.URL),
		Title:       strings.TrimSpace(candidate.Title),
		Authors:     candidate.Authors,
		PublishedAt: publishedAt,
		RawPayload:  payloadJSON,
		ContentText: optionalString(candidate.ContentText),
		Language:    optionalString(candidate.Language),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	printIngestResult(result)
	return 0
}

func newCoordinator(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) *ingest.Coordinator {
	store := db.NewStore(pool)
	classifier := dedup.NewClassifier(store, logger)

	opts := ingest.Options{}
	if cfg.DetectLanguage {
		opts.DetectLanguage = langdetect.DetectISO6391
	}

	return ingest.NewCoordinator(classifier, store, logger, opts)
}

func printIngestResult(result ingest.Result) {
	fmt.Printf("outcome=%s\n", result.Outcome)
	switch result.Outcome {
	case ingest.OutcomeIngested:
		fmt.Printf("raw_record_id=%d structured_record_id=%d\n", result.RawRecordID, result.StructuredRecordID)
	case ingest.OutcomeDuplicate:
		fmt.Printf("matched_stage=%s\n", result.Verdict.Stage)
		if result.Verdict.Match != nil {
			fmt.Printf("matched_raw_record_id=%d\n", result.Verdict.Match.RawID)
		}
		if result.Verdict.Stage == dedup.StageTitle {
			fmt.Printf("title_score=%.3f\n", result.Verdict.TitleScore)
		}
	case ingest.OutcomeInvalid:
		fmt.Printf("skip_reason=%s\n", result.SkipReason)
	}
}
