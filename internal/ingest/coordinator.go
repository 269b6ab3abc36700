// Package ingest turns candidate items into persisted (raw record,
// structured record) pairs, enforcing the duplicate classifier's verdict and
// the bidirectional-link protocol: raw first, structured second, then one
// back-reference update that is re-read and verified.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"skim.fyi/skim/internal/dedup"
	"skim.fyi/skim/internal/fingerprint"
	"skim.fyi/skim/internal/globaltime"
	langtag "skim.fyi/skim/internal/language"
)

const maxRunErrorLength = 4000

// CandidateItem is one not-yet-persisted unit yielded by a source adapter.
type CandidateItem struct {
	Source      string
	ExternalID  string
	URL         string
	Title       string
	Authors     []string
	PublishedAt *time.Time
	RawPayload  json.RawMessage
	ContentText string
	Language    string
}

// StructuredFields is the source-specific normalized projection of a raw
// payload. Deriving it is external to this core; DefaultDerive covers sources
// whose candidates already arrive normalized.
type StructuredFields struct {
	Type        string
	Title       string
	SourceURL   string
	Authors     []string
	PublishedAt *time.Time
	ContentText string
	Language    string
}

// DeriveFunc maps a candidate item to its structured projection.
type DeriveFunc func(item CandidateItem) (StructuredFields, error)

// RawRecordInput is the store-facing write payload for a raw record.
type RawRecordInput struct {
	Source      string
	ExternalID  string
	Payload     json.RawMessage
	PayloadHash []byte
	CreatedAt   time.Time
}

// StructuredRecordInput is the store-facing write payload for a structured
// record. RawRef is required.
type StructuredRecordInput struct {
	RawRef         int64
	Type           string
	Source         string
	ExternalID     string
	Title          string
	SourceURL      string
	URLKey         string
	URLHash        []byte
	Authors        []string
	PublishedAt    *time.Time
	Language       string
	TitleSimhash   *int64
	ContentSimhash *int64
	AuthorTimeKey  *int64
	TokenCount     int
	CreatedAt      time.Time
}

// DedupEventInput records one classifier decision in the ledger.
type DedupEventInput struct {
	Source        string
	ExternalID    string
	URLKey        string
	Decision      string
	MatchStage    string
	MatchedRawRef int64
	TitleScore    float64
	CreatedAt     time.Time
}

// RunInput opens one batch row in the ingest run ledger.
type RunInput struct {
	RunUUID   string
	Source    string
	StartedAt time.Time
}

// RunCounts closes a batch row.
type RunCounts struct {
	Fetched  int
	Inserted int
	Skipped  int
	Failed   int
}

// Store is the write surface the coordinator consumes. Every operation is
// atomic at the single-record level; the (source, external id) uniqueness
// constraint lives at the store.
type Store interface {
	InsertRawRecord(ctx context.Context, input RawRecordInput) (id int64, conflict bool, err error)
	InsertStructuredRecord(ctx context.Context, input StructuredRecordInput) (int64, error)
	SetStructuredRef(ctx context.Context, rawID, structuredID int64, now time.Time) error
	GetStructuredRef(ctx context.Context, rawID int64) (*int64, error)
	InsertDedupEvent(ctx context.Context, event DedupEventInput) error
	InsertIngestRun(ctx context.Context, run RunInput) (int64, error)
	FinishIngestRun(ctx context.Context, runID int64, status string, counts RunCounts, errorMessage string, finishedAt time.Time) error
}

// Outcome classifies what happened to one candidate.
type Outcome string

const (
	OutcomeIngested  Outcome = "ingested"
	OutcomeDuplicate Outcome = "skipped_duplicate"
	OutcomeInvalid   Outcome = "skipped_invalid"
)

// Result reports the per-item outcome.
type Result struct {
	Outcome            Outcome
	RawRecordID        int64
	StructuredRecordID int64
	Verdict            dedup.Verdict
	SkipReason         string
}

// BatchResult aggregates one source batch.
type BatchResult struct {
	RunID    int64
	RunUUID  string
	Fetched  int
	Inserted int
	Skipped  int
	Failed   int
}

// ConsistencyError marks a failure after the raw record was written: the link
// step failed or the verification re-read disagreed. The stores now hold an
// inconsistency the integrity auditor must pick up.
type ConsistencyError struct {
	RawRecordID        int64
	StructuredRecordID int64
	Err                error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency fault: raw_record_id=%d structured_record_id=%d: %v",
		e.RawRecordID, e.StructuredRecordID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// Coordinator persists novel candidates one at a time, strictly sequentially
// within a source.
type Coordinator struct {
	classifier *dedup.Classifier
	store      Store
	derive     DeriveFunc
	detectLang func(text string) string
	logger     zerolog.Logger
}

// Options customizes derivation. Zero values fall back to DefaultDerive and
// no language detection.
type Options struct {
	Derive         DeriveFunc
	DetectLanguage func(text string) string
}

func NewCoordinator(classifier *dedup.Classifier, store Store, logger zerolog.Logger, opts Options) *Coordinator {
	derive := opts.Derive
	if derive == nil {
		derive = DefaultDerive
	}
	return &Coordinator{
		classifier: classifier,
		store:      store,
		derive:     derive,
		detectLang: opts.DetectLanguage,
		logger:     logger,
	}
}

// IngestOne runs the full per-item protocol: classify, write raw, derive and
// write structured, link, verify. Duplicate and invalid candidates produce a
// skipped Result with no error. A write failure before the link step aborts
// just this item; a failure at or after the link step returns a
// *ConsistencyError.
func (c *Coordinator) IngestOne(ctx context.Context, item CandidateItem) (Result, error) {
	if c == nil || c.store == nil || c.classifier == nil {
		return Result{}, fmt.Errorf("ingest coordinator is not initialized")
	}

	source := strings.TrimSpace(item.Source)
	externalID := strings.TrimSpace(item.ExternalID)
	title := strings.TrimSpace(item.Title)
	urlKey := fingerprint.NormalizeURL(item.URL)

	if reason := validate(source, externalID, title, item.URL); reason != "" {
		c.logger.Warn().
			Str("source", source).
			Str("external_id", externalID).
			Str("reason", reason).
			Msg("skipping malformed candidate")
		return Result{Outcome: OutcomeInvalid, SkipReason: reason}, nil
	}

	verdict, err := c.classifier.Classify(ctx, dedup.Candidate{
		Source:     source,
		ExternalID: externalID,
		URL:        item.URL,
		Title:      title,
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify candidate: %w", err)
	}

	now := globaltime.UTC()
	if verdict.Duplicate {
		c.recordDecision(ctx, source, externalID, urlKey, string(OutcomeDuplicate), verdict, now)
		return Result{Outcome: OutcomeDuplicate, Verdict: verdict}, nil
	}

	payload, payloadHash, err := canonicalPayload(item)
	if err != nil {
		return Result{}, fmt.Errorf("canonicalize payload: %w", err)
	}

	rawID, conflict, err := c.store.InsertRawRecord(ctx, RawRecordInput{
		Source:      source,
		ExternalID:  externalID,
		Payload:     payload,
		PayloadHash: payloadHash,
		CreatedAt:   now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("insert raw record: %w", err)
	}
	if conflict {
		// Two writers raced the same (source, external id) past the
		// classifier; the store constraint decided. A duplicate discovered
		// late, not a failure.
		verdict = dedup.Verdict{Duplicate: true, Stage: dedup.StageSourceIdentity}
		c.recordDecision(ctx, source, externalID, urlKey, "late_duplicate", verdict, now)
		return Result{Outcome: OutcomeDuplicate, Verdict: verdict}, nil
	}

	fields, err := c.derive(item)
	if err != nil {
		return Result{RawRecordID: rawID}, fmt.Errorf("derive structured record from raw_record_id=%d: %w", rawID, err)
	}

	structuredInput := c.buildStructuredInput(rawID, source, externalID, item, fields, now)
	structuredID, err := c.store.InsertStructuredRecord(ctx, structuredInput)
	if err != nil {
		return Result{RawRecordID: rawID}, fmt.Errorf("insert structured record for raw_record_id=%d: %w", rawID, err)
	}

	if err := c.store.SetStructuredRef(ctx, rawID, structuredID, globaltime.UTC()); err != nil {
		return Result{RawRecordID: rawID, StructuredRecordID: structuredID},
			&ConsistencyError{RawRecordID: rawID, StructuredRecordID: structuredID, Err: fmt.Errorf("set structured_ref: %w", err)}
	}

	linked, err := c.store.GetStructuredRef(ctx, rawID)
	if err != nil {
		return Result{RawRecordID: rawID, StructuredRecordID: structuredID},
			&ConsistencyError{RawRecordID: rawID, StructuredRecordID: structuredID, Err: fmt.Errorf("verify structured_ref: %w", err)}
	}
	if linked == nil || *linked != structuredID {
		return Result{RawRecordID: rawID, StructuredRecordID: structuredID},
			&ConsistencyError{RawRecordID: rawID, StructuredRecordID: structuredID,
				Err: fmt.Errorf("verification re-read disagrees: got %v want %d", linked, structuredID)}
	}

	c.recordDecision(ctx, source, externalID, urlKey, string(OutcomeIngested), dedup.Verdict{}, now)
	c.logger.Info().
		Str("source", source).
		Str("external_id", externalID).
		Int64("raw_record_id", rawID).
		Int64("structured_record_id", structuredID).
		Msg("candidate ingested")

	return Result{
		Outcome:            OutcomeIngested,
		RawRecordID:        rawID,
		StructuredRecordID: structuredID,
	}, nil
}

// IngestBatch processes one source's candidates strictly sequentially, one
// fully committed or fully failed before the next begins. Per-item errors
// never abort the batch; cancellation is honored only at item boundaries.
func (c *Coordinator) IngestBatch(ctx context.Context, source string, items []CandidateItem) (BatchResult, error) {
	if c == nil || c.store == nil {
		return BatchResult{}, fmt.Errorf("ingest coordinator is not initialized")
	}

	runUUID := uuid.NewString()
	runID, err := c.store.InsertIngestRun(ctx, RunInput{
		RunUUID:   runUUID,
		Source:    strings.TrimSpace(source),
		StartedAt: globaltime.UTC(),
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("insert ingest run: %w", err)
	}

	result := BatchResult{RunID: runID, RunUUID: runUUID, Fetched: len(items)}
	var firstErr error

	for i := range items {
		if err := ctx.Err(); err != nil {
			c.logger.Info().
				Int64("run_id", runID).
				Int("processed", i).
				Msg("batch cancelled at item boundary")
			break
		}

		itemResult, err := c.IngestOne(ctx, items[i])
		if err != nil {
			result.Failed++
			if firstErr == nil {
				firstErr = err
			}
			var consistency *ConsistencyError
			if errors.As(err, &consistency) {
				c.logger.Error().
					Err(err).
					Int64("run_id", runID).
					Int64("raw_record_id", consistency.RawRecordID).
					Msg("consistency fault during ingest; run the integrity auditor")
			} else {
				c.logger.Warn().
					Err(err).
					Int64("run_id", runID).
					Str("source", items[i].Source).
					Msg("candidate failed; continuing batch")
			}
			continue
		}

		switch itemResult.Outcome {
		case OutcomeIngested:
			result.Inserted++
		default:
			result.Skipped++
		}
	}

	status := "completed"
	errorMessage := ""
	if firstErr != nil {
		status = "completed_with_errors"
		errorMessage = truncateError(firstErr)
	}
	finishErr := c.store.FinishIngestRun(ctx, runID, status, RunCounts{
		Fetched:  result.Fetched,
		Inserted: result.Inserted,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
	}, errorMessage, globaltime.UTC())
	if finishErr != nil {
		return result, fmt.Errorf("finish ingest run %d: %w", runID, finishErr)
	}

	return result, nil
}

func (c *Coordinator) buildStructuredInput(
	rawID int64,
	source string,
	externalID string,
	item CandidateItem,
	fields StructuredFields,
	now time.Time,
) StructuredRecordInput {
	title := strings.TrimSpace(fields.Title)
	if title == "" {
		title = strings.TrimSpace(item.Title)
	}

	sourceURL := strings.TrimSpace(fields.SourceURL)
	if sourceURL == "" {
		sourceURL = strings.TrimSpace(item.URL)
	}
	urlKey := fingerprint.NormalizeURL(sourceURL)

	var urlHash []byte
	if urlKey != "" {
		hash := sha256.Sum256([]byte(urlKey))
		urlHash = append([]byte(nil), hash[:]...)
	}

	authors := fields.Authors
	if len(authors) == 0 {
		authors = item.Authors
	}

	publishedAt := fields.PublishedAt
	if publishedAt == nil {
		publishedAt = item.PublishedAt
	}

	contentText := fields.ContentText
	if strings.TrimSpace(contentText) == "" {
		contentText = item.ContentText
	}

	language := langtag.NormalizeCode(fields.Language)
	if language == "" && c.detectLang != nil {
		sample := contentText
		if strings.TrimSpace(sample) == "" {
			sample = title
		}
		language = c.detectLang(sample)
	}
	if language == "" {
		language = "und"
	}

	var titleSimhash *int64
	if fp := fingerprint.ContentFingerprint(title); fp != 0 {
		value := int64(fp)
		titleSimhash = &value
	}

	var contentSimhash *int64
	if fp := fingerprint.ContentFingerprint(contentText); fp != 0 {
		value := int64(fp)
		contentSimhash = &value
	}

	var authorTimeKey *int64
	if publishedAt != nil {
		if key, ok := fingerprint.AuthorTimeKey(authors, publishedAt.UTC().Format("2006-01-02")); ok {
			value := int64(key)
			authorTimeKey = &value
		}
	}

	recordType := strings.TrimSpace(fields.Type)
	if recordType == "" {
		recordType = typeForSource(source)
	}

	return StructuredRecordInput{
		RawRef:         rawID,
		Type:           recordType,
		Source:         source,
		ExternalID:     externalID,
		Title:          title,
		SourceURL:      sourceURL,
		URLKey:         urlKey,
		URLHash:        urlHash,
		Authors:        authors,
		PublishedAt:    publishedAt,
		Language:       language,
		TitleSimhash:   titleSimhash,
		ContentSimhash: contentSimhash,
		AuthorTimeKey:  authorTimeKey,
		TokenCount:     countTokens(title + " " + contentText),
		CreatedAt:      now,
	}
}

func (c *Coordinator) recordDecision(
	ctx context.Context,
	source, externalID, urlKey, decision string,
	verdict dedup.Verdict,
	now time.Time,
) {
	event := DedupEventInput{
		Source:     source,
		ExternalID: externalID,
		URLKey:     urlKey,
		Decision:   decision,
		CreatedAt:  now,
	}
	if verdict.Duplicate {
		event.MatchStage = string(verdict.Stage)
		event.TitleScore = verdict.TitleScore
		if verdict.Match != nil {
			event.MatchedRawRef = verdict.Match.RawID
		}
	}

	if err := c.store.InsertDedupEvent(ctx, event); err != nil {
		// The ledger is observability, not correctness; losing an event must
		// not fail the item.
		c.logger.Warn().Err(err).Str("source", source).Msg("failed to record dedup event")
	}
}

// DefaultDerive maps a candidate that already arrived normalized. Sources
// with richer payloads install their own DeriveFunc.
func DefaultDerive(item CandidateItem) (StructuredFields, error) {
	return StructuredFields{
		Type:        typeForSource(item.Source),
		Title:       strings.TrimSpace(item.Title),
		SourceURL:   strings.TrimSpace(item.URL),
		Authors:     item.Authors,
		PublishedAt: item.PublishedAt,
		ContentText: item.ContentText,
		Language:    item.Language,
	}, nil
}

func typeForSource(source string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "arxiv":
		return "paper"
	case "github":
		return "repository"
	case "hackernews":
		return "news"
	case "rss":
		return "feed_entry"
	case "web":
		return "page"
	default:
		return "item"
	}
}

func validate(source, externalID, title, rawURL string) string {
	if source == "" {
		return "source is required"
	}
	if title == "" && strings.TrimSpace(rawURL) == "" && externalID == "" {
		return "candidate carries no title, url, or external id"
	}
	if title == "" && strings.TrimSpace(rawURL) == "" {
		return "candidate is missing both title and url"
	}
	return ""
}

func canonicalPayload(item CandidateItem) (json.RawMessage, []byte, error) {
	payload := item.RawPayload
	if len(payload) == 0 {
		synthesized, err := json.Marshal(map[string]any{
			"source":       item.Source,
			"external_id":  item.ExternalID,
			"url":          item.URL,
			"title":        item.Title,
			"authors":      item.Authors,
			"published_at": item.PublishedAt,
			"content_text": item.ContentText,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("synthesize payload: %w", err)
		}
		payload = synthesized
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, nil, fmt.Errorf("decode payload JSON: %w", err)
	}
	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal canonical payload: %w", err)
	}

	hash := sha256.Sum256(canonical)
	return canonical, hash[:], nil
}

func countTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func truncateError(err error) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) > maxRunErrorLength {
		msg = msg[:maxRunErrorLength]
	}
	return msg
}
