// Package dedup decides whether a candidate item duplicates a record the
// corpus already holds. The five-stage check order is fixed: identity checks
// are authoritative and must dominate fuzzy title checks.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"skim.fyi/skim/internal/fingerprint"
)

const (
	// TitleVerdictThreshold is the strict title cutoff for the authoritative
	// cross-source verdict. Stricter than the library default to avoid
	// over-merging distinct items.
	TitleVerdictThreshold = 0.9

	// BatchTitleThreshold is the looser cutoff used only for intra-batch
	// pre-filtering, where a false positive costs one skipped fetch rather
	// than a wrongly merged record.
	BatchTitleThreshold = 0.75

	// TitleCandidateLimit bounds how many stored titles a single
	// classification is willing to compare against.
	TitleCandidateLimit = 300
)

// Candidate is the subset of an incoming item the classifier needs.
type Candidate struct {
	Source     string
	ExternalID string
	URL        string
	Title      string
}

// Existing is a read-only view of one stored record pair.
type Existing struct {
	RawID        int64
	StructuredID int64
	Source       string
	ExternalID   string
	URLKey       string
	Title        string
}

// Index is the read-only lookup surface the classifier consumes. TitleCandidates
// returns candidates worth comparing, not necessarily all matches.
type Index interface {
	FindBySourceExternalID(ctx context.Context, source, externalID string) (*Existing, error)
	FindByExternalID(ctx context.Context, externalID string) (*Existing, error)
	FindByURLKey(ctx context.Context, urlKey string) (*Existing, error)
	TitleCandidates(ctx context.Context, title string, limit int) ([]Existing, error)
}

// Stage identifies which check produced a duplicate verdict.
type Stage string

const (
	StageSourceIdentity Stage = "source_external_id"
	StageCrossSource    Stage = "external_id"
	StageURL            Stage = "url"
	StageTitle          Stage = "title"
)

// Verdict is the classifier's decision for one candidate.
type Verdict struct {
	Duplicate  bool
	Stage      Stage
	Match      *Existing
	TitleScore float64
}

type Classifier struct {
	index  Index
	logger zerolog.Logger
}

func NewClassifier(index Index, logger zerolog.Logger) *Classifier {
	return &Classifier{
		index:  index,
		logger: logger,
	}
}

// Classify runs the fixed five-stage duplicate check, short-circuiting on the
// first match. A candidate without an external id falls through to the URL
// and title stages.
func (c *Classifier) Classify(ctx context.Context, candidate Candidate) (Verdict, error) {
	if c == nil || c.index == nil {
		return Verdict{}, fmt.Errorf("classifier is not initialized")
	}

	source := strings.TrimSpace(candidate.Source)
	externalID := strings.TrimSpace(candidate.ExternalID)
	title := strings.TrimSpace(candidate.Title)
	urlKey := fingerprint.NormalizeURL(candidate.URL)

	if externalID != "" {
		match, err := c.index.FindBySourceExternalID(ctx, source, externalID)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup by source identity: %w", err)
		}
		if match != nil {
			return duplicateVerdict(StageSourceIdentity, match, 0), nil
		}

		match, err = c.index.FindByExternalID(ctx, externalID)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup by external id: %w", err)
		}
		if match != nil {
			return duplicateVerdict(StageCrossSource, match, 0), nil
		}
	}

	if urlKey != "" {
		match, err := c.index.FindByURLKey(ctx, urlKey)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup by url key: %w", err)
		}
		if match != nil {
			return duplicateVerdict(StageURL, match, 0), nil
		}
	}

	if title != "" {
		candidates, err := c.index.TitleCandidates(ctx, title, TitleCandidateLimit)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup title candidates: %w", err)
		}
		for i := range candidates {
			score := fingerprint.TitleSimilarity(title, candidates[i].Title)
			if score >= TitleVerdictThreshold {
				c.logger.Debug().
					Str("title", title).
					Str("matched_title", candidates[i].Title).
					Float64("score", score).
					Msg("title stage matched")
				return duplicateVerdict(StageTitle, &candidates[i], score), nil
			}
		}
	}

	return Verdict{}, nil
}

func duplicateVerdict(stage Stage, match *Existing, score float64) Verdict {
	return Verdict{
		Duplicate:  true,
		Stage:      stage,
		Match:      match,
		TitleScore: score,
	}
}

// DetectDuplicatesInBatch pre-filters one freshly fetched page of candidates
// against each other, not against the store. An item is flagged when its
// normalized URL or its title (at the loose batch threshold) matches an
// earlier, not-yet-flagged item. The seen state is scoped to this call.
func DetectDuplicatesInBatch(items []Candidate, threshold float64) []bool {
	if threshold <= 0 {
		threshold = BatchTitleThreshold
	}

	flagged := make([]bool, len(items))
	seenURLs := make(map[string]struct{}, len(items))
	seenTitles := make([]string, 0, len(items))

	for i, item := range items {
		urlKey := fingerprint.NormalizeURL(item.URL)
		title := strings.TrimSpace(item.Title)

		if urlKey != "" {
			if _, ok := seenURLs[urlKey]; ok {
				flagged[i] = true
				continue
			}
		}

		matched := false
		if title != "" {
			for _, earlier := range seenTitles {
				if fingerprint.AreSimilar(title, earlier, threshold) {
					matched = true
					break
				}
			}
		}
		if matched {
			flagged[i] = true
			continue
		}

		if urlKey != "" {
			seenURLs[urlKey] = struct{}{}
		}
		if title != "" {
			seenTitles = append(seenTitles, title)
		}
	}

	return flagged
}
