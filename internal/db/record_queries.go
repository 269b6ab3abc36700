package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"skim.fyi/skim/internal/dedup"
	"skim.fyi/skim/internal/ingest"
)

// Store implements the read index consumed by the duplicate classifier and
// the write surface consumed by the ingestion coordinator, over the shared
// pool. Reads are read-committed: a write through this store is visible to a
// subsequent read from the same instance.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

const existingColumns = `
	r.raw_record_id,
	COALESCE(r.structured_ref, 0),
	r.source,
	COALESCE(r.external_id, ''),
	COALESCE(s.url_key, ''),
	COALESCE(s.title, '')
`

func (st *Store) FindBySourceExternalID(ctx context.Context, source, externalID string) (*dedup.Existing, error) {
	const q = `
SELECT ` + existingColumns + `
FROM skim.raw_records r
LEFT JOIN skim.structured_records s ON s.raw_ref = r.raw_record_id
WHERE r.source = $1 AND r.external_id = $2
LIMIT 1
`
	return st.scanExisting(ctx, q, source, externalID)
}

func (st *Store) FindByExternalID(ctx context.Context, externalID string) (*dedup.Existing, error) {
	const q = `
SELECT ` + existingColumns + `
FROM skim.raw_records r
LEFT JOIN skim.structured_records s ON s.raw_ref = r.raw_record_id
WHERE r.external_id = $1
ORDER BY r.raw_record_id
LIMIT 1
`
	return st.scanExisting(ctx, q, externalID)
}

func (st *Store) FindByURLKey(ctx context.Context, urlKey string) (*dedup.Existing, error) {
	const q = `
SELECT ` + existingColumns + `
FROM skim.structured_records s
JOIN skim.raw_records r ON r.raw_record_id = s.raw_ref
WHERE s.url_key = $1
ORDER BY s.structured_record_id
LIMIT 1
`
	return st.scanExisting(ctx, q, urlKey)
}

// TitleCandidates returns stored titles worth comparing: rows sharing the
// candidate title's leading characters, widened by a most-recent window so a
// near-match with a rewritten opening still gets scored. The contract is
// candidates worth comparing, not all matches; the classifier does the
// scoring.
func (st *Store) TitleCandidates(ctx context.Context, title string, limit int) ([]dedup.Existing, error) {
	if limit <= 0 {
		limit = 100
	}

	seen := make(map[int64]bool, limit)
	candidates := make([]dedup.Existing, 0, limit)

	if pattern := titlePrefixPattern(title); pattern != "" {
		const prefixQuery = `
SELECT ` + existingColumns + `
FROM skim.structured_records s
JOIN skim.raw_records r ON r.raw_record_id = s.raw_ref
WHERE LOWER(s.title) LIKE $1
ORDER BY s.created_at DESC, s.structured_record_id DESC
LIMIT $2
`
		matched, err := st.queryCandidates(ctx, prefixQuery, pattern, limit)
		if err != nil {
			return nil, fmt.Errorf("query title prefix candidates: %w", err)
		}
		for _, e := range matched {
			seen[e.StructuredID] = true
			candidates = append(candidates, e)
		}
	}

	const recentQuery = `
SELECT ` + existingColumns + `
FROM skim.structured_records s
JOIN skim.raw_records r ON r.raw_record_id = s.raw_ref
ORDER BY s.created_at DESC, s.structured_record_id DESC
LIMIT $1
`
	recent, err := st.queryCandidates(ctx, recentQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent title candidates: %w", err)
	}
	for _, e := range recent {
		if seen[e.StructuredID] {
			continue
		}
		candidates = append(candidates, e)
	}

	return candidates, nil
}

func (st *Store) queryCandidates(ctx context.Context, query string, args ...any) ([]dedup.Existing, error) {
	rows, err := st.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []dedup.Existing
	for rows.Next() {
		var e dedup.Existing
		if err := rows.Scan(&e.RawID, &e.StructuredID, &e.Source, &e.ExternalID, &e.URLKey, &e.Title); err != nil {
			return nil, err
		}
		candidates = append(candidates, e)
	}
	return candidates, rows.Err()
}

// titlePrefixMaxRunes bounds the LIKE prefix: long enough to discriminate,
// short enough that a near-duplicate with trailing edits still matches.
const titlePrefixMaxRunes = 24

// titlePrefixPattern builds the case-folded LIKE pattern for a title's
// leading runes, escaping LIKE metacharacters. Empty when the title is blank.
func titlePrefixPattern(title string) string {
	trimmed := strings.ToLower(strings.TrimSpace(title))
	if trimmed == "" {
		return ""
	}

	runes := []rune(trimmed)
	if len(runes) > titlePrefixMaxRunes {
		runes = runes[:titlePrefixMaxRunes]
	}

	var b strings.Builder
	for _, r := range runes {
		switch r {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('%')
	return b.String()
}

func (st *Store) scanExisting(ctx context.Context, query string, args ...any) (*dedup.Existing, error) {
	var e dedup.Existing
	err := st.pool.QueryRow(ctx, query, args...).Scan(
		&e.RawID,
		&e.StructuredID,
		&e.Source,
		&e.ExternalID,
		&e.URLKey,
		&e.Title,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// InsertRawRecord writes one raw record. The partial unique index on
// (source, external_id) turns a concurrent double-insert into a conflict
// reported to the caller rather than an error.
func (st *Store) InsertRawRecord(ctx context.Context, input ingest.RawRecordInput) (int64, bool, error) {
	const q = `
INSERT INTO skim.raw_records (
	source,
	external_id,
	payload,
	payload_hash,
	structured_ref,
	created_at,
	updated_at
)
VALUES ($1, $2, $3::jsonb, $4, NULL, $5, $5)
ON CONFLICT (source, external_id) WHERE external_id IS NOT NULL DO NOTHING
RETURNING raw_record_id
`
	var id int64
	err := st.pool.QueryRow(ctx, q,
		input.Source,
		nullableString(input.ExternalID),
		string(input.Payload),
		input.PayloadHash,
		input.CreatedAt,
	).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("insert raw record: %w", err)
	}
	return id, false, nil
}

func (st *Store) InsertStructuredRecord(ctx context.Context, input ingest.StructuredRecordInput) (int64, error) {
	authorsJSON, err := json.Marshal(input.Authors)
	if err != nil {
		return 0, fmt.Errorf("marshal authors: %w", err)
	}

	const q = `
INSERT INTO skim.structured_records (
	raw_ref,
	type,
	source,
	external_id,
	title,
	source_url,
	url_key,
	url_hash,
	authors,
	published_at,
	language,
	title_simhash,
	content_simhash,
	author_time_key,
	token_count,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13, $14, $15, $16, $16)
RETURNING structured_record_id
`
	var id int64
	err = st.pool.QueryRow(ctx, q,
		input.RawRef,
		input.Type,
		input.Source,
		nullableString(input.ExternalID),
		input.Title,
		nullableString(input.SourceURL),
		nullableString(input.URLKey),
		input.URLHash,
		string(authorsJSON),
		input.PublishedAt,
		input.Language,
		input.TitleSimhash,
		input.ContentSimhash,
		input.AuthorTimeKey,
		input.TokenCount,
		input.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert structured record raw_ref=%d: %w", input.RawRef, err)
	}
	return id, nil
}

func (st *Store) SetStructuredRef(ctx context.Context, rawID, structuredID int64, now time.Time) error {
	const q = `
UPDATE skim.raw_records
SET structured_ref = $2, updated_at = $3
WHERE raw_record_id = $1
`
	tag, err := st.pool.Exec(ctx, q, rawID, structuredID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("raw record %d not found", rawID)
	}
	return nil
}

func (st *Store) GetStructuredRef(ctx context.Context, rawID int64) (*int64, error) {
	const q = `
SELECT structured_ref
FROM skim.raw_records
WHERE raw_record_id = $1
`
	var ref *int64
	if err := st.pool.QueryRow(ctx, q, rawID).Scan(&ref); err != nil {
		return nil, err
	}
	return ref, nil
}

func (st *Store) InsertDedupEvent(ctx context.Context, event ingest.DedupEventInput) error {
	const q = `
INSERT INTO skim.dedup_events (
	source,
	external_id,
	url_key,
	decision,
	match_stage,
	matched_raw_ref,
	title_score,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	var matchedRawRef *int64
	if event.MatchedRawRef != 0 {
		matchedRawRef = &event.MatchedRawRef
	}
	var titleScore *float64
	if event.TitleScore != 0 {
		titleScore = &event.TitleScore
	}

	_, err := st.pool.Exec(ctx, q,
		event.Source,
		nullableString(event.ExternalID),
		nullableString(event.URLKey),
		event.Decision,
		nullableString(event.MatchStage),
		matchedRawRef,
		titleScore,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dedup event: %w", err)
	}
	return nil
}

func (st *Store) InsertIngestRun(ctx context.Context, run ingest.RunInput) (int64, error) {
	const q = `
INSERT INTO skim.ingest_runs (
	ingest_run_uuid,
	source,
	started_at,
	status,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, 'running', $3, $3)
RETURNING run_id
`
	var runID int64
	if err := st.pool.QueryRow(ctx, q, run.RunUUID, run.Source, run.StartedAt).Scan(&runID); err != nil {
		return 0, err
	}
	return runID, nil
}

func (st *Store) FinishIngestRun(
	ctx context.Context,
	runID int64,
	status string,
	counts ingest.RunCounts,
	errorMessage string,
	finishedAt time.Time,
) error {
	const q = `
UPDATE skim.ingest_runs
SET
	status = $2,
	items_fetched = $3,
	items_inserted = $4,
	items_skipped = $5,
	items_failed = $6,
	error_message = $7,
	finished_at = $8,
	updated_at = $8
WHERE run_id = $1
`
	_, err := st.pool.Exec(ctx, q,
		runID,
		status,
		counts.Fetched,
		counts.Inserted,
		counts.Skipped,
		counts.Failed,
		nullableString(errorMessage),
		finishedAt,
	)
	return err
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
