package db

import (
	"context"
	"fmt"
	"time"
)

// SourceCount stores per-source corpus counts.
type SourceCount struct {
	Source     string `json:"source"`
	RawRecords int64  `json:"raw_records"`
	Structured int64  `json:"structured_records"`
}

// CorpusStats is the read model returned by the stats command and endpoint.
type CorpusStats struct {
	RawRecords        int64            `json:"raw_records"`
	StructuredRecords int64            `json:"structured_records"`
	DedupEvents       int64            `json:"dedup_events"`
	RunningRuns       int64            `json:"running_ingest_runs"`
	Decisions         map[string]int64 `json:"dedup_decisions"`
	Sources           []SourceCount    `json:"sources"`
	LastRecordAt      *time.Time       `json:"last_record_at,omitempty"`
}

// QueryCorpusStats returns corpus totals, per-source counts, and the
// distribution of dedup decisions.
func (p *Pool) QueryCorpusStats(ctx context.Context) (*CorpusStats, error) {
	stats := &CorpusStats{
		Decisions: make(map[string]int64, 4),
		Sources:   make([]SourceCount, 0, 8),
	}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*)::BIGINT FROM skim.raw_records),
	(SELECT COUNT(*)::BIGINT FROM skim.structured_records),
	(SELECT COUNT(*)::BIGINT FROM skim.dedup_events),
	(SELECT COUNT(*)::BIGINT FROM skim.ingest_runs WHERE status = 'running'),
	(SELECT MAX(created_at) FROM skim.raw_records)
`
	if err := p.QueryRow(ctx, totalsQuery).Scan(
		&stats.RawRecords,
		&stats.StructuredRecords,
		&stats.DedupEvents,
		&stats.RunningRuns,
		&stats.LastRecordAt,
	); err != nil {
		return nil, fmt.Errorf("query corpus totals: %w", err)
	}

	const sourcesQuery = `
WITH raw_counts AS (
	SELECT r.source, COUNT(*)::BIGINT AS raw_records
	FROM skim.raw_records r
	GROUP BY r.source
),
structured_counts AS (
	SELECT s.source, COUNT(*)::BIGINT AS structured_records
	FROM skim.structured_records s
	GROUP BY s.source
)
SELECT
	COALESCE(r.source, s.source) AS source,
	COALESCE(r.raw_records, 0),
	COALESCE(s.structured_records, 0)
FROM raw_counts r
FULL OUTER JOIN structured_counts s ON s.source = r.source
ORDER BY 1
`
	rows, err := p.Query(ctx, sourcesQuery)
	if err != nil {
		return nil, fmt.Errorf("query per-source counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row SourceCount
		if err := rows.Scan(&row.Source, &row.RawRecords, &row.Structured); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		stats.Sources = append(stats.Sources, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source counts: %w", err)
	}

	const decisionsQuery = `
SELECT decision, COUNT(*)::BIGINT
FROM skim.dedup_events
GROUP BY decision
`
	decisionRows, err := p.Query(ctx, decisionsQuery)
	if err != nil {
		return nil, fmt.Errorf("query dedup decisions: %w", err)
	}
	defer decisionRows.Close()

	for decisionRows.Next() {
		var decision string
		var count int64
		if err := decisionRows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("scan dedup decision: %w", err)
		}
		stats.Decisions[decision] = count
	}
	if err := decisionRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup decisions: %w", err)
	}

	return stats, nil
}

// RecordListOptions controls record listing queries.
type RecordListOptions struct {
	Source string
	Type   string
	From   time.Time
	To     time.Time
	Limit  int
}

// RecordListItem is used by the records CLI command and API.
type RecordListItem struct {
	StructuredRecordID   int64      `json:"structured_record_id"`
	StructuredRecordUUID string     `json:"structured_record_uuid"`
	RawRef               int64      `json:"raw_ref"`
	Type                 string     `json:"type"`
	Source               string     `json:"source"`
	ExternalID           *string    `json:"external_id,omitempty"`
	Title                string     `json:"title"`
	SourceURL            *string    `json:"source_url,omitempty"`
	PublishedAt          *time.Time `json:"published_at,omitempty"`
	Language             string     `json:"language"`
	CreatedAt            time.Time  `json:"created_at"`
}

// ListStructuredRecords lists structured records in a UTC created_at window.
func (p *Pool) ListStructuredRecords(ctx context.Context, opts RecordListOptions) ([]RecordListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to")
	}

	const q = `
SELECT
	s.structured_record_id,
	s.structured_record_uuid::text,
	s.raw_ref,
	s.type,
	s.source,
	s.external_id,
	s.title,
	s.source_url,
	s.published_at,
	s.language,
	s.created_at
FROM skim.structured_records s
WHERE s.created_at >= $1
  AND s.created_at < $2
  AND ($3 = '' OR s.source = $3)
  AND ($4 = '' OR s.type = $4)
ORDER BY s.created_at DESC, s.structured_record_id DESC
LIMIT $5
`
	rows, err := p.Query(ctx, q, from, to, opts.Source, opts.Type, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("query structured records: %w", err)
	}
	defer rows.Close()

	items := make([]RecordListItem, 0, opts.Limit)
	for rows.Next() {
		var row RecordListItem
		if err := rows.Scan(
			&row.StructuredRecordID,
			&row.StructuredRecordUUID,
			&row.RawRef,
			&row.Type,
			&row.Source,
			&row.ExternalID,
			&row.Title,
			&row.SourceURL,
			&row.PublishedAt,
			&row.Language,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan structured record row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate structured record rows: %w", err)
	}

	return items, nil
}
