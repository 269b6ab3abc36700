package db

import (
	"context"
	"fmt"
	"time"
)

// Audit queries. All read-only except RepairUnlinked, which only ever fills
// a NULL structured_ref and never overwrites a disagreeing value.

func (st *Store) CountRawRecords(ctx context.Context) (int64, int64, error) {
	const q = `
SELECT
	COUNT(*)::BIGINT,
	COUNT(*) FILTER (WHERE structured_ref IS NULL)::BIGINT
FROM skim.raw_records
`
	var total, unlinked int64
	if err := st.pool.QueryRow(ctx, q).Scan(&total, &unlinked); err != nil {
		return 0, 0, fmt.Errorf("count raw records: %w", err)
	}
	return total, unlinked, nil
}

func (st *Store) CountStructuredRecords(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*)::BIGINT FROM skim.structured_records`
	var total int64
	if err := st.pool.QueryRow(ctx, q).Scan(&total); err != nil {
		return 0, fmt.Errorf("count structured records: %w", err)
	}
	return total, nil
}

func (st *Store) CountStructuredMissingRaw(ctx context.Context) (int64, error) {
	const q = `
SELECT COUNT(*)::BIGINT
FROM skim.structured_records s
LEFT JOIN skim.raw_records r ON r.raw_record_id = s.raw_ref
WHERE r.raw_record_id IS NULL
`
	var count int64
	if err := st.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count structured missing raw: %w", err)
	}
	return count, nil
}

func (st *Store) CountBrokenLinks(ctx context.Context) (int64, error) {
	const q = `
SELECT COUNT(*)::BIGINT
FROM skim.structured_records s
JOIN skim.raw_records r ON r.raw_record_id = s.raw_ref
WHERE r.structured_ref IS NOT NULL
  AND r.structured_ref <> s.structured_record_id
`
	var count int64
	if err := st.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count broken links: %w", err)
	}
	return count, nil
}

func (st *Store) CountOrphanedRawRecords(ctx context.Context) (int64, error) {
	const q = `
SELECT COUNT(*)::BIGINT
FROM skim.raw_records r
LEFT JOIN skim.structured_records s ON s.structured_record_id = r.structured_ref
WHERE r.structured_ref IS NOT NULL
  AND s.structured_record_id IS NULL
`
	var count int64
	if err := st.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orphaned raw records: %w", err)
	}
	return count, nil
}

func (st *Store) RepairUnlinked(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE skim.raw_records r
SET structured_ref = s.structured_record_id, updated_at = $1
FROM skim.structured_records s
WHERE s.raw_ref = r.raw_record_id
  AND r.structured_ref IS NULL
`
	tag, err := st.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("repair unlinked raw records: %w", err)
	}
	return tag.RowsAffected(), nil
}
