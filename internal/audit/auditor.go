// Package audit scans both record stores for cross-reference inconsistencies
// and produces a remediation report. Findings are reported, never
// auto-applied, except for the narrow repair path that fills a missing
// structured_ref from an existing back-reference.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"skim.fyi/skim/internal/globaltime"
)

const (
	warningLinkageFloor = 0.9
	warningBrokenCeil   = 5
)

// Health is the overall linkage health tier.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Report is the structured integrity document exposed to operators.
type Report struct {
	TotalRawRecords        int64      `json:"total_raw_records"`
	TotalStructuredRecords int64      `json:"total_structured_records"`
	UnlinkedRawRecords     int64      `json:"unlinked_raw_records"`
	StructuredMissingRaw   int64      `json:"structured_missing_raw"`
	BrokenLinks            int64      `json:"broken_links"`
	OrphanedRawRecords     int64      `json:"orphaned_raw_records"`
	Linkage                float64    `json:"linkage"`
	Health                 Health     `json:"health"`
	Recommendations        []string   `json:"recommendations"`
	GeneratedAt            time.Time  `json:"generated_at"`
}

// Store is the read surface the auditor consumes, plus the single narrow
// write the repair path is allowed: filling a null structured_ref from a
// structured record's back-reference.
type Store interface {
	CountRawRecords(ctx context.Context) (total, unlinked int64, err error)
	CountStructuredRecords(ctx context.Context) (int64, error)
	// CountStructuredMissingRaw counts structured records whose raw_ref is
	// null/zero or resolves to no raw record.
	CountStructuredMissingRaw(ctx context.Context) (int64, error)
	// CountBrokenLinks counts structured records whose raw record's
	// structured_ref is set but does not point back.
	CountBrokenLinks(ctx context.Context) (int64, error)
	// CountOrphanedRawRecords counts raw records whose structured_ref points
	// to a non-existent structured record.
	CountOrphanedRawRecords(ctx context.Context) (int64, error)
	// RepairUnlinked sets structured_ref from raw_ref for unlinked raw
	// records only; it must never overwrite a non-null reference.
	RepairUnlinked(ctx context.Context, now time.Time) (int64, error)
}

type Auditor struct {
	store  Store
	logger zerolog.Logger
}

func NewAuditor(store Store, logger zerolog.Logger) *Auditor {
	return &Auditor{
		store:  store,
		logger: logger,
	}
}

// Report runs a read-only pass over both stores.
func (a *Auditor) Report(ctx context.Context) (Report, error) {
	if a == nil || a.store == nil {
		return Report{}, fmt.Errorf("auditor is not initialized")
	}

	totalRaw, unlinked, err := a.store.CountRawRecords(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count raw records: %w", err)
	}
	totalStructured, err := a.store.CountStructuredRecords(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count structured records: %w", err)
	}
	missingRaw, err := a.store.CountStructuredMissingRaw(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count structured missing raw: %w", err)
	}
	broken, err := a.store.CountBrokenLinks(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count broken links: %w", err)
	}
	orphaned, err := a.store.CountOrphanedRawRecords(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count orphaned raw records: %w", err)
	}

	report := Report{
		TotalRawRecords:        totalRaw,
		TotalStructuredRecords: totalStructured,
		UnlinkedRawRecords:     unlinked,
		StructuredMissingRaw:   missingRaw,
		BrokenLinks:            broken,
		OrphanedRawRecords:     orphaned,
		Linkage:                linkage(totalRaw, unlinked),
		GeneratedAt:            globaltime.UTC(),
	}
	report.Health = classifyHealth(report)
	report.Recommendations = recommend(report)

	a.logger.Info().
		Int64("total_raw", totalRaw).
		Int64("unlinked", unlinked).
		Int64("broken", broken).
		Int64("orphaned", orphaned).
		Str("health", string(report.Health)).
		Msg("integrity audit completed")

	return report, nil
}

// Repair fills missing structured_ref values from structured back-references.
// Idempotent: a second run with no intervening writes changes nothing.
func (a *Auditor) Repair(ctx context.Context) (int64, error) {
	if a == nil || a.store == nil {
		return 0, fmt.Errorf("auditor is not initialized")
	}

	repaired, err := a.store.RepairUnlinked(ctx, globaltime.UTC())
	if err != nil {
		return 0, fmt.Errorf("repair unlinked raw records: %w", err)
	}
	if repaired > 0 {
		a.logger.Info().Int64("repaired", repaired).Msg("filled missing structured references")
	}
	return repaired, nil
}

func linkage(totalRaw, unlinked int64) float64 {
	if totalRaw == 0 {
		return 1
	}
	return float64(totalRaw-unlinked) / float64(totalRaw)
}

func classifyHealth(r Report) Health {
	clean := r.UnlinkedRawRecords == 0 &&
		r.StructuredMissingRaw == 0 &&
		r.BrokenLinks == 0 &&
		r.OrphanedRawRecords == 0
	if clean {
		return HealthHealthy
	}
	if r.Linkage >= warningLinkageFloor && r.BrokenLinks < warningBrokenCeil {
		return HealthWarning
	}
	return HealthCritical
}

func recommend(r Report) []string {
	recommendations := make([]string, 0, 4)
	if r.UnlinkedRawRecords > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d raw records are unlinked; run repair to fill references from existing structured records",
			r.UnlinkedRawRecords))
	}
	if r.BrokenLinks > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d structured records have a raw record whose back-reference disagrees; these require manual resolution and are never auto-repaired",
			r.BrokenLinks))
	}
	if r.OrphanedRawRecords > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d raw records reference a structured record that no longer exists; inspect recent deletions",
			r.OrphanedRawRecords))
	}
	if r.StructuredMissingRaw > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d structured records reference a missing raw record; the raw store may have lost writes",
			r.StructuredMissingRaw))
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations, "all cross-references verified; no action required")
	}
	return recommendations
}
