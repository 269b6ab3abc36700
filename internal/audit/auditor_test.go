package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeAuditStore holds raw/structured link state in memory.
type fakeAuditStore struct {
	raws       map[int64]*int64 // raw id -> structured_ref
	structured map[int64]int64  // structured id -> raw_ref
}

func newFakeAuditStore() *fakeAuditStore {
	return &fakeAuditStore{
		raws:       make(map[int64]*int64),
		structured: make(map[int64]int64),
	}
}

func (s *fakeAuditStore) CountRawRecords(context.Context) (int64, int64, error) {
	var unlinked int64
	for _, ref := range s.raws {
		if ref == nil {
			unlinked++
		}
	}
	return int64(len(s.raws)), unlinked, nil
}

func (s *fakeAuditStore) CountStructuredRecords(context.Context) (int64, error) {
	return int64(len(s.structured)), nil
}

func (s *fakeAuditStore) CountStructuredMissingRaw(context.Context) (int64, error) {
	var count int64
	for _, rawRef := range s.structured {
		if _, ok := s.raws[rawRef]; !ok {
			count++
		}
	}
	return count, nil
}

func (s *fakeAuditStore) CountBrokenLinks(context.Context) (int64, error) {
	var count int64
	for structuredID, rawRef := range s.structured {
		ref, ok := s.raws[rawRef]
		if !ok {
			continue // counted as missing raw
		}
		if ref != nil && *ref != structuredID {
			count++
		}
	}
	return count, nil
}

func (s *fakeAuditStore) CountOrphanedRawRecords(context.Context) (int64, error) {
	var count int64
	for _, ref := range s.raws {
		if ref == nil {
			continue
		}
		if _, ok := s.structured[*ref]; !ok {
			count++
		}
	}
	return count, nil
}

func (s *fakeAuditStore) RepairUnlinked(context.Context, time.Time) (int64, error) {
	var repaired int64
	for structuredID, rawRef := range s.structured {
		ref, ok := s.raws[rawRef]
		if !ok || ref != nil {
			continue
		}
		id := structuredID
		s.raws[rawRef] = &id
		repaired++
	}
	return repaired, nil
}

func (s *fakeAuditStore) addLinkedPair(rawID, structuredID int64) {
	ref := structuredID
	s.raws[rawID] = &ref
	s.structured[structuredID] = rawID
}

func newTestAuditor(store Store) *Auditor {
	return NewAuditor(store, zerolog.Nop())
}

func TestReport_Healthy(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore()
	store.addLinkedPair(1, 10)
	store.addLinkedPair(2, 20)

	report, err := newTestAuditor(store).Report(context.Background())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Health != HealthHealthy {
		t.Fatalf("expected healthy, got %q", report.Health)
	}
	if report.Linkage != 1 {
		t.Fatalf("expected full linkage, got %f", report.Linkage)
	}
	if len(report.Recommendations) != 1 {
		t.Fatalf("expected single no-action recommendation, got %v", report.Recommendations)
	}
}

func TestReport_WarningOnFewUnlinked(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore()
	for i := int64(1); i <= 19; i++ {
		store.addLinkedPair(i, i+100)
	}
	store.raws[20] = nil // one unlinked raw record: 95% linkage

	report, err := newTestAuditor(store).Report(context.Background())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Health != HealthWarning {
		t.Fatalf("expected warning, got %q (linkage %f)", report.Health, report.Linkage)
	}
	if report.UnlinkedRawRecords != 1 {
		t.Fatalf("expected 1 unlinked, got %d", report.UnlinkedRawRecords)
	}
}

func TestReport_CriticalOnLowLinkage(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore()
	store.addLinkedPair(1, 10)
	store.raws[2] = nil
	store.raws[3] = nil

	report, err := newTestAuditor(store).Report(context.Background())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Health != HealthCritical {
		t.Fatalf("expected critical at %.2f linkage, got %q", report.Linkage, report.Health)
	}
}

func TestReport_BrokenAndOrphanedCounts(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore()
	store.addLinkedPair(1, 10)

	// Broken: structured 20 -> raw 2, but raw 2 points at structured 10.
	wrong := int64(10)
	store.raws[2] = &wrong
	store.structured[20] = 2

	// Orphaned: raw 3 points at structured 999 which does not exist.
	missing := int64(999)
	store.raws[3] = &missing

	// Missing raw: structured 30 references raw 4 which does not exist.
	store.structured[30] = 4

	report, err := newTestAuditor(store).Report(context.Background())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.BrokenLinks != 1 {
		t.Fatalf("expected 1 broken link, got %d", report.BrokenLinks)
	}
	if report.OrphanedRawRecords != 1 {
		// raw 2 -> structured 10 exists, so only raw 3 -> 999 is orphaned.
		t.Fatalf("expected 1 orphaned raw record, got %d", report.OrphanedRawRecords)
	}
	if report.StructuredMissingRaw != 1 {
		t.Fatalf("expected 1 structured missing raw, got %d", report.StructuredMissingRaw)
	}
	if report.Health == HealthHealthy {
		t.Fatalf("broken and orphaned references must not report healthy")
	}
}

func TestRepair_FillsOnlyUnlinkedAndIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore()
	// Unlinked but repairable: structured 10 -> raw 1, raw 1 unlinked.
	store.raws[1] = nil
	store.structured[10] = 1
	// Broken disagreement: raw 2 points at 99, structured 20 -> raw 2.
	disagree := int64(99)
	store.raws[2] = &disagree
	store.structured[20] = 2
	store.structured[99] = 7 // unrelated

	auditor := newTestAuditor(store)

	repaired, err := auditor.Repair(context.Background())
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected exactly one repair, got %d", repaired)
	}
	if store.raws[1] == nil || *store.raws[1] != 10 {
		t.Fatalf("unlinked raw record was not repaired")
	}
	if *store.raws[2] != disagree {
		t.Fatalf("repair must never overwrite a disagreeing non-null reference")
	}

	again, err := auditor.Repair(context.Background())
	if err != nil {
		t.Fatalf("second repair failed: %v", err)
	}
	if again != 0 {
		t.Fatalf("repair is not idempotent: second run changed %d rows", again)
	}
}

func TestRepair_ClearsUnlinkedFinding(t *testing.T) {
	t.Parallel()

	store := newFakeAuditStore()
	store.raws[1] = nil
	store.structured[10] = 1

	auditor := newTestAuditor(store)

	before, err := auditor.Report(context.Background())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if before.UnlinkedRawRecords != 1 {
		t.Fatalf("expected the unlinked record to be reported")
	}

	if _, err := auditor.Repair(context.Background()); err != nil {
		t.Fatalf("repair failed: %v", err)
	}

	after, err := auditor.Report(context.Background())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if after.UnlinkedRawRecords != 0 {
		t.Fatalf("repair did not clear the unlinked finding")
	}
	if after.Health != HealthHealthy {
		t.Fatalf("expected healthy after repair, got %q", after.Health)
	}
}
