package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"skim.fyi/skim/internal/audit"
)

type fakeAuditStore struct {
	totalRaw      int64
	unlinked      int64
	structured    int64
	missingRaw    int64
	broken        int64
	orphaned      int64
	repairedCalls int
}

func (s *fakeAuditStore) CountRawRecords(context.Context) (int64, int64, error) {
	return s.totalRaw, s.unlinked, nil
}

func (s *fakeAuditStore) CountStructuredRecords(context.Context) (int64, error) {
	return s.structured, nil
}

func (s *fakeAuditStore) CountStructuredMissingRaw(context.Context) (int64, error) {
	return s.missingRaw, nil
}

func (s *fakeAuditStore) CountBrokenLinks(context.Context) (int64, error) {
	return s.broken, nil
}

func (s *fakeAuditStore) CountOrphanedRawRecords(context.Context) (int64, error) {
	return s.orphaned, nil
}

func (s *fakeAuditStore) RepairUnlinked(context.Context, time.Time) (int64, error) {
	s.repairedCalls++
	repaired := s.unlinked
	s.unlinked = 0
	return repaired, nil
}

func newTestServer(store audit.Store) *Server {
	logger := zerolog.Nop()
	return NewServer(nil, audit.NewAuditor(store, logger), logger, Options{})
}

func invokeHandler(t *testing.T, handler echo.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return envelope
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(&fakeAuditStore{})

	rec := invokeHandler(t, server.handleHealth, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	envelope := decodeEnvelope(t, rec)
	if envelope["status"] != "success" {
		t.Fatalf("expected jsend success, got %v", envelope["status"])
	}
	data, _ := envelope["data"].(map[string]any)
	if data["service"] != "skim" {
		t.Fatalf("expected service=skim, got %v", data["service"])
	}
}

func TestHandleIntegrityReport(t *testing.T) {
	store := &fakeAuditStore{totalRaw: 10, structured: 10}
	server := newTestServer(store)

	rec := invokeHandler(t, server.handleIntegrityReport, http.MethodGet, "/api/v1/integrity/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	envelope := decodeEnvelope(t, rec)
	data, _ := envelope["data"].(map[string]any)
	if data["health"] != string(audit.HealthHealthy) {
		t.Fatalf("expected healthy report, got %v", data["health"])
	}
	if data["total_raw_records"] != float64(10) {
		t.Fatalf("unexpected total_raw_records: %v", data["total_raw_records"])
	}
}

func TestHandleIntegrityRepair(t *testing.T) {
	store := &fakeAuditStore{totalRaw: 10, structured: 10, unlinked: 3}
	server := newTestServer(store)

	rec := invokeHandler(t, server.handleIntegrityRepair, http.MethodPost, "/api/v1/integrity/repair")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.repairedCalls != 1 {
		t.Fatalf("expected one repair call, got %d", store.repairedCalls)
	}

	envelope := decodeEnvelope(t, rec)
	data, _ := envelope["data"].(map[string]any)
	if data["repaired_links"] != float64(3) {
		t.Fatalf("expected 3 repaired links, got %v", data["repaired_links"])
	}
	report, _ := data["report"].(map[string]any)
	if report["health"] != string(audit.HealthHealthy) {
		t.Fatalf("expected healthy report after repair, got %v", report["health"])
	}
}

func TestParsePositiveInt(t *testing.T) {
	if got, err := parsePositiveInt("", 25, 1, 200); err != nil || got != 25 {
		t.Fatalf("expected default 25, got %d err=%v", got, err)
	}
	if got, err := parsePositiveInt("42", 25, 1, 200); err != nil || got != 42 {
		t.Fatalf("expected 42, got %d err=%v", got, err)
	}
	if _, err := parsePositiveInt("0", 25, 1, 200); err == nil {
		t.Fatalf("expected range error for 0")
	}
	if _, err := parsePositiveInt("abc", 25, 1, 200); err == nil {
		t.Fatalf("expected parse error for abc")
	}
}

func TestParseTimeFilter(t *testing.T) {
	if ts, err := parseTimeFilter("", false); err != nil || ts != nil {
		t.Fatalf("expected nil for empty filter, got %v err=%v", ts, err)
	}

	ts, err := parseTimeFilter("2026-03-04", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Hour() != 0 {
		t.Fatalf("expected start of day, got %v", ts)
	}

	end, err := parseTimeFilter("2026-03-04", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !end.After(*ts) {
		t.Fatalf("expected end of day after start of day")
	}

	if _, err := parseTimeFilter("not-a-date", false); err == nil {
		t.Fatalf("expected error for invalid input")
	}
}
