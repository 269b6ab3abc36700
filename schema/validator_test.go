package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateCandidatePayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"arxiv",
		"external_id":"2403.01234",
		"url":"https://arxiv.org/abs/2403.01234",
		"title":"Sparse Attention at Scale",
		"authors":["Alice Zhang","Bob Osei"],
		"published_at":"2026-03-04T09:00:00Z",
		"content_text":"We study sparse attention mechanisms.",
		"source_metadata":{"category":"cs.LG"}
	}`)

	item, err := ValidateCandidatePayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if item.Source != "arxiv" {
		t.Fatalf("expected source=arxiv, got %q", item.Source)
	}
	if item.ExternalID == nil || *item.ExternalID != "2403.01234" {
		t.Fatalf("expected external_id=2403.01234, got %v", item.ExternalID)
	}
	if item.PayloadVersion != "v1" {
		t.Fatalf("expected payload_version=v1, got %q", item.PayloadVersion)
	}
}

func TestValidateCandidatePayload_MissingSource(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"title":"Missing source"
	}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for missing source")
	}
}

func TestValidateCandidatePayload_WhitespaceTitle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"title":"   "
	}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only title")
	}
	if !strings.Contains(err.Error(), "title must not be empty") {
		t.Fatalf("expected title semantic error, got: %v", err)
	}
}

func TestValidateCandidatePayload_WrongVersion(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v2",
		"source":"rss",
		"title":"Future payload"
	}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for payload_version v2")
	}
}

func TestValidateCandidatePayload_InvalidPublishedAt(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"title":"Bad date",
		"published_at":"not-a-timestamp"
	}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for invalid published_at")
	}
}

func TestValidateCandidatePayload_InvalidURL(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"web",
		"title":"Bad URL",
		"url":"not a url"
	}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for malformed url")
	}
}

func TestValidateCandidatePayload_EmptyAuthorRejected(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"arxiv",
		"title":"Empty author entry",
		"authors":["Alice Zhang","  "]
	}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for blank author entry")
	}
}

func TestValidateCandidatePayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","source":"rss","title":"ok"} {"extra":true}`)

	_, err := ValidateCandidatePayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for trailing JSON content")
	}
}
