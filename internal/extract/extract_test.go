package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCleanTextCollapsesWhitespaceAndPreservesParagraphs(t *testing.T) {
	input := "  First   paragraph \n\n Second\tparagraph \r\n\r\nThird line "
	got := CleanText(input)
	want := "First paragraph\n\nSecond paragraph\n\nThird line"
	if got != want {
		t.Fatalf("CleanText mismatch\nwant: %q\ngot:  %q", want, got)
	}
}

func TestTruncateText(t *testing.T) {
	input := "abcdefghijklmnopqrstuvwxyz"

	got, truncated := TruncateText(input, 10)
	if !truncated {
		t.Fatalf("expected truncated=true")
	}
	if got != "abcdefghi…" {
		t.Fatalf("unexpected truncated text: %q", got)
	}

	full, wasTruncated := TruncateText("short", 10)
	if wasTruncated {
		t.Fatalf("expected truncated=false for short text")
	}
	if full != "short" {
		t.Fatalf("unexpected short text: %q", full)
	}
}

func TestFetchCandidatePlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Plain body first line\nand a second line"))
	}))
	defer server.Close()

	item, err := FetchCandidate(context.Background(), server.URL, "Given Title", FetchOptions{})
	if err != nil {
		t.Fatalf("FetchCandidate failed: %v", err)
	}
	if item.Source != "web" {
		t.Fatalf("expected source=web, got %q", item.Source)
	}
	if item.Title != "Given Title" {
		t.Fatalf("expected supplied title to win, got %q", item.Title)
	}
	if item.ContentText == "" {
		t.Fatalf("expected extracted content text")
	}
}

func TestFetchCandidateDerivesTitleFromText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Derived headline here\nbody continues"))
	}))
	defer server.Close()

	item, err := FetchCandidate(context.Background(), server.URL, "", FetchOptions{})
	if err != nil {
		t.Fatalf("FetchCandidate failed: %v", err)
	}
	if item.Title != "Derived headline here" {
		t.Fatalf("unexpected derived title: %q", item.Title)
	}
}

func TestFetchTextRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := FetchText(context.Background(), server.URL, ""); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestFetchTextRequiresURL(t *testing.T) {
	if _, err := FetchText(context.Background(), "   ", "title"); err == nil {
		t.Fatalf("expected error for blank URL")
	}
}
