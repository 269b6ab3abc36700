package fingerprint

import (
	"strings"
	"testing"
)

func TestNormalizeURL_StripsQueryFragmentAndCase(t *testing.T) {
	t.Parallel()

	key := NormalizeURL("HTTPS://Example.COM/News/Path/?utm_source=abc&ref=x#section")
	if key != "https://example.com/news/path" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://example.com/a/",
		"http://ARXIV.org/abs/2311.12345v1",
		"https://example.com:443/x?q=1",
		"https://example.com/",
	}
	for _, raw := range urls {
		once := NormalizeURL(raw)
		twice := NormalizeURL(once)
		if once != twice {
			t.Fatalf("normalization not idempotent for %q: %q vs %q", raw, once, twice)
		}
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	t.Parallel()

	if key := NormalizeURL("not a url"); key != "" {
		t.Fatalf("expected empty key for invalid URL, got %q", key)
	}
	if key := NormalizeURL("   "); key != "" {
		t.Fatalf("expected empty key for blank input, got %q", key)
	}
}

func TestTitleSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	a := "Introduction to Machine Learning"
	b := "Introduction to Machine Learning in Python"
	if TitleSimilarity(a, b) != TitleSimilarity(b, a) {
		t.Fatalf("similarity is not symmetric")
	}
}

func TestTitleSimilarity_Bounds(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"", ""},
		{"x", ""},
		{"completely different", "nothing alike at all zzz"},
		{"same title", "same title"},
		{"Same Title", "same title"},
	}
	for _, pair := range pairs {
		score := TitleSimilarity(pair[0], pair[1])
		if score < 0 || score > 1 {
			t.Fatalf("score out of bounds for %q vs %q: %f", pair[0], pair[1], score)
		}
	}

	if score := TitleSimilarity("", ""); score != 1 {
		t.Fatalf("two empty titles must score 1.0, got %f", score)
	}
	if score := TitleSimilarity("identical", "IDENTICAL"); score != 1 {
		t.Fatalf("case-insensitive identical titles must score 1.0, got %f", score)
	}
}

func TestTitleSimilarity_LooseButNotStrictMatch(t *testing.T) {
	t.Parallel()

	a := "Introduction to Machine Learning"
	b := "Introduction to Machine Learning in Python"
	score := TitleSimilarity(a, b)
	if score <= 0.7 {
		t.Fatalf("expected loose similarity above 0.7, got %f", score)
	}
	if AreSimilar(a, b, 0.9) {
		t.Fatalf("expected pair to stay below the strict 0.9 threshold, score %f", score)
	}
}

func TestContentFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)
	unicodeText := "Länderübergreifende Forschung über maschinelles Lernen 日本語のテキスト"

	for _, text := range []string{long, unicodeText, "short words only"} {
		first := ContentFingerprint(text)
		second := ContentFingerprint(text)
		if first != second {
			t.Fatalf("fingerprint not deterministic for %q", text[:20])
		}
	}

	if len(long) < 1000 {
		t.Fatalf("long input should exceed 1000 chars, got %d", len(long))
	}
}

func TestContentFingerprint_EmptyText(t *testing.T) {
	t.Parallel()

	if fp := ContentFingerprint(""); fp != 0 {
		t.Fatalf("empty text must fingerprint to zero, got %d", fp)
	}
	if fp := ContentFingerprint("a an of"); fp != 0 {
		t.Fatalf("text with no tokens longer than two chars must fingerprint to zero, got %d", fp)
	}
}

func TestContentFingerprint_SimilarTextsAreClose(t *testing.T) {
	t.Parallel()

	base := "researchers announce breakthrough in protein folding prediction accuracy using deep networks"
	variant := "researchers announce breakthrough in protein folding prediction accuracy using neural networks"
	unrelated := "quarterly earnings report shows declining revenue across retail segments worldwide"

	near := HammingDistance(ContentFingerprint(base), ContentFingerprint(variant))
	far := HammingDistance(ContentFingerprint(base), ContentFingerprint(unrelated))
	if near >= far {
		t.Fatalf("expected similar texts closer than unrelated texts: near=%d far=%d", near, far)
	}
}

func TestHammingDistance_Bounds(t *testing.T) {
	t.Parallel()

	if d := HammingDistance(0xdeadbeef, 0xdeadbeef); d != 0 {
		t.Fatalf("equal fingerprints must have distance 0, got %d", d)
	}
	if d := HammingDistance(0, ^uint64(0)); d != 64 {
		t.Fatalf("complement fingerprints must have distance 64, got %d", d)
	}
}

func TestContentsSimilar(t *testing.T) {
	t.Parallel()

	if !ContentsSimilar(0b1011, 0b1001, DefaultHammingThreshold) {
		t.Fatalf("distance 1 should be within default threshold")
	}
	if ContentsSimilar(0, ^uint64(0), DefaultHammingThreshold) {
		t.Fatalf("distance 64 should not be within default threshold")
	}
}

func TestAuthorTimeKey(t *testing.T) {
	t.Parallel()

	key1, ok := AuthorTimeKey([]string{" Alice ", "BOB", "carol", "dan"}, "2026-02-14T10:00:00Z")
	if !ok {
		t.Fatalf("expected a key for a populated author list")
	}
	key2, ok := AuthorTimeKey([]string{"bob", "Carol", "alice"}, "2026-02-14")
	if !ok {
		t.Fatalf("expected a key for reordered authors")
	}
	if key1 != key2 {
		t.Fatalf("first three authors sorted with the same calendar date must produce equal keys")
	}

	key3, ok := AuthorTimeKey([]string{"alice", "bob", "carol"}, "2026-02-15")
	if !ok {
		t.Fatalf("expected a key")
	}
	if key3 == key1 {
		t.Fatalf("different calendar dates must produce different keys")
	}
}

func TestAuthorTimeKey_NoAuthorsIsNonComparable(t *testing.T) {
	t.Parallel()

	if _, ok := AuthorTimeKey(nil, "2026-02-14"); ok {
		t.Fatalf("empty author list must yield no key")
	}
	if _, ok := AuthorTimeKey([]string{"  ", ""}, "2026-02-14"); ok {
		t.Fatalf("blank author names must yield no key")
	}
}
