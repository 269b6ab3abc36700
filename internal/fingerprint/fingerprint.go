// Package fingerprint provides the pure content-identity primitives used by
// the duplicate classifier: URL normalization keys, title similarity scores,
// 64-bit SimHash content fingerprints, and author+date composite keys.
// Everything here is deterministic and free of I/O.
package fingerprint

import (
	"hash/fnv"
	"math/bits"
	"net/url"
	"sort"
	"strings"
	"unicode"
)

const (
	// DefaultTitleThreshold is the general-purpose title similarity cutoff.
	DefaultTitleThreshold = 0.85

	// DefaultHammingThreshold is the general-purpose SimHash distance cutoff.
	DefaultHammingThreshold = 3

	maxKeyAuthors = 3
	minTokenLen   = 3
)

// NormalizeURL reduces a URL to a comparison key: lower-cased scheme, host
// and path, query string and fragment stripped, a single trailing slash
// removed. Invalid or schemeless input yields an empty key.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" {
		defaultPort := (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
		if !defaultPort {
			host = host + ":" + port
		}
	}

	path := strings.ToLower(parsed.EscapedPath())
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	return scheme + "://" + host + path
}

// TitleSimilarity scores two titles in [0, 1] using case-insensitive
// Levenshtein distance normalized by the longer title's rune length.
// Two empty titles are defined as identical. The score is symmetric.
func TitleSimilarity(a, b string) float64 {
	left := []rune(strings.ToLower(strings.TrimSpace(a)))
	right := []rune(strings.ToLower(strings.TrimSpace(b)))

	longest := len(left)
	if len(right) > longest {
		longest = len(right)
	}
	if longest == 0 {
		return 1
	}

	distance := levenshtein(left, right)
	return 1 - float64(distance)/float64(longest)
}

// AreSimilar reports whether two titles meet the similarity threshold.
func AreSimilar(a, b string, threshold float64) bool {
	return TitleSimilarity(a, b) >= threshold
}

// ContentFingerprint computes a 64-bit SimHash over lower-cased tokens longer
// than two characters. Similar texts produce fingerprints with small Hamming
// distance. Empty or token-free text yields the all-zero fingerprint.
func ContentFingerprint(text string) uint64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var bitWeights [64]int
	for _, token := range tokens {
		h := hashToken64(token)
		for bit := 0; bit < 64; bit++ {
			if h&(uint64(1)<<bit) != 0 {
				bitWeights[bit]++
			} else {
				bitWeights[bit]--
			}
		}
	}

	var result uint64
	for bit := 0; bit < 64; bit++ {
		if bitWeights[bit] > 0 {
			result |= uint64(1) << bit
		}
	}
	return result
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// ContentsSimilar reports whether two fingerprints are within the Hamming
// distance threshold.
func ContentsSimilar(a, b uint64, threshold int) bool {
	return HammingDistance(a, b) <= threshold
}

// AuthorTimeKey derives a composite key from up to the first three authors
// (case-folded, trimmed, sorted) and the ISO calendar date. The second return
// is false when no usable author names exist; a missing key must be treated
// as non-comparable, never as equal to another missing key.
func AuthorTimeKey(authors []string, date string) (uint64, bool) {
	names := make([]string, 0, maxKeyAuthors)
	for _, author := range authors {
		name := strings.ToLower(strings.TrimSpace(author))
		if name == "" {
			continue
		}
		names = append(names, name)
		if len(names) == maxKeyAuthors {
			break
		}
	}
	if len(names) == 0 {
		return 0, false
	}

	sort.Strings(names)

	day := strings.TrimSpace(date)
	if len(day) > 10 {
		day = day[:10]
	}

	hasher := fnv.New64a()
	for _, name := range names {
		_, _ = hasher.Write([]byte(name))
		_, _ = hasher.Write([]byte{0})
	}
	_, _ = hasher.Write([]byte(day))
	return hasher.Sum64(), true
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		previous[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = min3(
				previous[j]+1,
				current[j-1]+1,
				previous[j-1]+cost,
			)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

func tokenize(text string) []string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return nil
	}

	parts := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) < minTokenLen {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

func hashToken64(token string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(token))
	return hasher.Sum64()
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
