// Package cache memoizes ad-interest search results in two tiers: a short-lived
// in-process map for reuse within a batch and a repository-backed store shared
// across runs.
package cache

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key derives the cache key for a (term, country) pair.
// The term is lowercased, trimmed, whitespace-collapsed and stripped of diacritics.
func Key(term, country string) string {
	return NormalizeTerm(term) + "|" + strings.ToLower(strings.TrimSpace(country))
}

// NormalizeTerm folds a search term to its canonical cache form.
func NormalizeTerm(term string) string {
	folded := strings.Join(strings.Fields(strings.ToLower(term)), " ")

	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, folded)
	if err != nil {
		return folded
	}
	return stripped
}
