// Package cache provides the fingerprint-keyed answer cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Fingerprint returns the cache key for a question: the hex SHA-256 digest of
// its normalized text. Two questions differing only in case, punctuation, or
// whitespace share a fingerprint.
func Fingerprint(question string) string {
	sum := sha256.Sum256([]byte(Normalize(question)))
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases the question, strips punctuation, and collapses runs
// of whitespace to single spaces.
func Normalize(question string) string {
	var b strings.Builder
	b.Grow(len(question))
	space := false
	for _, r := range strings.ToLower(question) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
