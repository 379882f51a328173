// Package slug derives URL-safe identifiers for series and their
// generated occurrences.
package slug

import (
	"math/rand"
	"strings"
	"time"

	gslug "github.com/gosimple/slug"
)

const (
	// MaxBaseLength caps the sanitized title part of a series slug.
	MaxBaseLength = 48

	// InitialSuffixLength is the random suffix length for the first
	// insert attempt. Collision retries use a strictly longer suffix.
	InitialSuffixLength = 4

	suffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Base sanitizes a title into a slug base: lowercased, diacritics
// stripped, collapsed to [a-z0-9-], length-capped.
func Base(title string) string {
	s := gslug.Make(title)
	if len(s) > MaxBaseLength {
		s = strings.TrimRight(s[:MaxBaseLength], "-")
	}
	if s == "" {
		s = "series"
	}
	return s
}

// WithSuffix appends a random suffix of n characters drawn from rnd.
func WithSuffix(base string, rnd *rand.Rand, n int) string {
	if n <= 0 {
		n = InitialSuffixLength
	}
	var b strings.Builder
	b.Grow(len(base) + 1 + n)
	b.WriteString(base)
	b.WriteByte('-')
	for i := 0; i < n; i++ {
		b.WriteByte(suffixCharset[rnd.Intn(len(suffixCharset))])
	}
	return b.String()
}

// ForOccurrence derives the deterministic per-instance slug from the
// series slug and the occurrence's local date. No randomness: the
// (series, date) uniqueness invariant precludes collisions.
func ForOccurrence(seriesSlug string, date time.Time) string {
	return seriesSlug + "-" + date.Format("20060102")
}
