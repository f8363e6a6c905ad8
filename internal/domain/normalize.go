package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// unitMarkers are stripped before punctuation so that "(m3/s)" does not
	// leave a stray "m3 s" token behind.
	unitMarkers = []string{"(m3/s)", "(mm3)", "(mm 3)", "(hm3)", "(hm 3)", "(mm)"}

	nonAlnumRe = regexp.MustCompile(`[^a-z0-9 ]+`)
	spacesRe   = regexp.MustCompile(`\s+`)
)

// Normalize maps a station label or name onto its comparison key.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = stripDiacritics(s)
	s = strings.ToLower(s)
	for _, u := range unitMarkers {
		s = strings.ReplaceAll(s, u, " ")
	}
	s = strings.ReplaceAll(s, "_", " ")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func stripDiacritics(s string) string {
	// transform.Chain is stateful, so build it per call to stay goroutine-safe.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
