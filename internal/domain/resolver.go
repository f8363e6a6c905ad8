package domain

import (
	"github.com/pmezard/go-difflib/difflib"
)

// DefaultCutoff is the minimum similarity ratio for a fuzzy match.
const DefaultCutoff = 0.82

// LabelResolver maps a raw column label onto a station.
type LabelResolver interface {
	Resolve(label string) ColumnMapping
}

// Resolver matches labels against a Catalog: exact alias first, then the
// closest alias by Ratcliff/Obershelp ratio over characters.
type Resolver struct {
	catalog *Catalog
	cutoff  float64
}

// NewResolver creates a Resolver. A cutoff outside (0, 1] falls back to DefaultCutoff.
func NewResolver(catalog *Catalog, cutoff float64) *Resolver {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = DefaultCutoff
	}
	return &Resolver{catalog: catalog, cutoff: cutoff}
}

// Cutoff returns the effective fuzzy threshold.
func (r *Resolver) Cutoff() float64 {
	return r.cutoff
}

// Resolve is deterministic for a given catalog and cutoff.
func (r *Resolver) Resolve(label string) ColumnMapping {
	m := ColumnMapping{Label: label, Method: MethodUnmapped}
	key := Normalize(label)
	if key == "" {
		return m
	}

	if code, ok := r.catalog.Lookup(key); ok {
		r.fill(&m, code, MethodExact, key, 1)
		return m
	}

	alias, score, ok := r.closest(key)
	if !ok {
		return m
	}
	code, _ := r.catalog.Lookup(alias)
	r.fill(&m, code, MethodFuzzy, alias, score)
	return m
}

// closest returns the best-scoring alias at or above the cutoff. Ties go to the
// lexicographically greatest alias.
func (r *Resolver) closest(key string) (string, float64, bool) {
	matcher := difflib.NewMatcher(nil, chars(key))

	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, alias := range r.catalog.Aliases() {
		matcher.SetSeq1(chars(alias))
		if matcher.RealQuickRatio() < r.cutoff || matcher.QuickRatio() < r.cutoff {
			continue
		}
		score := matcher.Ratio()
		if score < r.cutoff {
			continue
		}
		// Aliases arrive in ascending order, so >= keeps the greatest on ties.
		if !found || score >= bestScore {
			best, bestScore, found = alias, score, true
		}
	}
	return best, bestScore, found
}

func (r *Resolver) fill(m *ColumnMapping, code int, method MappingMethod, alias string, score float64) {
	m.StationCode = &code
	m.StationName, _ = r.catalog.Name(code)
	m.Method = method
	m.MatchedAlias = alias
	m.Score = score
}

func chars(s string) []string {
	rs := []rune(s)
	out := make([]string, len(rs))
	for i, c := range rs {
		out[i] = string(c)
	}
	return out
}
