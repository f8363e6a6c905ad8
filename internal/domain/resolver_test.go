package domain_test

import (
	"testing"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowCatalog() *domain.Catalog {
	return domain.NewCatalog([]domain.Station{
		{Code: 101, Name: "Zrarda"},
		{Code: 102, Name: "Ain Sebou"},
		{Code: 103, Name: "El Malha"},
	}, flowPatterns, map[string]string{
		"pont sebbou debit": "Ain Sebou",
	})
}

func TestResolver_Exact(t *testing.T) {
	r := domain.NewResolver(flowCatalog(), domain.DefaultCutoff)

	m := r.Resolve("Ain Sebou_Débit (m3/s)")
	require.True(t, m.Mapped())
	assert.Equal(t, 102, *m.StationCode)
	assert.Equal(t, "Ain Sebou", m.StationName)
	assert.Equal(t, domain.MethodExact, m.Method)
	assert.Equal(t, "ain sebou debit", m.MatchedAlias)
}

func TestResolver_OverrideIsExact(t *testing.T) {
	r := domain.NewResolver(flowCatalog(), domain.DefaultCutoff)

	m := r.Resolve("PONT SEBBOU DEBIT")
	require.True(t, m.Mapped())
	assert.Equal(t, 102, *m.StationCode)
	assert.Equal(t, domain.MethodExact, m.Method)
}

func TestResolver_Fuzzy(t *testing.T) {
	r := domain.NewResolver(flowCatalog(), 0.82)

	m := r.Resolve("Zerarda debit")
	require.True(t, m.Mapped())
	assert.Equal(t, 101, *m.StationCode)
	assert.Equal(t, domain.MethodFuzzy, m.Method)
	assert.Equal(t, "zrarda debit", m.MatchedAlias)
	assert.InDelta(t, 0.96, m.Score, 1e-9)
}

func TestResolver_Unmapped(t *testing.T) {
	r := domain.NewResolver(flowCatalog(), 0.82)

	for _, label := range []string{"Oued Inaouene Debit", "", "  ", "Taux %"} {
		m := r.Resolve(label)
		assert.False(t, m.Mapped(), "label %q", label)
		assert.Equal(t, domain.MethodUnmapped, m.Method)
		assert.Equal(t, label, m.Label)
	}
}

func TestResolver_TieGoesToGreatestAlias(t *testing.T) {
	c := domain.NewCatalog([]domain.Station{{Code: 1, Name: "ax"}, {Code: 2, Name: "xb"}}, nil, nil)
	r := domain.NewResolver(c, 0.5)

	m := r.Resolve("ab")
	require.True(t, m.Mapped())
	assert.Equal(t, 2, *m.StationCode)
	assert.Equal(t, "xb", m.MatchedAlias)
	assert.InDelta(t, 0.5, m.Score, 1e-9)
}

func TestResolver_InvalidCutoffFallsBack(t *testing.T) {
	assert.InDelta(t, domain.DefaultCutoff, domain.NewResolver(flowCatalog(), 0).Cutoff(), 1e-12)
	assert.InDelta(t, domain.DefaultCutoff, domain.NewResolver(flowCatalog(), 1.5).Cutoff(), 1e-12)
	assert.InDelta(t, 0.8, domain.NewResolver(flowCatalog(), 0.8).Cutoff(), 1e-12)
}

func TestResolver_Deterministic(t *testing.T) {
	r := domain.NewResolver(flowCatalog(), 0.82)
	first := r.Resolve("El Malhaa debit")
	for range 20 {
		assert.Equal(t, first, r.Resolve("El Malhaa debit"))
	}
}
