package domain_test

import (
	"testing"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Débit (m3/s)", "debit"},
		{"  ZRARDA_Débit (m3/s) ", "zrarda debit"},
		{"Bge Garde de Sebou", "bge garde de sebou"},
		{"Brg  Allal El Fassi Volume (hm3)", "brg allal el fassi volume"},
		{"Pluie 1hr (mm)", "pluie 1hr"},
		{"Aïn-Sébou/Amont", "ain sebou amont"},
		{"Volume (Mm 3)", "volume"},
		{"", ""},
		{"___", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Débit (m3/s)",
		"PONT_EL-MALHA   débit",
		"Ouljet Soltane (hm 3)",
		"Taux de remplissage %",
		"Ængland ﬁle",
	}
	for _, in := range inputs {
		once := domain.Normalize(in)
		assert.Equal(t, once, domain.Normalize(once), "input %q", in)
	}
}

func TestNormalize_UnitSuffixMatchesBareWord(t *testing.T) {
	assert.Equal(t, domain.Normalize("debit"), domain.Normalize("Débit (m3/s)"))
}
