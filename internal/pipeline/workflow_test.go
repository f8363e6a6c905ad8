package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

func TestProfileFor(t *testing.T) {
	for _, w := range Workflows {
		p, err := ProfileFor(w)
		require.NoError(t, err, w)
		assert.Equal(t, w, p.Workflow)
		assert.NotEmpty(t, p.OutputPrefix)
	}

	_, err := ProfileFor("snowpack")
	assert.Error(t, err)
}

func TestProfile_Prefix(t *testing.T) {
	model, _ := ProfileFor(PrecipModel)
	flow, _ := ProfileFor(FlowObserved)

	assert.Equal(t, "template_multi_station_precip_mm_arome", model.Prefix("arome"))
	assert.Equal(t, "template_multi_station_flow_m3s_observed", flow.Prefix("arome"))
}

func TestVolumeColumns(t *testing.T) {
	keep, warnings, err := volumeColumns([]string{"Wahda volume", "Wahda taux", "Wahda %", "Wahda cote"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Wahda volume": true}, keep)
	assert.Equal(t, []string{
		"Rate/fill columns ignored for now: Wahda taux, Wahda %",
		"Non-volume columns ignored: Wahda cote",
	}, warnings)
}

func TestVolumeColumns_NoneLeft(t *testing.T) {
	_, _, err := volumeColumns([]string{"Taux de remplissage", "Cote"})
	assert.ErrorIs(t, err, domain.ErrNoRecords)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
flow_observed:
  brg de garde debit: Bge Garde de Sebou
volume_observed: {}
`), 0o600))

	table, ok, err := LoadOverrides(path, FlowObserved)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"brg de garde debit": "Bge Garde de Sebou"}, table)

	_, ok, err = LoadOverrides(path, PrecipModel)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadOverrides_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flow_observed: [1, 2"), 0o600))

	_, _, err := LoadOverrides(path, FlowObserved)
	assert.Error(t, err)

	_, _, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"), FlowObserved)
	assert.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	tpl := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, os.WriteFile(tpl, nil, 0o600))
	base := Options{Workflow: FlowObserved, Template: tpl, OutputDir: "out"}

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"valid", func(*Options) {}, false},
		{"unknown workflow", func(o *Options) { o.Workflow = "snow" }, true},
		{"model required", func(o *Options) { o.Workflow = PrecipModel }, true},
		{"model with path separator", func(o *Options) { o.Workflow = PrecipModel; o.Model = "a/b" }, true},
		{"model ok", func(o *Options) { o.Workflow = PrecipModel; o.Model = "arome" }, false},
		{"bad aggregation", func(o *Options) { o.Agg = "mode" }, true},
		{"cutoff above one", func(o *Options) { o.Cutoff = 1.5 }, true},
		{"missing outdir", func(o *Options) { o.OutputDir = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_Validate_MissingTemplate(t *testing.T) {
	o := Options{Workflow: FlowObserved, Template: filepath.Join(t.TempDir(), "none.xlsx"), OutputDir: "out"}
	assert.ErrorIs(t, o.Validate(), ErrMissingFile)
}

func TestOrderFiles(t *testing.T) {
	files := []string{
		"out/flow_20240502T000000Z_b.xlsx",
		"out/flow_20240501T000000Z_a.xlsx",
		"out/undated.xlsx",
		"out/flow_20240501T000000Z_c.xlsx",
	}

	assert.Equal(t, files, orderFiles(files, OrderGiven))
	assert.Equal(t, []string{
		"out/undated.xlsx",
		"out/flow_20240501T000000Z_a.xlsx",
		"out/flow_20240501T000000Z_c.xlsx",
		"out/flow_20240502T000000Z_b.xlsx",
	}, orderFiles(files, OrderRunID))
}

func TestResult_ExitCode(t *testing.T) {
	assert.Equal(t, 0, (&Result{}).ExitCode())
	assert.Equal(t, 2, (&Result{Err: checkExists("input", filepath.Join(t.TempDir(), "x"))}).ExitCode())
	assert.Equal(t, 1, (&Result{Err: domain.ErrStructural}).ExitCode())
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "D_bits_Sebou_2024", fileStem("/data/Débits Sebou 2024.xls"))
	assert.Equal(t, "flow", fileStem("flow.csv"))
}
