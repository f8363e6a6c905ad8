package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// Workflow names one of the supported preparation flows.
type Workflow string

const (
	PrecipModel    Workflow = "precip_model"
	PrecipObserved Workflow = "precip_observed"
	FlowObserved   Workflow = "flow_observed"
	VolumeObserved Workflow = "volume_observed"
)

// Workflows lists every workflow in display order.
var Workflows = []Workflow{PrecipModel, PrecipObserved, FlowObserved, VolumeObserved}

// Profile is the immutable per-workflow configuration.
type Profile struct {
	Workflow     Workflow
	OutputPrefix string
	// Quantity names the measured variable in warnings.
	Quantity    string
	Patterns    []domain.AliasPattern
	Overrides   map[string]string
	Cutoff      float64
	DefaultFill string
	DefaultRule string
	DefaultAgg  domain.Aggregation
	// Model workflows read the long model CSV and require a model label.
	Model bool
	// ZeroShare adds zero / non-zero percentages to output stats.
	ZeroShare bool
	// UnionInputCodes adds codes declared by the input to the target codes.
	UnionInputCodes bool
	// FilterColumns, when set, drops unsuitable value columns before mapping.
	FilterColumns func(labels []string) (keep map[string]bool, warnings []string, err error)
	InputGlobs    []string
}

var precipPatterns = []domain.AliasPattern{
	{Suffix: "_Pluie 1hr (mm)"},
	{Suffix: " Pluie 1hr (mm)"},
}

var profiles = map[Workflow]Profile{
	PrecipModel: {
		Workflow:        PrecipModel,
		OutputPrefix:    "template_multi_station_precip_mm",
		Quantity:        "rr",
		Patterns:        precipPatterns,
		Cutoff:          domain.DefaultCutoff,
		DefaultFill:     "0",
		DefaultAgg:      domain.AggSum,
		Model:           true,
		ZeroShare:       true,
		UnionInputCodes: true,
		InputGlobs:      []string{"*.csv"},
	},
	PrecipObserved: {
		Workflow:     PrecipObserved,
		OutputPrefix: "template_multi_station_precip_mm_observed",
		Quantity:     "precipitation",
		Patterns:     precipPatterns,
		Cutoff:       domain.DefaultCutoff,
		DefaultFill:  "nan",
		DefaultAgg:   domain.AggSum,
		ZeroShare:    true,
		InputGlobs:   []string{"*.xlsx", "*.xls", "*.csv"},
	},
	FlowObserved: {
		Workflow:     FlowObserved,
		OutputPrefix: "template_multi_station_flow_m3s_observed",
		Quantity:     "flow",
		Patterns: []domain.AliasPattern{
			{Suffix: " debit"},
			{Suffix: " débit"},
			{Suffix: "_Debit (m3/s)"},
			{Suffix: "_Débit (m3/s)"},
		},
		Overrides: map[string]string{
			"brg de garde debit":     "Bge Garde de Sebou",
			"barrage de garde debit": "Bge Garde de Sebou",
			"pont elmalha debit":     "El Malha",
			"pont el malha debit":    "El Malha",
			"pont sebbou debit":      "Ain Sebou",
		},
		Cutoff:      domain.DefaultCutoff,
		DefaultFill: "nan",
		DefaultRule: "1h",
		DefaultAgg:  domain.AggMean,
		InputGlobs:  []string{"*.xls", "*.xlsx", "*.csv"},
	},
	VolumeObserved: {
		Workflow:     VolumeObserved,
		OutputPrefix: "template_multi_station_volume_hm3_observed",
		Quantity:     "volume",
		Patterns: []domain.AliasPattern{
			{Suffix: " volume"},
			{Prefix: "brg ", Suffix: " volume"},
			{Suffix: "_volume"},
		},
		Cutoff:        0.80,
		DefaultFill:   "nan",
		DefaultRule:   "1h",
		DefaultAgg:    domain.AggMean,
		FilterColumns: volumeColumns,
		InputGlobs:    []string{"*.xls", "*.xlsx", "*.csv"},
	},
}

// ProfileFor returns the profile of a workflow name.
func ProfileFor(w Workflow) (Profile, error) {
	p, ok := profiles[w]
	if !ok {
		return Profile{}, fmt.Errorf("unknown workflow %q", w)
	}
	return p, nil
}

// Prefix is the output workbook prefix, including the model label for model workflows.
func (p Profile) Prefix(model string) string {
	if p.Model && model != "" {
		return p.OutputPrefix + "_" + model
	}
	return p.OutputPrefix
}

// volumeColumns keeps labels that mention a volume and are not fill rates.
func volumeColumns(labels []string) (map[string]bool, []string, error) {
	keep := make(map[string]bool, len(labels))
	var rates, other []string
	for _, label := range labels {
		key := domain.Normalize(label)
		switch {
		case strings.Contains(label, "%") || strings.Contains(key, "remplissage") || strings.Contains(key, "taux"):
			rates = append(rates, label)
		case !strings.Contains(key, "volume"):
			other = append(other, label)
		default:
			keep[label] = true
		}
	}
	var warnings []string
	if len(rates) > 0 {
		warnings = append(warnings, "Rate/fill columns ignored for now: "+strings.Join(rates, ", "))
	}
	if len(other) > 0 {
		warnings = append(warnings, "Non-volume columns ignored: "+strings.Join(other, ", "))
	}
	if len(keep) == 0 {
		return nil, warnings, fmt.Errorf("no volume columns found among %d columns: %w", len(labels), domain.ErrNoRecords)
	}
	return keep, warnings, nil
}

// LoadOverrides reads a YAML alias override file keyed by workflow:
//
//	flow_observed:
//	  brg de garde debit: Bge Garde de Sebou
//
// The second result is false when the file has no entry for the workflow.
func LoadOverrides(path string, w Workflow) (map[string]string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read alias file: %w", err)
	}
	var doc map[string]map[string]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	table, ok := doc[string(w)]
	return table, ok, nil
}
