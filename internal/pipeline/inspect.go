package pipeline

import (
	"context"
	"errors"
	"sort"

	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/source"
	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// StationSummary describes the cleaned values mapped to one station.
type StationSummary struct {
	Code    int
	Name    string
	Summary domain.Summary
}

// Inspection is a dry run of the mapping and cleaning stages.
type Inspection struct {
	Input    string
	Kind     source.Kind
	Mappings []domain.ColumnMapping
	Stations []StationSummary
	Clean    domain.CleanStats
	Warnings []string
}

// Inspect maps and cleans an input without resampling or writing anything.
func (p *Pipeline) Inspect(ctx context.Context, plan *Plan, input string) (*Inspection, error) {
	if err := checkExists("input", input); err != nil {
		return nil, err
	}
	ext, err := p.extractor.Extract(ctx, input, source.Options{Sheet: plan.Options.InputSheet, Model: plan.Profile.Model})
	if err != nil {
		return nil, err
	}
	in := &Inspection{Input: input, Kind: ext.Kind}

	records, labels := ext.Records, ext.Labels
	if plan.Profile.FilterColumns != nil {
		keep, warnings, err := plan.Profile.FilterColumns(labels)
		in.Warnings = append(in.Warnings, warnings...)
		if err != nil {
			return in, err
		}
		records, labels = filterLabels(records, labels, keep)
	}

	targets := make(map[int]bool)
	for _, c := range domain.TargetCodes(plan.Catalog.Codes(), plan.Template.DataCodes) {
		targets[c] = true
	}
	resolved, mappings, _ := p.mapRecords(plan, records, labels, targets)
	in.Mappings = mappings

	clean, stats, err := domain.Clean(resolved)
	in.Clean = stats
	if err != nil {
		if errors.Is(err, domain.ErrNoRecords) {
			return in, nil
		}
		return in, err
	}

	byCode := make(map[int][]float64)
	for _, r := range clean {
		if _, ok := byCode[r.StationCode]; !ok {
			byCode[r.StationCode] = nil
		}
		if r.Value != nil {
			byCode[r.StationCode] = append(byCode[r.StationCode], *r.Value)
		}
	}
	codes := make([]int, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		name, _ := plan.Catalog.Name(c)
		in.Stations = append(in.Stations, StationSummary{Code: c, Name: name, Summary: domain.Summarize(byCode[c])})
	}
	return in, nil
}
