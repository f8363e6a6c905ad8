package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/source"
	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/workbook"
	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
	"github.com/Yelmkhayar/hydro-sentinel/internal/observability"
	"github.com/Yelmkhayar/hydro-sentinel/internal/report"
)

// Extractor reads an input file into melted records.
type Extractor interface {
	Extract(ctx context.Context, path string, opts source.Options) (*source.Extract, error)
}

// Loader writes a matrix into a copy of the template.
type Loader interface {
	Load(ctx context.Context, templatePath, outPath string, layout workbook.Layout, m *domain.Matrix) (workbook.WriteStats, error)
}

// ReportPublisher ships finalized reports to an external sink.
type ReportPublisher interface {
	Publish(ctx context.Context, reports ...*report.Report) error
}

// FileExtractor is the default Extractor.
type FileExtractor struct{}

func (FileExtractor) Extract(ctx context.Context, path string, opts source.Options) (*source.Extract, error) {
	return source.Read(ctx, path, opts)
}

// WorkbookLoader is the default Loader.
type WorkbookLoader struct{}

func (WorkbookLoader) Load(ctx context.Context, templatePath, outPath string, layout workbook.Layout, m *domain.Matrix) (workbook.WriteStats, error) {
	if err := ctx.Err(); err != nil {
		return workbook.WriteStats{}, err
	}
	return workbook.Export(templatePath, outPath, layout, m)
}

// Pipeline runs single-file preparations.
type Pipeline struct {
	extractor Extractor
	loader    Loader
	publisher ReportPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline. A nil publisher disables the report sink.
func New(e Extractor, l Loader, pub ReportPublisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor: e,
		loader:    l,
		publisher: pub,
		logger:    logger,
		metrics:   metrics,
	}
}

// Result is the outcome of one file.
type Result struct {
	Input      string
	RunID      string
	OutputPath string
	Report     *report.Report
	Err        error
}

// ExitCode maps the result onto the process exit status: 2 for a missing
// input, 1 for a fatal error or a strict-mode failure, else 0.
func (r *Result) ExitCode() int {
	switch {
	case errors.Is(r.Err, ErrMissingFile):
		return 2
	case r.Err != nil:
		return 1
	case r.Report != nil && r.Report.Failed():
		return 1
	default:
		return 0
	}
}

// OK reports whether the run succeeded.
func (r *Result) OK() bool {
	return r.ExitCode() == 0
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileStem(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Trim(unsafeNameRe.ReplaceAllString(stem, "_"), "_")
}

// names derives every output path of a run.
type names struct {
	output, log, json, text string
}

func runNames(plan *Plan, runID, input string) names {
	o := plan.Options
	stem := fileStem(input)
	base := string(o.Workflow)
	if plan.Profile.Model && o.Model != "" {
		base += "_" + o.Model
	}
	base = fmt.Sprintf("%s_%s_%s", base, runID, stem)
	return names{
		output: filepath.Join(o.OutputDir, fmt.Sprintf("%s_%s_%s.xlsx", plan.Profile.Prefix(o.Model), runID, stem)),
		log:    filepath.Join(o.OutputDir, base+".log"),
		json:   filepath.Join(o.OutputDir, base+"_report.json"),
		text:   filepath.Join(o.OutputDir, base+"_report.txt"),
	}
}

// Run prepares one input file against the plan. Recoverable conditions become
// report warnings; fatal ones end the run with a failed report and no workbook.
func (p *Pipeline) Run(ctx context.Context, plan *Plan, input string) *Result {
	start := domain.Now()
	runID := domain.NewRunID()
	res := &Result{Input: input, RunID: runID}
	wf := string(plan.Options.Workflow)

	if err := checkExists("input", input); err != nil {
		res.Err = err
		p.logger.Error("input missing", "input", input, "error", err)
		p.metrics.Runs.WithLabelValues(wf, string(report.StatusFailed)).Inc()
		return res
	}
	if err := os.MkdirAll(plan.Options.OutputDir, 0o755); err != nil {
		res.Err = fmt.Errorf("create output dir: %w", err)
		p.metrics.Runs.WithLabelValues(wf, string(report.StatusFailed)).Inc()
		return res
	}

	n := runNames(plan, runID, input)
	logger := p.logger
	if rl, err := observability.OpenRunLog(p.logger, n.log); err != nil {
		logger.Warn("run log unavailable", "path", n.log, "error", err)
		n.log = ""
	} else {
		defer rl.Close()
		logger = rl.Logger
	}
	logger = logger.With("run_id", runID, "workflow", wf, "input", filepath.Base(input))

	b := report.NewBuilder(runID, wf).Model(plan.Options.Model)
	b.Files(report.Files{Input: input, Template: plan.Options.Template, Log: n.log, JSON: n.json, Text: n.text})

	logger.Info("run started", "template", plan.Options.Template, "rule", plan.Rule.String(), "agg", plan.Agg, "fill", plan.Fill.String())
	out, err := p.prepare(ctx, plan, input, n.output, b, logger)
	if err != nil {
		logger.Error("run failed", "error", err)
		b.Error(err)
		res.Err = err
	} else {
		res.OutputPath = out
		b.Files(report.Files{Input: input, Template: plan.Options.Template, Output: out, Log: n.log, JSON: n.json, Text: n.text})
	}

	r := b.Finalize(plan.Options.Strict)
	res.Report = r
	for _, w := range r.Warnings {
		logger.Warn(w)
	}
	if err := r.WriteFiles(); err != nil {
		logger.Error("write report failed", "error", err)
	}
	p.publish(ctx, logger, r)

	p.metrics.Runs.WithLabelValues(wf, string(r.Status)).Inc()
	p.metrics.Warnings.WithLabelValues(wf).Add(float64(len(r.Warnings)))
	p.metrics.RunDuration.WithLabelValues(wf).Observe(domain.Now().Sub(start).Seconds())
	logger.Info("run finished", "status", r.Status, "warnings", len(r.Warnings), "output", res.OutputPath)
	return res
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, r *report.Report) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, r); err != nil {
		logger.Warn("report publish failed", "error", err)
	}
}

// prepare runs every stage and returns the written workbook path.
func (p *Pipeline) prepare(ctx context.Context, plan *Plan, input, outPath string, b *report.Builder, logger *slog.Logger) (string, error) {
	wf := string(plan.Options.Workflow)
	quantity := plan.Profile.Quantity

	ext, err := p.extractor.Extract(ctx, input, source.Options{Sheet: plan.Options.InputSheet, Model: plan.Profile.Model})
	if err != nil {
		return "", err
	}
	b.InputFormat(string(ext.Kind))
	b.Merge(report.SectionInput, ext.Stats)
	if ext.Stats.InvalidStationRows > 0 {
		b.Warnf("Invalid station_id rows dropped: %d", ext.Stats.InvalidStationRows)
	}
	if plan.Options.Workflow == PrecipObserved && ext.Kind == source.KindXLSX && !ext.Stats.HasCodeRow {
		b.Warnf("Excel DataTable has no code row; station mapping will rely on station names.")
	}
	logger.Debug("input read", "kind", ext.Kind, "records", len(ext.Records), "labels", len(ext.Labels))

	records := ext.Records
	labels := ext.Labels
	if plan.Profile.FilterColumns != nil {
		keep, warnings, err := plan.Profile.FilterColumns(labels)
		for _, w := range warnings {
			b.Warnf("%s", w)
		}
		if err != nil {
			return "", err
		}
		records, labels = filterLabels(records, labels, keep)
	}

	targetSet := make(map[int]bool)
	for _, c := range domain.TargetCodes(plan.Catalog.Codes(), plan.Template.DataCodes) {
		targetSet[c] = true
	}
	resolved, mappings, inputCodes := p.mapRecords(plan, records, labels, targetSet)
	b.Mappings(mappings)
	mstats := mappingStats(mappings)
	mstats["cutoff"] = plan.Cutoff
	for method, count := range countMethods(mappings) {
		p.metrics.ColumnMappings.WithLabelValues(wf, string(method)).Add(float64(count))
	}
	for k, v := range mstats {
		b.Set(report.SectionMapping, k, v)
	}
	if fuzzy := describeFuzzy(mappings, plan.Cutoff); len(fuzzy) > 0 {
		b.Warnf("Fuzzy station mapping used: %s", strings.Join(fuzzy, " | "))
	}
	if unmapped := unmappedLabels(mappings); len(unmapped) > 0 {
		b.Warnf("Unmapped input station columns ignored: %s", strings.Join(unmapped, ", "))
		logger.Debug("unmapped columns", "labels", unmapped, "cutoff", plan.Cutoff)
	}
	if len(resolved) == 0 {
		return "", fmt.Errorf("no input column could be mapped to a station: %w", domain.ErrNoRecords)
	}

	clean, cstats, err := domain.Clean(resolved)
	b.Merge(report.SectionCleaning, cstats)
	if cstats.InvalidTimeRows > 0 {
		b.Warnf("Invalid timestamps dropped: %d", cstats.InvalidTimeRows)
	}
	if cstats.InvalidValueRows > 0 {
		b.Warnf("Non-numeric %s values converted to null: %d", quantity, cstats.InvalidValueRows)
	}
	if cstats.NegativeValueRows > 0 {
		b.Warnf("Negative %s values detected and kept: %d", quantity, cstats.NegativeValueRows)
	}
	if cstats.DuplicateRowsRemoved > 0 {
		b.Warnf("Duplicate (time, station) rows removed, last kept: %d", cstats.DuplicateRowsRemoved)
	}
	if err != nil {
		return "", err
	}
	cleanShape(b, clean)
	p.metrics.RecordsCleaned.WithLabelValues(wf).Add(float64(len(clean)))

	series, rstats := domain.Resample(clean, plan.Rule, plan.Agg)
	b.Merge(report.SectionResample, rstats)

	sets := [][]int{plan.Catalog.Codes(), plan.Template.DataCodes}
	if plan.Profile.UnionInputCodes {
		sets = append(sets, inputCodes)
	}
	target := domain.TargetCodes(sets...)
	matrix, xstats := domain.BuildMatrix(series, target, plan.Fill)
	if plan.Profile.ZeroShare {
		xstats.WithZeroShare(matrix)
	}
	if len(xstats.AbsentStations) > 0 {
		b.Warnf("Stations absent in input and filled by fill policy: %s", p.describeCodes(plan, xstats.AbsentStations))
	}

	stepName, step := plan.ExpectedStep()
	gaps := domain.DetectGaps(matrix.Times, step)
	b.Set(report.SectionTime, "expected_step", stepName)
	b.Set(report.SectionTime, "gap_count", len(gaps))
	b.Set(report.SectionTime, "gaps", gaps)
	if len(matrix.Times) > 0 {
		b.Set(report.SectionTime, "time_min", matrix.Times[0].Format(domain.TimestampLayout))
		b.Set(report.SectionTime, "time_max", matrix.Times[len(matrix.Times)-1].Format(domain.TimestampLayout))
	}
	if len(gaps) > 0 {
		b.Warnf("Detected non-%s time gaps: %d", stepName, len(gaps))
	}

	wstats, err := p.loader.Load(ctx, plan.Options.Template, outPath, plan.Options.Layout, matrix)
	if err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	b.Merge(report.SectionOutput, outputFields(xstats))
	b.Merge(report.SectionOutput, wstats)
	logger.Info("output written", "path", outPath, "rows", wstats.WrittenRows, "stations", wstats.WrittenStationColumns)
	return outPath, nil
}

// cleanShape adds the time range and table shape of cleaned records, which
// are sorted by time.
func cleanShape(b *report.Builder, clean []domain.CleanRecord) {
	stations := make(map[int]bool)
	times := make(map[int64]bool)
	for _, r := range clean {
		stations[r.StationCode] = true
		times[r.Time.UnixNano()] = true
	}
	b.Set(report.SectionCleaning, "time_min", clean[0].Time.Format(domain.TimestampLayout))
	b.Set(report.SectionCleaning, "time_max", clean[len(clean)-1].Time.Format(domain.TimestampLayout))
	b.Set(report.SectionCleaning, "station_count", len(stations))
	b.Set(report.SectionCleaning, "time_count", len(times))
}

// outputFields flattens matrix stats so value statistics sit at the top level
// of the output section.
func outputFields(s domain.MatrixStats) map[string]any {
	out := map[string]any{
		"pre_fill_missing_cells": s.PreFillMissingCells,
		"fill_missing_value":     s.FillMissingValue,
		"absent_stations":        s.AbsentStations,
		"out_of_target_records":  s.OutOfTargetRecords,
		"valid_values":           s.Values.Count,
		"min":                    s.Values.Min,
		"max":                    s.Values.Max,
		"mean":                   s.Values.Mean,
		"p95":                    s.Values.P95,
		"p99":                    s.Values.P99,
	}
	if s.ZeroPct != nil {
		out["zero_pct"] = *s.ZeroPct
		out["non_zero_pct"] = *s.NonZeroPct
	}
	return out
}

func filterLabels(records []domain.SourceRecord, labels []string, keep map[string]bool) ([]domain.SourceRecord, []string) {
	kept := make([]domain.SourceRecord, 0, len(records))
	for _, r := range records {
		if keep[r.Label] {
			kept = append(kept, r)
		}
	}
	var keptLabels []string
	for _, l := range labels {
		if keep[l] {
			keptLabels = append(keptLabels, l)
		}
	}
	return kept, keptLabels
}

// mappingKey identifies one audit entry. Records carrying an accepted code
// hint are keyed by (label, code) so repeated labels stay on their own station.
type mappingKey struct {
	label  string
	code   int
	hinted bool
}

// mapRecords resolves every distinct mapping key once. A record whose source
// declares a station code uses it when the code is a target (or, for
// profiles that union input codes, always); otherwise its label decides.
func (p *Pipeline) mapRecords(plan *Plan, records []domain.SourceRecord, labels []string, targets map[int]bool) ([]domain.ResolvedRecord, []domain.ColumnMapping, []int) {
	byKey := make(map[mappingKey]domain.ColumnMapping, len(labels))
	seenLabel := make(map[string]bool, len(labels))
	var order []mappingKey
	mappingFor := func(r domain.SourceRecord) domain.ColumnMapping {
		key := mappingKey{label: r.Label}
		if hint := r.CodeHint; hint != nil && (plan.Profile.UnionInputCodes || targets[*hint]) {
			key.code, key.hinted = *hint, true
		}
		if m, ok := byKey[key]; ok {
			return m
		}
		var m domain.ColumnMapping
		if key.hinted {
			code := key.code
			name, _ := plan.Catalog.Name(code)
			m = domain.ColumnMapping{Label: r.Label, StationCode: &code, StationName: name, Method: domain.MethodCode, Score: 1}
		} else {
			m = plan.Resolver.Resolve(r.Label)
		}
		byKey[key] = m
		seenLabel[r.Label] = true
		order = append(order, key)
		return m
	}

	resolved := make([]domain.ResolvedRecord, 0, len(records))
	inputCodes := make(map[int]bool)
	for _, r := range records {
		m := mappingFor(r)
		if !m.Mapped() {
			continue
		}
		inputCodes[*m.StationCode] = true
		resolved = append(resolved, domain.ResolvedRecord{TimeRaw: r.TimeRaw, StationCode: *m.StationCode, ValueRaw: r.ValueRaw})
	}
	// Columns without a single record still get an audit entry.
	for _, l := range labels {
		if !seenLabel[l] {
			mappingFor(domain.SourceRecord{Label: l})
		}
	}

	mappings := make([]domain.ColumnMapping, 0, len(order))
	for _, k := range order {
		mappings = append(mappings, byKey[k])
	}
	codes := make([]int, 0, len(inputCodes))
	for c := range inputCodes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return resolved, mappings, codes
}

func countMethods(mappings []domain.ColumnMapping) map[domain.MappingMethod]int {
	counts := make(map[domain.MappingMethod]int)
	for _, m := range mappings {
		counts[m.Method]++
	}
	return counts
}

func mappingStats(mappings []domain.ColumnMapping) map[string]any {
	counts := countMethods(mappings)
	stations := make(map[int]bool)
	for _, m := range mappings {
		if m.Mapped() {
			stations[*m.StationCode] = true
		}
	}
	return map[string]any{
		"input_columns":    len(mappings),
		"mapped_columns":   len(mappings) - counts[domain.MethodUnmapped],
		"exact_columns":    counts[domain.MethodExact],
		"fuzzy_columns":    counts[domain.MethodFuzzy],
		"code_columns":     counts[domain.MethodCode],
		"unmapped_columns": counts[domain.MethodUnmapped],
		"mapped_stations":  len(stations),
	}
}

func describeFuzzy(mappings []domain.ColumnMapping, cutoff float64) []string {
	var out []string
	for _, m := range mappings {
		if m.Method != domain.MethodFuzzy {
			continue
		}
		out = append(out, fmt.Sprintf("%s -> code %d (%s) via '%s' score=%.3f cutoff=%.2f", m.Label, *m.StationCode, m.StationName, m.MatchedAlias, m.Score, cutoff))
	}
	return out
}

func unmappedLabels(mappings []domain.ColumnMapping) []string {
	var out []string
	for _, m := range mappings {
		if !m.Mapped() {
			out = append(out, m.Label)
		}
	}
	return out
}

func (p *Pipeline) describeCodes(plan *Plan, codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		name, ok := plan.Catalog.Name(c)
		if !ok {
			name = "?"
		}
		parts[i] = fmt.Sprintf("%d:%s", c, name)
	}
	return strings.Join(parts, ", ")
}
