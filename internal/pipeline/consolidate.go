package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/workbook"
	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
	"github.com/Yelmkhayar/hydro-sentinel/internal/report"
)

// Order decides which output wins a conflicting cell during consolidation:
// the file processed last.
type Order string

const (
	// OrderGiven processes outputs in the order supplied.
	OrderGiven Order = "given"
	// OrderRunID processes outputs by the run id embedded in their names,
	// oldest first. Ties and names without a run id keep the supplied order.
	OrderRunID Order = "run-id"
)

// ParseOrder validates an order name. Empty selects OrderGiven.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.TrimSpace(s)); o {
	case "":
		return OrderGiven, nil
	case OrderGiven, OrderRunID:
		return o, nil
	default:
		return "", fmt.Errorf("unknown consolidation order %q", s)
	}
}

// ConsolidateOptions describe one consolidation.
type ConsolidateOptions struct {
	Workflow  Workflow
	Model     string
	Template  string
	OutputDir string
	Layout    workbook.Layout
	Order     Order
	Files     []string
}

var runIDRe = regexp.MustCompile(`\d{8}T\d{6}Z`)

// orderFiles returns files in processing order.
func orderFiles(files []string, order Order) []string {
	out := append([]string(nil), files...)
	if order != OrderRunID {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return runIDRe.FindString(filepath.Base(out[i])) < runIDRe.FindString(filepath.Base(out[j]))
	})
	return out
}

// Consolidate merges previously written outputs into one workbook: the union
// of their timestamps over the template's station columns, later files
// overriding earlier ones cell by cell.
func (p *Pipeline) Consolidate(ctx context.Context, opts ConsolidateOptions) *Result {
	runID := domain.NewRunID()
	res := &Result{RunID: runID}
	wf := string(opts.Workflow)
	if opts.Layout == (workbook.Layout{}) {
		opts.Layout = workbook.DefaultLayout()
	}
	profile, err := ProfileFor(opts.Workflow)
	if err != nil {
		res.Err = err
		return res
	}
	if err := checkExists("template", opts.Template); err != nil {
		res.Err = err
		return res
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		res.Err = fmt.Errorf("create output dir: %w", err)
		return res
	}

	base := wf
	if profile.Model && opts.Model != "" {
		base += "_" + opts.Model
	}
	base = filepath.Join(opts.OutputDir, fmt.Sprintf("%s_consolidated_%s", base, runID))
	outPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_consolidated_%s.xlsx", profile.Prefix(opts.Model), runID))
	files := report.Files{Template: opts.Template, JSON: base + "_report.json", Text: base + "_report.txt"}

	logger := p.logger.With("run_id", runID, "workflow", wf, "step", "consolidate")
	b := report.NewBuilder(runID, wf).Model(opts.Model).InputFormat("consolidation")
	b.Files(files)

	if err := p.consolidate(ctx, opts, outPath, b); err != nil {
		logger.Error("consolidation failed", "error", err)
		b.Error(err)
		res.Err = err
	} else {
		res.OutputPath = outPath
		files.Output = outPath
		b.Files(files)
	}

	r := b.Finalize(false)
	res.Report = r
	for _, w := range r.Warnings {
		logger.Warn(w)
	}
	if err := r.WriteFiles(); err != nil {
		logger.Error("write report failed", "error", err)
	}
	p.publish(ctx, logger, r)
	p.metrics.Runs.WithLabelValues(wf+"_consolidated", string(r.Status)).Inc()
	logger.Info("consolidation finished", "status", r.Status, "files", len(opts.Files), "output", res.OutputPath)
	return res
}

func (p *Pipeline) consolidate(ctx context.Context, opts ConsolidateOptions, outPath string, b *report.Builder) error {
	tpl, err := workbook.ReadTemplate(opts.Template, opts.Layout)
	if err != nil {
		return err
	}
	codes := tpl.DataCodes
	if len(codes) == 0 {
		codes = domain.NewCatalog(tpl.Stations, nil, nil).Codes()
	}
	if len(codes) == 0 {
		return fmt.Errorf("template has neither header codes nor stations: %w", domain.ErrTemplate)
	}
	known := make(map[int]bool, len(codes))
	for _, c := range codes {
		known[c] = true
	}

	ordered := orderFiles(opts.Files, opts.Order)
	var (
		records     []domain.CleanRecord
		used        []string
		skipped     []string
		dropped     = make(map[int]bool)
		invalidTime int
	)
	for _, path := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkExists("output", path); err != nil {
			return err
		}
		series, ok, err := readSeries(path, opts.Layout)
		if err != nil {
			return err
		}
		if !ok {
			skipped = append(skipped, filepath.Base(path))
			continue
		}
		used = append(used, path)
		for _, row := range series.Rows {
			t, ok := domain.ParseTime(row.Time)
			if !ok {
				invalidTime++
				continue
			}
			// Map iteration order does not matter: each code is one column.
			for code, v := range row.Values {
				if !known[code] {
					dropped[code] = true
					continue
				}
				records = append(records, domain.CleanRecord{Time: t, StationCode: code, Value: &v})
			}
		}
	}

	b.Set(report.SectionInput, "files", used)
	b.Set(report.SectionInput, "order", string(orderOrDefault(opts.Order)))
	b.Set(report.SectionInput, "skipped_files", skipped)
	b.Set(report.SectionInput, "invalid_time_rows", invalidTime)
	if len(skipped) > 0 {
		b.Warnf("Outputs without a %q sheet skipped: %s", opts.Layout.DataSheet, strings.Join(skipped, ", "))
	}
	if invalidTime > 0 {
		b.Warnf("Invalid timestamps dropped: %d", invalidTime)
	}
	if len(dropped) > 0 {
		b.Warnf("Station columns outside the template dropped: %s", joinCodes(dropped))
	}
	if len(used) == 0 {
		return fmt.Errorf("no readable output among %d files: %w", len(opts.Files), domain.ErrNoRecords)
	}

	m, stats := domain.BuildMatrix(records, codes, domain.NoFill)
	ws, err := workbook.Export(opts.Template, outPath, opts.Layout, m)
	if err != nil {
		return fmt.Errorf("write consolidated output: %w", err)
	}
	b.Merge(report.SectionOutput, outputFields(stats))
	b.Merge(report.SectionOutput, ws)
	if len(m.Times) > 0 {
		b.Set(report.SectionTime, "time_min", m.Times[0].Format(domain.TimestampLayout))
		b.Set(report.SectionTime, "time_max", m.Times[len(m.Times)-1].Format(domain.TimestampLayout))
	}
	return nil
}

func orderOrDefault(o Order) Order {
	if o == "" {
		return OrderGiven
	}
	return o
}

// readSeries returns false when the workbook has no data sheet.
func readSeries(path string, layout workbook.Layout) (workbook.Series, bool, error) {
	wb, err := workbook.Open(path)
	if err != nil {
		return workbook.Series{}, false, err
	}
	defer wb.Close()
	if !wb.HasSheet(layout.DataSheet) {
		return workbook.Series{}, false, nil
	}
	g, err := wb.Sheet(layout.DataSheet)
	if err != nil {
		return workbook.Series{}, false, err
	}
	return workbook.ReadSeries(g, layout), true, nil
}

func joinCodes(set map[int]bool) string {
	codes := make([]int, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}
