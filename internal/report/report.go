// Package report collects per-stage statistics, warnings and errors of a run
// and renders them as JSON and as a flat text summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// Status is the final outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Section names, in rendering order.
const (
	SectionInput    = "input_stats"
	SectionMapping  = "mapping_stats"
	SectionCleaning = "cleaning_stats"
	SectionResample = "resample_stats"
	SectionOutput   = "output_stats"
	SectionTime     = "time_quality"
)

var sectionOrder = []struct{ key, title string }{
	{SectionInput, "Input Stats"},
	{SectionMapping, "Mapping Stats"},
	{SectionCleaning, "Cleaning Stats"},
	{SectionResample, "Resample Stats"},
	{SectionOutput, "Output Stats"},
	{SectionTime, "Time Quality"},
}

// Files are the paths a run read and wrote.
type Files struct {
	Input    string `json:"input_file,omitempty"`
	Template string `json:"template_file,omitempty"`
	Output   string `json:"output_file,omitempty"`
	Log      string `json:"log_file,omitempty"`
	JSON     string `json:"report_json,omitempty"`
	Text     string `json:"report_txt,omitempty"`
}

// Report is immutable once returned by Builder.Finalize.
type Report struct {
	ReportID       string                    `json:"report_id"`
	RunID          string                    `json:"run_id"`
	Workflow       string                    `json:"workflow"`
	ModelLabel     string                    `json:"model_label,omitempty"`
	GeneratedAtUTC string                    `json:"generated_at_utc"`
	Files          Files                     `json:"files"`
	InputFormat    string                    `json:"input_format,omitempty"`
	StrictMode     bool                      `json:"strict_mode"`
	Status         Status                    `json:"status"`
	Sections       map[string]map[string]any `json:"sections"`
	ColumnMappings []domain.ColumnMapping    `json:"column_mappings,omitempty"`
	Warnings       []string                  `json:"warnings"`
	Errors         []string                  `json:"errors"`
}

// Failed reports whether the run must exit non-zero.
func (r *Report) Failed() bool {
	return r.Status == StatusFailed
}

// JSON renders the indented machine-readable form.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// Text renders the flat human-readable form. Keys within a section are sorted.
func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString("Run Report\n")
	writeLine(&b, "report_id", r.ReportID)
	writeLine(&b, "run_id", r.RunID)
	writeLine(&b, "workflow", r.Workflow)
	if r.ModelLabel != "" {
		writeLine(&b, "model_label", r.ModelLabel)
	}
	writeLine(&b, "generated_at_utc", r.GeneratedAtUTC)
	writeLine(&b, "status", string(r.Status))
	writeLine(&b, "strict_mode", strconv.FormatBool(r.StrictMode))
	if r.InputFormat != "" {
		writeLine(&b, "input_format", r.InputFormat)
	}
	for _, f := range []struct{ k, v string }{
		{"input_file", r.Files.Input},
		{"template_file", r.Files.Template},
		{"output_file", r.Files.Output},
		{"log_file", r.Files.Log},
	} {
		if f.v != "" {
			writeLine(&b, f.k, f.v)
		}
	}

	for _, s := range sectionOrder {
		fields, ok := r.Sections[s.key]
		if !ok {
			continue
		}
		b.WriteString("\n" + s.title + "\n")
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeLine(&b, k, formatValue(fields[k]))
		}
	}

	writeList(&b, "Warnings", r.Warnings)
	writeList(&b, "Errors", r.Errors)
	return b.String()
}

// WriteFiles writes the JSON and text forms to the paths in r.Files.
func (r *Report) WriteFiles() error {
	data, err := r.JSON()
	if err != nil {
		return err
	}
	if r.Files.JSON != "" {
		if err := os.WriteFile(r.Files.JSON, data, 0o644); err != nil {
			return fmt.Errorf("write json report: %w", err)
		}
	}
	if r.Files.Text != "" {
		if err := os.WriteFile(r.Files.Text, []byte(r.Text()), 0o644); err != nil {
			return fmt.Errorf("write text report: %w", err)
		}
	}
	return nil
}

func writeLine(b *strings.Builder, k, v string) {
	fmt.Fprintf(b, "- %s: %s\n", k, v)
}

func writeList(b *strings.Builder, title string, items []string) {
	b.WriteString("\n" + title + "\n")
	if len(items) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// Builder accumulates a report while a run progresses. It is not safe for
// concurrent use; each run owns one.
type Builder struct {
	r Report
}

// NewBuilder starts a report for a run.
func NewBuilder(runID, workflow string) *Builder {
	return &Builder{r: Report{
		RunID:    runID,
		Workflow: workflow,
		Sections: make(map[string]map[string]any),
		Warnings: []string{},
		Errors:   []string{},
	}}
}

// Files records the run's paths.
func (b *Builder) Files(f Files) *Builder {
	b.r.Files = f
	return b
}

// Model records the model label of a model-output run.
func (b *Builder) Model(label string) *Builder {
	b.r.ModelLabel = label
	return b
}

// InputFormat records the detected input layout.
func (b *Builder) InputFormat(kind string) *Builder {
	b.r.InputFormat = kind
	return b
}

// Merge adds the exported fields of stats (via their JSON names) to a section.
// Later keys overwrite earlier ones.
func (b *Builder) Merge(section string, stats any) {
	fields, err := toFields(stats)
	if err != nil {
		b.Error(fmt.Errorf("encode %s: %w", section, err))
		return
	}
	dst := b.section(section)
	for k, v := range fields {
		dst[k] = v
	}
}

// Set stores one value in a section.
func (b *Builder) Set(section, key string, v any) {
	fields, err := toFields(map[string]any{key: v})
	if err != nil {
		b.Error(fmt.Errorf("encode %s.%s: %w", section, key, err))
		return
	}
	b.section(section)[key] = fields[key]
}

func (b *Builder) section(name string) map[string]any {
	s, ok := b.r.Sections[name]
	if !ok {
		s = make(map[string]any)
		b.r.Sections[name] = s
	}
	return s
}

// Mappings records the column audit list.
func (b *Builder) Mappings(m []domain.ColumnMapping) {
	b.r.ColumnMappings = m
}

// Warnf adds a recoverable condition.
func (b *Builder) Warnf(format string, args ...any) {
	b.r.Warnings = append(b.r.Warnings, fmt.Sprintf(format, args...))
}

// Warnings returns the warnings collected so far.
func (b *Builder) Warnings() []string {
	return b.r.Warnings
}

// Error adds a fatal condition.
func (b *Builder) Error(err error) {
	b.r.Errors = append(b.r.Errors, err.Error())
}

// Finalize stamps the report and decides its status. With strict set, any
// warning fails the run; data already written is left in place.
func (b *Builder) Finalize(strict bool) *Report {
	r := b.r
	r.ReportID = uuid.NewString()
	r.GeneratedAtUTC = domain.Now().Format(time.RFC3339)
	r.StrictMode = strict
	r.Status = StatusSucceeded
	r.Warnings = append([]string{}, r.Warnings...)
	r.Errors = append([]string{}, r.Errors...)
	if strict && len(r.Warnings) > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("strict mode: %d warning(s) treated as failure", len(r.Warnings)))
	}
	if len(r.Errors) > 0 {
		r.Status = StatusFailed
	}
	return &r
}

func toFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
