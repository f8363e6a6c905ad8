// Package source reads hydrological extracts into long (time, label, value)
// records, one reader per export layout.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// Kind identifies an input layout.
type Kind string

const (
	KindHTML     Kind = "html_xls"
	KindXLSX     Kind = "xlsx"
	KindCSV      Kind = "csv"
	KindModelCSV Kind = "model_csv"
)

// Options control how an input file is read.
type Options struct {
	// Sheet is the worksheet read from .xlsx inputs.
	Sheet string
	// Model selects the long model-output CSV layout for .csv inputs.
	Model bool
}

// Stats describe the raw table before any mapping.
type Stats struct {
	Rows               int    `json:"rows"`
	Columns            int    `json:"columns"`
	Records            int    `json:"records"`
	RaggedRowsDropped  int    `json:"ragged_rows_dropped"`
	InvalidStationRows int    `json:"invalid_station_rows,omitempty"`
	BlankTimeRows      int    `json:"blank_time_rows,omitempty"`
	LeadCount          int    `json:"lead_count,omitempty"`
	Separator          string `json:"separator,omitempty"`
	HasCodeRow         bool   `json:"has_code_row"`
}

// Extract is the melted content of one input file.
type Extract struct {
	Kind    Kind
	Records []domain.SourceRecord
	// Labels lists the distinct value-column labels in first-seen order.
	Labels []string
	Stats  Stats
}

// DetectKind maps a file extension onto a layout.
func DetectKind(path string, model bool) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls", ".htm", ".html":
		return KindHTML, nil
	case ".xlsx", ".xlsm":
		return KindXLSX, nil
	case ".csv", ".txt":
		if model {
			return KindModelCSV, nil
		}
		return KindCSV, nil
	default:
		return "", fmt.Errorf("unsupported input extension %q: %w", filepath.Ext(path), domain.ErrStructural)
	}
}

// Read detects the layout of path and reads it.
func Read(ctx context.Context, path string, opts Options) (*Extract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, err := DetectKind(path, opts.Model)
	if err != nil {
		return nil, err
	}

	var ext *Extract
	switch kind {
	case KindXLSX:
		ext, err = ReadXLSX(path, opts.Sheet)
	default:
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open input: %w", openErr)
		}
		defer f.Close()
		switch kind {
		case KindHTML:
			ext, err = ReadHTML(f)
		case KindModelCSV:
			ext, err = ReadModelCSV(f)
		default:
			ext, err = ReadDelimited(f)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return ext, nil
}

// melt turns a wide table (time in column 0) into records. codes, when non-nil,
// holds per-column station codes declared by the source.
func melt(kind Kind, header []string, rows [][]any, codes []*int) *Extract {
	ext := &Extract{Kind: kind}
	for j := 1; j < len(header); j++ {
		ext.Labels = append(ext.Labels, header[j])
	}
	ext.Records = make([]domain.SourceRecord, 0, len(rows)*(len(header)-1))
	for _, row := range rows {
		for j := 1; j < len(header); j++ {
			rec := domain.SourceRecord{TimeRaw: row[0], Label: header[j]}
			if j < len(row) {
				rec.ValueRaw = row[j]
			}
			if codes != nil && j < len(codes) {
				rec.CodeHint = codes[j]
			}
			ext.Records = append(ext.Records, rec)
		}
	}
	ext.Stats.Rows = len(rows)
	ext.Stats.Columns = len(header)
	ext.Stats.Records = len(ext.Records)
	return ext
}

// checkShape enforces a header plus at least one data row and two columns.
func checkShape(rows, cols int) error {
	if rows < 2 {
		return fmt.Errorf("expected a header and at least one data row, got %d rows: %w", rows, domain.ErrStructural)
	}
	if cols < 2 {
		return fmt.Errorf("expected a time column and at least one value column, got %d columns: %w", cols, domain.ErrStructural)
	}
	return nil
}

func stringsToAny(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
