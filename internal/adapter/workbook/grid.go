// Package workbook reads output templates and writes matrices into them
// through a small addressable-grid abstraction backed by excelize.
package workbook

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// Grid is a 1-based, row-major view of one worksheet.
type Grid interface {
	// Get returns the stored cell value; number formats are not applied.
	Get(row, col int) string
	Set(row, col int, v any) error
	Clear(row, col int) error
	// Extent returns the last used row and column.
	Extent() (rows, cols int)
}

// Workbook is an open spreadsheet file.
type Workbook struct {
	f *excelize.File
}

// Open opens an existing workbook.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", filepath.Base(path), err)
	}
	return &Workbook{f: f}, nil
}

// HasSheet reports whether the workbook contains the named sheet.
func (w *Workbook) HasSheet(name string) bool {
	idx, err := w.f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// Sheet returns a grid over the named sheet, or an ErrTemplate error if it is missing.
func (w *Workbook) Sheet(name string) (Grid, error) {
	if !w.HasSheet(name) {
		return nil, fmt.Errorf("sheet %q not found (have %v): %w", name, w.f.GetSheetList(), domain.ErrTemplate)
	}
	rows, err := w.f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	g := &sheetGrid{f: w.f, sheet: name, rows: len(rows)}
	for _, r := range rows {
		g.cols = max(g.cols, len(r))
	}
	return g, nil
}

// SaveAs writes the workbook to path through a temporary file in the same
// directory, so a failed save never leaves a truncated spreadsheet behind.
func (w *Workbook) SaveAs(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hydroprep-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := w.f.Write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename workbook: %w", err)
	}
	return nil
}

func (w *Workbook) Close() error {
	return w.f.Close()
}

type sheetGrid struct {
	f     *excelize.File
	sheet string
	rows  int
	cols  int
}

func (g *sheetGrid) Get(row, col int) string {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	v, err := g.f.GetCellValue(g.sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return ""
	}
	return v
}

func (g *sheetGrid) Set(row, col int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := g.f.SetCellValue(g.sheet, cell, v); err != nil {
		return fmt.Errorf("set %s!%s: %w", g.sheet, cell, err)
	}
	g.rows = max(g.rows, row)
	g.cols = max(g.cols, col)
	return nil
}

func (g *sheetGrid) Clear(row, col int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return g.f.SetCellDefault(g.sheet, cell, "")
}

func (g *sheetGrid) Extent() (int, int) {
	return g.rows, g.cols
}
