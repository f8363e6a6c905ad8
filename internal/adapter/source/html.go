package source

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReadHTML reads a telemetry export saved as an HTML table with an .xls
// extension. The first row is the header; rows whose cell count differs from
// the header are dropped and counted.
func ReadHTML(r io.Reader) (*Extract, error) {
	rows, err := scanTableRows(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, checkShape(0, 0)
	}
	header := rows[0]
	if err := checkShape(len(rows), len(header)); err != nil {
		return nil, err
	}

	data := make([][]any, 0, len(rows)-1)
	ragged := 0
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			ragged++
			continue
		}
		data = append(data, stringsToAny(row))
	}
	ext := melt(KindHTML, header, data, nil)
	ext.Stats.RaggedRowsDropped = ragged
	return ext, nil
}

// scanTableRows collects the text of every <td>/<th> grouped by <tr>. Empty
// rows are skipped.
func scanTableRows(r io.Reader) ([][]string, error) {
	z := html.NewTokenizer(r)
	var (
		rows   [][]string
		row    []string
		cell   strings.Builder
		inRow  bool
		inCell bool
	)
	endCell := func() {
		if inCell {
			row = append(row, strings.Join(strings.Fields(cell.String()), " "))
			cell.Reset()
			inCell = false
		}
	}
	endRow := func() {
		endCell()
		if inRow && len(row) > 0 {
			rows = append(rows, row)
		}
		row = nil
		inRow = false
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("scan html table: %w", err)
			}
			endRow()
			return rows, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Tr:
				endRow()
				inRow = true
			case atom.Td, atom.Th:
				endCell()
				if !inRow {
					inRow = true
				}
				inCell = true
			case atom.Br:
				if inCell {
					cell.WriteByte(' ')
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Td, atom.Th:
				endCell()
			case atom.Tr, atom.Table:
				endRow()
			}
		case html.TextToken:
			if inCell {
				cell.Write(z.Text())
			}
		}
	}
}
