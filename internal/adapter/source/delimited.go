package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

const bom = "\ufeff"

// ReadDelimited reads a wide CSV whose first column is time. The separator is
// ';' when the first line has at least as many ';' as ',', else ','.
func ReadDelimited(r io.Reader) (*Extract, error) {
	table, sep, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, checkShape(0, 0)
	}
	header := table[0]
	if err := checkShape(len(table), len(header)); err != nil {
		return nil, err
	}

	data := make([][]any, 0, len(table)-1)
	ragged := 0
	for _, row := range table[1:] {
		if len(row) != len(header) {
			ragged++
			continue
		}
		data = append(data, stringsToAny(row))
	}
	ext := melt(KindCSV, header, data, nil)
	ext.Stats.RaggedRowsDropped = ragged
	ext.Stats.Separator = string(sep)
	return ext, nil
}

// readTable sniffs the separator from the first line and parses every record.
// Blank lines are skipped by encoding/csv.
func readTable(r io.Reader) ([][]string, rune, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(br.Size())
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, 0, fmt.Errorf("read csv: %w", err)
	}
	if i := bytes.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	sep := ','
	if bytes.Count(first, []byte{';'}) >= bytes.Count(first, []byte{','}) {
		sep = ';'
	}
	table, err := parseCSV(br, sep)
	return table, sep, err
}

func parseCSV(r io.Reader, sep rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	table, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(table) > 0 {
		for i := range table[0] {
			table[0][i] = strings.TrimSpace(strings.TrimPrefix(table[0][i], bom))
		}
	}
	return table, nil
}
