package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// ModelColumns are the columns a model-output CSV must carry.
var ModelColumns = []string{"time", "echance", "station_id", "name", "station_name", "rr"}

// ReadModelCSV reads the long ';'-separated model-output layout. Each row is
// already one record; station_id becomes the code hint and rows with a
// non-integer station_id are dropped and counted.
func ReadModelCSV(r io.Reader) (*Extract, error) {
	table, err := parseCSV(r, ';')
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, checkShape(0, 0)
	}
	col := make(map[string]int, len(table[0]))
	for i, h := range table[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, name := range ModelColumns {
		if _, ok := col[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns %v: %w", missing, domain.ErrStructural)
	}
	if err := checkShape(len(table), len(table[0])); err != nil {
		return nil, err
	}

	ext := &Extract{Kind: KindModelCSV}
	ext.Stats.Separator = ";"
	ext.Stats.Columns = len(table[0])
	seenLabel := make(map[string]bool)
	leads := make(map[string]bool)
	get := func(row []string, name string) string {
		if i := col[name]; i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	for _, row := range table[1:] {
		ext.Stats.Rows++
		code := parseCode(get(row, "station_id"))
		if code == nil {
			ext.Stats.InvalidStationRows++
			continue
		}
		label := get(row, "station_name")
		if label == "" {
			label = get(row, "name")
		}
		if !seenLabel[label] {
			seenLabel[label] = true
			ext.Labels = append(ext.Labels, label)
		}
		leads[get(row, "echance")] = true
		ext.Records = append(ext.Records, domain.SourceRecord{
			TimeRaw:  get(row, "time"),
			Label:    label,
			ValueRaw: get(row, "rr"),
			CodeHint: code,
		})
	}
	ext.Stats.Records = len(ext.Records)
	ext.Stats.LeadCount = len(leads)
	return ext, nil
}
