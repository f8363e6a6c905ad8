package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_ExitCodes(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown command", []string{"melt"}, 2},
		{"missing required flags", []string{"run", "--workflow", "flow_observed"}, 2},
		{"missing template", []string{"run", "--workflow", "flow_observed", "--input", "in.csv", "--template", filepath.Join(dir, "none.xlsx"), "--outdir", dir}, 2},
		{"bad order", []string{"consolidate", "--workflow", "flow_observed", "--template", "t.xlsx", "--order", "mtime", "a.xlsx"}, 2},
		{"bad log format", []string{"run", "--log-format", "xml", "--workflow", "flow_observed", "--input", "in.csv", "--template", "t.xlsx"}, 2},
		{"two inputs for run", []string{"run", "--workflow", "flow_observed", "--input", "a.csv", "--input", "b.csv", "--template", "t.xlsx"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(tt.args, &stdout, &stderr), stderr.String())
		})
	}
}

func TestRun_Help(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "consolidate")
}
