package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent files in a batch.
const DefaultWorkers = 4

// BatchOptions control a batch run.
type BatchOptions struct {
	Inputs      []string
	Workers     int
	Consolidate bool
	Order       Order
}

// BatchResult holds one result per input, in input order.
type BatchResult struct {
	Files         []*Result
	Consolidation *Result
}

// ExitCode is the worst exit code over every file and the consolidation step.
func (b *BatchResult) ExitCode() int {
	code := 0
	for _, r := range b.Files {
		code = max(code, r.ExitCode())
	}
	if b.Consolidation != nil {
		code = max(code, b.Consolidation.ExitCode())
	}
	return code
}

// ExpandInputs resolves directories into the files matching the workflow
// patterns. The result is sorted and free of duplicates. Missing paths are
// kept so each one fails on its own.
func ExpandInputs(profile Profile, inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			add(in)
			continue
		}
		for _, pattern := range profile.InputGlobs {
			matches, err := filepath.Glob(filepath.Join(in, pattern))
			if err != nil {
				return nil, fmt.Errorf("expand %s: %w", in, err)
			}
			for _, m := range matches {
				add(m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// RunBatch prepares every input concurrently against one shared plan. A file
// failure never cancels its siblings; a cancelled ctx stops files that have
// not started. Consolidation starts only after every file finished.
func (p *Pipeline) RunBatch(ctx context.Context, plan *Plan, opts BatchOptions) (*BatchResult, error) {
	inputs, err := ExpandInputs(plan.Profile, opts.Inputs)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files for workflow %s", plan.Options.Workflow)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]*Result, len(inputs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, input := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{Input: input, Err: fmt.Errorf("batch cancelled: %w", err)}
				return nil
			}
			results[i] = p.Run(ctx, plan, input)
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult{Files: results}
	succeeded := 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		}
	}
	p.logger.Info("batch finished", "workflow", plan.Options.Workflow, "files", len(results), "succeeded", succeeded)

	if !opts.Consolidate {
		return out, nil
	}
	var outputs []string
	for _, r := range results {
		if r.OutputPath != "" {
			outputs = append(outputs, r.OutputPath)
		}
	}
	if len(outputs) == 0 {
		p.logger.Warn("nothing to consolidate")
		return out, nil
	}
	out.Consolidation = p.Consolidate(ctx, ConsolidateOptions{
		Workflow:  plan.Options.Workflow,
		Model:     plan.Options.Model,
		Template:  plan.Options.Template,
		OutputDir: plan.Options.OutputDir,
		Layout:    plan.Options.Layout,
		Order:     opts.Order,
		Files:     outputs,
	})
	return out, nil
}
