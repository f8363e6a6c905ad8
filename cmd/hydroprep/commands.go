package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/workbook"
	"github.com/Yelmkhayar/hydro-sentinel/internal/pipeline"
)

// runFlags are shared by run, batch and inspect.
type runFlags struct {
	workflow string
	inputs   []string
	template string
	model    string
	fill     string
	rule     string
	agg      string
	cutoff   float64
	strict   bool
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hydroprep",
		Short:         "Prepare multi-station hydrological workbooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.OutputDir, "outdir", a.cfg.OutputDir, "output directory")
	pf.StringVar(&a.cfg.DataSheet, "sheet-data", a.cfg.DataSheet, "template data sheet")
	pf.StringVar(&a.cfg.StationSheet, "sheet-stations", a.cfg.StationSheet, "template station sheet")
	pf.IntVar(&a.cfg.HeaderRow, "header-row", a.cfg.HeaderRow, "template data header row (1-based)")
	pf.IntVar(&a.cfg.FirstDataRow, "data-start-row", a.cfg.FirstDataRow, "first template data row (1-based)")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug, info, warn or error")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "text or json")

	root.AddCommand(a.runCommand(), a.batchCommand(), a.consolidateCommand(), a.inspectCommand())
	return root
}

func (a *app) addRunFlags(cmd *cobra.Command, f *runFlags, multiInput bool) {
	fl := cmd.Flags()
	fl.StringVar(&f.workflow, "workflow", "", "precip_model, precip_observed, flow_observed or volume_observed")
	if multiInput {
		fl.StringArrayVar(&f.inputs, "input", nil, "input file or directory (repeatable)")
	} else {
		fl.StringArrayVar(&f.inputs, "input", nil, "input file")
	}
	fl.StringVar(&f.template, "template", "", "template workbook")
	fl.StringVar(&f.model, "model", "", "model label (precip_model)")
	fl.StringVar(&f.fill, "fill-missing", "", "fill for absent cells: nan or a number (workflow default when empty)")
	fl.StringVar(&f.rule, "resample-rule", "", "resampling width such as 1h or 30min, none to disable")
	fl.StringVar(&f.agg, "agg", "", "mean, last, sum, min, max or median")
	fl.Float64Var(&f.cutoff, "cutoff", 0, "fuzzy station match cutoff in (0,1]")
	fl.BoolVar(&f.strict, "strict", false, "fail the run when any warning is raised")
	fl.StringVar(&a.cfg.AliasFile, "aliases", a.cfg.AliasFile, "YAML alias override file")
	fl.StringVar(&a.cfg.InputSheet, "input-sheet", a.cfg.InputSheet, "worksheet read from .xlsx inputs")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("template")
}

func (a *app) layout() workbook.Layout {
	l := workbook.DefaultLayout()
	l.DataSheet = a.cfg.DataSheet
	l.StationSheet = a.cfg.StationSheet
	l.HeaderRow = a.cfg.HeaderRow
	l.FirstDataRow = a.cfg.FirstDataRow
	return l
}

func (a *app) plan(f *runFlags) (*pipeline.Plan, error) {
	plan, err := pipeline.NewPlan(pipeline.Options{
		Workflow:   pipeline.Workflow(f.workflow),
		Template:   f.template,
		OutputDir:  a.cfg.OutputDir,
		Model:      f.model,
		Fill:       f.fill,
		Rule:       f.rule,
		Agg:        f.agg,
		Cutoff:     f.cutoff,
		Strict:     f.strict,
		InputSheet: a.cfg.InputSheet,
		AliasFile:  a.cfg.AliasFile,
		Layout:     a.layout(),
	})
	if err != nil {
		return nil, planError(err)
	}
	return plan, nil
}

func planError(err error) error {
	if errors.Is(err, pipeline.ErrMissingFile) {
		return &exitError{code: 2, err: err}
	}
	return &exitError{code: 1, err: err}
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

func (a *app) runCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prepare one input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(f.inputs) != 1 {
				return &exitError{code: 2, err: errors.New("run takes exactly one --input")}
			}
			plan, err := a.plan(f)
			if err != nil {
				return err
			}
			res := a.pipeline().Run(cmd.Context(), plan, f.inputs[0])
			if res.OutputPath != "" {
				fmt.Fprintln(a.stdout, res.OutputPath)
			}
			if res.Err != nil {
				return &exitError{code: res.ExitCode(), err: res.Err}
			}
			return exitWith(res.ExitCode())
		},
	}
	a.addRunFlags(cmd, f, false)
	return cmd
}

func (a *app) batchCommand() *cobra.Command {
	f := &runFlags{}
	var (
		consolidate bool
		order       string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Prepare several input files and consolidate the outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := pipeline.ParseOrder(order)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			plan, err := a.plan(f)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("consolidate") {
				consolidate = plan.Options.Workflow == pipeline.FlowObserved || plan.Options.Workflow == pipeline.VolumeObserved
			}
			plan = plan.WithResolver(pipeline.NewCachedResolver(plan.Resolver, a.cfg.ResolverCache, a.metrics))

			res, err := a.pipeline().RunBatch(cmd.Context(), plan, pipeline.BatchOptions{
				Inputs:      f.inputs,
				Workers:     a.cfg.BatchWorkers,
				Consolidate: consolidate,
				Order:       o,
			})
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			for _, r := range res.Files {
				status := "ok"
				if !r.OK() {
					status = "failed"
				}
				fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", status, r.Input, r.OutputPath)
			}
			if c := res.Consolidation; c != nil && c.OutputPath != "" {
				fmt.Fprintf(a.stdout, "consolidated\t%s\n", c.OutputPath)
			}
			return exitWith(res.ExitCode())
		},
	}
	a.addRunFlags(cmd, f, true)
	cmd.Flags().BoolVar(&consolidate, "consolidate", false, "consolidate outputs (default on for flow_observed and volume_observed)")
	cmd.Flags().StringVar(&order, "order", string(pipeline.OrderGiven), "consolidation order: given or run-id")
	cmd.Flags().IntVar(&a.cfg.BatchWorkers, "workers", a.cfg.BatchWorkers, "files processed concurrently")
	return cmd
}

func (a *app) consolidateCommand() *cobra.Command {
	var workflow, template, model, order string
	cmd := &cobra.Command{
		Use:   "consolidate FILE...",
		Short: "Merge previously written outputs into one workbook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			o, err := pipeline.ParseOrder(order)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			res := a.pipeline().Consolidate(cmd.Context(), pipeline.ConsolidateOptions{
				Workflow:  pipeline.Workflow(workflow),
				Model:     model,
				Template:  template,
				OutputDir: a.cfg.OutputDir,
				Layout:    a.layout(),
				Order:     o,
				Files:     files,
			})
			if res.OutputPath != "" {
				fmt.Fprintln(a.stdout, res.OutputPath)
			}
			if res.Err != nil {
				return &exitError{code: res.ExitCode(), err: res.Err}
			}
			return exitWith(res.ExitCode())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&workflow, "workflow", "", "workflow of the outputs")
	fl.StringVar(&template, "template", "", "template workbook")
	fl.StringVar(&model, "model", "", "model label (precip_model)")
	fl.StringVar(&order, "order", string(pipeline.OrderGiven), "processing order, the last file wins: given or run-id")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func (a *app) inspectCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the column mapping and value statistics of an input without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(f.inputs) != 1 {
				return &exitError{code: 2, err: errors.New("inspect takes exactly one --input")}
			}
			plan, err := a.plan(f)
			if err != nil {
				return err
			}
			in, err := a.pipeline().Inspect(cmd.Context(), plan, f.inputs[0])
			if err != nil {
				return planError(err)
			}
			a.printInspection(in)
			return nil
		},
	}
	a.addRunFlags(cmd, f, false)
	return cmd
}

func (a *app) printInspection(in *pipeline.Inspection) {
	fmt.Fprintf(a.stdout, "input: %s (%s)\n\n", in.Input, in.Kind)

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tMETHOD\tCODE\tSTATION\tALIAS\tSCORE")
	for _, m := range in.Mappings {
		code := "-"
		if m.StationCode != nil {
			code = fmt.Sprint(*m.StationCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.3f\n", m.Label, m.Method, code, m.StationName, m.MatchedAlias, m.Score)
	}
	_ = tw.Flush()

	fmt.Fprintln(a.stdout)
	tw = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSTATION\tCOUNT\tMIN\tMAX\tMEAN\tP95\tP99")
	for _, s := range in.Stations {
		v := s.Summary
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n", s.Code, s.Name, v.Count,
			num(v.Min), num(v.Max), num(v.Mean), num(v.P95), num(v.P99))
	}
	_ = tw.Flush()

	c := in.Clean
	fmt.Fprintf(a.stdout, "\nrows: %d in, %d kept, %d invalid time, %d non-numeric, %d negative, %d duplicates\n",
		c.RowsIn, c.RowsAfterCleaning, c.InvalidTimeRows, c.InvalidValueRows, c.NegativeValueRows, c.DuplicateRowsRemoved)
	if len(in.Warnings) > 0 {
		fmt.Fprintf(a.stdout, "warnings: %s\n", strings.Join(in.Warnings, "; "))
	}
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}
