// Command hydroprep prepares hydrological station time series for the
// agency's multi-station workbook templates.
//
// Usage:
//
//	hydroprep run --workflow flow_observed --input debits.xls --template template.xlsx
//	hydroprep batch --workflow volume_observed --input data/volumes --template template.xlsx
//	hydroprep consolidate --workflow flow_observed --template template.xlsx out/*.xlsx
//	hydroprep inspect --workflow flow_observed --input debits.xls --template template.xlsx
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	kafkaadapter "github.com/Yelmkhayar/hydro-sentinel/internal/adapter/kafka"
	"github.com/Yelmkhayar/hydro-sentinel/internal/config"
	"github.com/Yelmkhayar/hydro-sentinel/internal/observability"
	"github.com/Yelmkhayar/hydro-sentinel/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err = root.ExecuteContext(ctx)
	a.shutdown()

	var ee *exitError
	switch {
	case errors.As(err, &ee):
		if ee.err != nil {
			fmt.Fprintln(stderr, "error:", ee.err)
		}
		return ee.code
	case err != nil:
		// Flag and argument errors from cobra.
		fmt.Fprintln(stderr, "error:", err)
		return 2
	default:
		return 0
	}
}

// app holds what every subcommand shares once flags are parsed.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer

	logger    *slog.Logger
	metrics   *observability.Metrics
	publisher *kafkaadapter.Writer
}

// setup runs after flag parsing, so flag overrides are already in cfg.
func (a *app) setup() error {
	if err := a.cfg.Validate(); err != nil {
		return &exitError{code: 2, err: err}
	}
	a.logger = observability.NewLogger(a.stderr, a.cfg.LogLevel, a.cfg.LogFormat)
	a.metrics = observability.NewMetrics()
	if a.cfg.ReportSinkEnabled() {
		a.publisher = kafkaadapter.NewWriter(a.cfg, a.logger)
		a.logger.Info("report sink enabled", "brokers", a.cfg.ReportBrokers, "topic", a.cfg.ReportTopic)
	}
	return nil
}

func (a *app) pipeline() *pipeline.Pipeline {
	var pub pipeline.ReportPublisher
	if a.publisher != nil {
		pub = a.publisher
	}
	return pipeline.New(pipeline.FileExtractor{}, pipeline.WorkbookLoader{}, pub, a.logger, a.metrics)
}

func (a *app) shutdown() {
	if a.logger == nil {
		return
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("kafka writer close error", "error", err)
		}
	}
	if a.cfg.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Error("write metrics textfile", "path", a.cfg.MetricsFile, "error", err)
		}
	}
}
