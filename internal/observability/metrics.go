package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydroprep"

// Metrics holds the Prometheus collectors for preparation runs.
type Metrics struct {
	registry *prometheus.Registry

	Runs           *prometheus.CounterVec   // labels: workflow, status={succeeded,failed}
	RecordsCleaned *prometheus.CounterVec   // labels: workflow
	Warnings       *prometheus.CounterVec   // labels: workflow
	ColumnMappings *prometheus.CounterVec   // labels: workflow, method={exact,fuzzy,code,unmapped}
	RunDuration    *prometheus.HistogramVec // labels: workflow
	ResolverCache  *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates the run metrics on a dedicated registry. Runs are
// short-lived, so the registry is exported as a node-exporter textfile rather
// than scraped.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.registry.MustRegister(
		m.Runs,
		m.RecordsCleaned,
		m.Warnings,
		m.ColumnMappings,
		m.RunDuration,
		m.ResolverCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics for tests that only
// inspect individual collectors.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Preparation runs by workflow and final status.",
		}, []string{"workflow", "status"}),
		RecordsCleaned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_cleaned_total",
			Help:      "Records that survived cleaning.",
		}, []string{"workflow"}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Report warnings raised by runs.",
		}, []string{"workflow"}),
		ColumnMappings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "column_mappings_total",
			Help:      "Input column labels by resolution method.",
		}, []string{"workflow", "method"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single-file run.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"workflow"}),
		ResolverCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_cache_total",
			Help:      "Label resolver memo lookups by result.",
		}, []string{"result"}),
	}
}

// Gatherer exposes the registry, for example to a test or an HTTP handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes every registered metric in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
