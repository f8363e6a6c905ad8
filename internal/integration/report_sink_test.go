//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/xuri/excelize/v2"

	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/kafka"
	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/workbook"
	"github.com/Yelmkhayar/hydro-sentinel/internal/config"
	"github.com/Yelmkhayar/hydro-sentinel/internal/observability"
	"github.com/Yelmkhayar/hydro-sentinel/internal/pipeline"
	"github.com/Yelmkhayar/hydro-sentinel/internal/report"
)

const testReportTopic = "test-run-reports"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("hydroprep-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

func newTemplate(t *testing.T) string {
	t.Helper()
	layout := workbook.DefaultLayout()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", layout.DataSheet))
	_, err := f.NewSheet(layout.StationSheet)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(layout.StationSheet, "A2", 1))
	require.NoError(t, f.SetCellValue(layout.StationSheet, "B2", "Station A"))
	require.NoError(t, f.SetCellValue(layout.DataSheet, "A3", "timestamp"))
	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

// TestReportSink runs one file with the Kafka report sink enabled and reads
// the published report back from the topic.
func TestReportSink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportTopic)

	cfg := &config.Config{ReportBrokers: []string{broker}, ReportTopic: testReportTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	input := filepath.Join(t.TempDir(), "flow.csv")
	require.NoError(t, os.WriteFile(input, []byte("time,Station A debit,Other\n2024-01-01 00:00,1,x\n2024-01-01 01:00,2,x\n"), 0o600))

	plan, err := pipeline.NewPlan(pipeline.Options{
		Workflow:  pipeline.FlowObserved,
		Template:  newTemplate(t),
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	p := pipeline.New(pipeline.FileExtractor{}, pipeline.WorkbookLoader{}, writer, discardLogger(), observability.NewMetricsForTesting())
	res := p.Run(ctx, plan, input)
	require.NoError(t, res.Err)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testReportTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err, "read from report topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, res.RunID, string(msg.Key))
	assert.Equal(t, "flow_observed", headers["workflow"])
	assert.Equal(t, string(report.StatusSucceeded), headers["status"])

	var got report.Report
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, res.Report.ReportID, got.ReportID)
	assert.Equal(t, res.Report.Warnings, got.Warnings)
}
