package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yelmkhayar/hydro-sentinel/internal/config"
	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
	"github.com/Yelmkhayar/hydro-sentinel/internal/report"
)

func TestSerializeToMessage(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	b := report.NewBuilder("20240426T151000Z", "flow_observed")
	b.Warnf("Invalid timestamps dropped: %d", 1)
	r := b.Finalize(true)

	msg, err := serializeToMessage(r)
	require.NoError(t, err)

	assert.Equal(t, []byte("20240426T151000Z"), msg.Key)
	assert.Contains(t, string(msg.Value), `"workflow": "flow_observed"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "workflow", msg.Headers[0].Key)
	assert.Equal(t, []byte("flow_observed"), msg.Headers[0].Value)
	assert.Equal(t, "status", msg.Headers[1].Key)
	assert.Equal(t, []byte("failed"), msg.Headers[1].Value)
	assert.Equal(t, []byte("2024-04-26T15:10:00Z"), msg.Headers[2].Value)
}

func TestWriter_PublishNothing(t *testing.T) {
	w := NewWriter(&config.Config{ReportBrokers: []string{"localhost:1"}, ReportTopic: "t"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Publish(context.Background()))
}
