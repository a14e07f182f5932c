package consumer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/replay/internal/consumer"
	"github.com/marketdata/replay/internal/envelope"
	"github.com/marketdata/replay/internal/queue"
	"github.com/marketdata/replay/internal/record"
)

func newTestQueue(t *testing.T) *queue.Manager {
	t.Helper()
	log, _ := test.NewNullLogger()
	mgr, err := queue.NewManager(16, filepath.Join(t.TempDir(), "spill"), log)
	require.NoError(t, err)
	return mgr
}

func rec(index int, timestamp, bid, ask string, latencyMS float64) record.Record {
	return record.Record{
		Index:     index,
		LatencyMS: latencyMS,
		Attrs: map[string]string{
			"timestamp":  timestamp,
			"bid_price":  bid,
			"ask_price":  ask,
			"latency_ms": "",
		},
	}
}

func runConsumerUntilEmpty(t *testing.T, mgr *queue.Manager, cfg consumer.Config) {
	t.Helper()
	log, _ := test.NewNullLogger()
	c := consumer.New(0, mgr, envelope.Historical, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// Give the consumer a moment to drain the queue, then stop it.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not exit after cancel")
	}
}

func TestConsumerWritesMidPriceLine(t *testing.T) {
	mgr := newTestQueue(t)
	dir := t.TempDir()
	cfg := consumer.Config{
		MidPricePath:     filepath.Join(dir, "mid.log"),
		ErrorPath:        filepath.Join(dir, "err.log"),
		LatencyThreshold: consumer.DefaultLatencyThresholdMS,
		BufferSize:       1,
	}

	env := envelope.New(envelope.Historical, 1, rec(0, "2026-01-01 12:00:00.000000", "1.00", "2.00", 5))
	mgr.Put(env, time.Second)

	runConsumerUntilEmpty(t, mgr, cfg)

	data, err := os.ReadFile(cfg.MidPricePath)
	require.NoError(t, err)
	require.Equal(t, "2026-01-01 12:00:00.000000,1.5\n", string(data))
}

func TestConsumerDivertsHighLatencyToErrorLog(t *testing.T) {
	mgr := newTestQueue(t)
	dir := t.TempDir()
	cfg := consumer.Config{
		MidPricePath:     filepath.Join(dir, "mid.log"),
		ErrorPath:        filepath.Join(dir, "err.log"),
		LatencyThreshold: 20,
		BufferSize:       1,
	}

	env := envelope.New(envelope.Historical, 1, rec(0, "2026-01-01 12:00:00.000000", "1.00", "2.00", 50))
	mgr.Put(env, time.Second)

	runConsumerUntilEmpty(t, mgr, cfg)

	data, err := os.ReadFile(cfg.ErrorPath)
	require.NoError(t, err)
	require.Equal(t, "No mid price at 2026-01-01 12:00:00.000000 as latency 50.0ms is bigger than 20ms\n", string(data))

	_, err = os.ReadFile(cfg.MidPricePath)
	require.True(t, os.IsNotExist(err))
}

func TestConsumerSkipsRecordsMissingBidOrAsk(t *testing.T) {
	mgr := newTestQueue(t)
	dir := t.TempDir()
	cfg := consumer.Config{
		MidPricePath:     filepath.Join(dir, "mid.log"),
		ErrorPath:        filepath.Join(dir, "err.log"),
		LatencyThreshold: 20,
		BufferSize:       1,
	}

	env := envelope.New(envelope.Historical, 1, rec(0, "2026-01-01 12:00:00.000000", "", "2.00", 1))
	mgr.Put(env, time.Second)

	runConsumerUntilEmpty(t, mgr, cfg)

	_, err := os.ReadFile(cfg.MidPricePath)
	require.True(t, os.IsNotExist(err))
	_, err = os.ReadFile(cfg.ErrorPath)
	require.True(t, os.IsNotExist(err))
}
