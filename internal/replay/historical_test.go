package replay_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/replay/internal/checkpoint"
	"github.com/marketdata/replay/internal/queue"
	"github.com/marketdata/replay/internal/replay"
)

func writeHistCSV(t *testing.T, rows string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hist.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func newQueueManager(t *testing.T) *queue.Manager {
	t.Helper()
	log, _ := test.NewNullLogger()
	mgr, err := queue.NewManager(16, filepath.Join(t.TempDir(), "spill"), log)
	require.NoError(t, err)
	return mgr
}

func TestHistoricalReplaysRowsInEffectiveTimeOrder(t *testing.T) {
	csvPath := writeHistCSV(t, "timestamp,bid_price,ask_price\n"+
		"2026-01-01 12:00:00.100000,2.00,2.10\n"+
		"2026-01-01 12:00:00.000000,1.00,1.10\n")

	mgr := newQueueManager(t)
	log, _ := test.NewNullLogger()
	cpStore := checkpoint.NewStore(filepath.Join(t.TempDir(), "h.checkpoint"), log)

	// High TimeScale collapses the pacing delay so the test runs fast.
	hist, err := replay.NewHistorical(csvPath, mgr, cpStore, 1_000_000, log)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hist.Start(ctx)

	first, ok := mgr.Get(time.Second)
	require.True(t, ok)
	second, ok := mgr.Get(time.Second)
	require.True(t, ok)

	require.Equal(t, "1.00", first.Record.Attrs["bid_price"])
	require.Equal(t, "2.00", second.Record.Attrs["bid_price"])

	hist.Stop()
}

func TestHistoricalResumesFromCheckpoint(t *testing.T) {
	csvPath := writeHistCSV(t, "timestamp,bid_price,ask_price\n"+
		"2026-01-01 12:00:00.000000,1.00,1.10\n"+
		"2026-01-01 12:00:01.000000,2.00,2.10\n")

	mgr := newQueueManager(t)
	log, _ := test.NewNullLogger()
	cpPath := filepath.Join(t.TempDir(), "h.checkpoint")
	cpStore := checkpoint.NewStore(cpPath, log)
	require.NoError(t, cpStore.Save(0, "2026-01-01T12:00:00Z"))

	hist, err := replay.NewHistorical(csvPath, mgr, cpStore, 1_000_000, log)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hist.Start(ctx)

	env, ok := mgr.Get(time.Second)
	require.True(t, ok)
	require.Equal(t, "2.00", env.Record.Attrs["bid_price"])

	hist.Stop()
}

func TestHistoricalStartNoOpWhenExhausted(t *testing.T) {
	csvPath := writeHistCSV(t, "timestamp,bid_price,ask_price\n"+
		"2026-01-01 12:00:00.000000,1.00,1.10\n")

	mgr := newQueueManager(t)
	log, _ := test.NewNullLogger()
	cpPath := filepath.Join(t.TempDir(), "h.checkpoint")
	cpStore := checkpoint.NewStore(cpPath, log)
	require.NoError(t, cpStore.Save(0, "2026-01-01T12:00:00Z")) // only row already consumed

	hist, err := replay.NewHistorical(csvPath, mgr, cpStore, 1, log)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	hist.Start(ctx)

	_, ok := mgr.Get(100 * time.Millisecond)
	require.False(t, ok)
}
