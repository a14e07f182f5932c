package replay_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/replay/internal/replay"
)

func TestLiveSimulationEmitsAtFixedCadence(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "live.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"timestamp,bid_price,ask_price\n"+
			"2026-01-01 12:00:00.000000,1.00,1.10\n"+
			"2026-01-01 12:00:05.000000,2.00,2.10\n"), 0o644))

	mgr := newQueueManager(t)
	log, _ := test.NewNullLogger()
	live := replay.NewLive("", csvPath, 5*time.Millisecond, mgr, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	live.Start(ctx)

	first, ok := mgr.Get(time.Second)
	require.True(t, ok)
	second, ok := mgr.Get(time.Second)
	require.True(t, ok)

	require.False(t, first.ReceivedAt.IsZero())
	// The rows' embedded timestamps are 5s apart; emission follows the 5ms
	// emit interval instead.
	gap := second.ReceivedAt.Sub(first.ReceivedAt)
	require.GreaterOrEqual(t, gap, 5*time.Millisecond)
	require.Less(t, gap, time.Second)
	require.Equal(t, "1.00", first.Record.Attrs["bid_price"])
	require.Equal(t, "2.00", second.Record.Attrs["bid_price"])

	live.Stop()
}

func TestLiveWebsocketStubDoesNotPanic(t *testing.T) {
	log, _ := test.NewNullLogger()
	mgr := newQueueManager(t)
	live := replay.NewLive("wss://example.invalid", "", time.Millisecond, mgr, log)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NotPanics(t, func() { live.Start(ctx) })
	<-ctx.Done()
}
