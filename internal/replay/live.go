package replay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketdata/replay/internal/envelope"
	"github.com/marketdata/replay/internal/queue"
	"github.com/marketdata/replay/internal/record"
)

// Live emits records from a simulated file-backed source at a fixed wall
// clock cadence, ignoring embedded timestamps, per spec.md §4.4. The real
// websocket backend is a declared stub (spec.md §1) — WSEndpoint is
// accepted purely to document where a streaming source would plug in.
type Live struct {
	queueMgr     *queue.Manager
	wsEndpoint   string
	simCSVPath   string
	emitInterval time.Duration
	log          logrus.FieldLogger

	paused  atomic.Bool
	running atomic.Bool
	seq     atomic.Uint64
}

// NewLive constructs a Live replayer. wsEndpoint, when non-empty, selects
// the websocket backend (unimplemented here); otherwise simCSVPath drives
// the simulated feed.
func NewLive(wsEndpoint, simCSVPath string, emitInterval time.Duration, queueMgr *queue.Manager, log logrus.FieldLogger) *Live {
	return &Live{
		queueMgr:     queueMgr,
		wsEndpoint:   wsEndpoint,
		simCSVPath:   simCSVPath,
		emitInterval: emitInterval,
		log:          log,
	}
}

// Start launches the live feed loop. No-op if already running.
func (l *Live) Start(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	if l.wsEndpoint != "" {
		go l.runWebsocket(ctx)
		return
	}
	go l.runSimulation(ctx)
}

// Stop terminates the loop at the next wait-slice boundary. Idempotent.
func (l *Live) Stop() {
	l.running.Store(false)
}

// Pause flips the consulted-before-each-emit flag. Idempotent.
func (l *Live) Pause() {
	l.paused.Store(true)
	l.log.Info("live replay paused")
}

// Resume clears the pause flag. Idempotent.
func (l *Live) Resume() {
	l.paused.Store(false)
	l.log.Info("live replay resumed")
}

func (l *Live) runSimulation(ctx context.Context) {
	defer l.running.Store(false)

	if l.simCSVPath == "" {
		l.log.Error("no websocket endpoint and no simulation CSV provided for live mode")
		return
	}

	rows, err := record.LoadCSV(l.simCSVPath, l.log)
	if err != nil {
		l.log.WithError(err).Error("failed to load live simulation CSV")
		return
	}
	l.log.Debug("live simulation starting")

	for i, rec := range rows {
		if !l.running.Load() {
			break
		}
		for l.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(waitSlice):
			}
			if !l.running.Load() {
				return
			}
		}

		env := envelope.New(envelope.Live, l.seq.Add(1)-1, rec)
		env.ReceivedAt = time.Now()
		result := l.queueMgr.Put(env, waitSlice)
		if result == queue.Spilled {
			l.log.WithField("seq", i).Debug("live envelope spilled rather than enqueued")
		} else {
			l.log.WithField("seq", i).Debug("live simulated envelope enqueued")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.emitInterval):
		}
	}
	l.log.Info("live simulation finished")
}

// runWebsocket is the declared stub for a real streaming backend, per
// spec.md §1 and §4.4: implementers may plug in a streaming source here
// that respects the same pause/stop contract as runSimulation.
func (l *Live) runWebsocket(ctx context.Context) {
	defer l.running.Store(false)
	l.log.Info("live websocket backend not implemented; this is a stub")
}
