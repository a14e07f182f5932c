package replay

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketdata/replay/internal/checkpoint"
	"github.com/marketdata/replay/internal/envelope"
	"github.com/marketdata/replay/internal/queue"
	"github.com/marketdata/replay/internal/record"
)

// waitSlice bounds each pacing sleep so pause/stop/mode-switch requests are
// observed with sub-second latency, per spec.md §4.3.
const waitSlice = 500 * time.Millisecond

// Historical replays a sorted CSV record set, pacing emission against
// wall-clock time scaled by TimeScale. See spec.md §4.3 for the pacing
// algorithm and checkpoint discipline this type implements.
type Historical struct {
	queueMgr   *queue.Manager
	checkpoint *checkpoint.Store
	timeScale  float64
	log        logrus.FieldLogger

	rows []record.Record // sorted ascending by EffectiveTime

	mu            sync.Mutex
	nextIndex     int
	startWall     time.Time
	startEffective time.Time

	paused  atomic.Bool
	seq     atomic.Uint64
	running atomic.Bool
}

// NewHistorical loads csvPath, sorts its rows by effective time, and
// restores any existing checkpoint so replay resumes at the right index.
func NewHistorical(csvPath string, queueMgr *queue.Manager, cpStore *checkpoint.Store, timeScale float64, log logrus.FieldLogger) (*Historical, error) {
	rows, err := record.LoadCSV(csvPath, log)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].EffectiveTime().Before(rows[j].EffectiveTime())
	})
	for i := range rows {
		rows[i].Index = i
	}

	h := &Historical{
		queueMgr:   queueMgr,
		checkpoint: cpStore,
		timeScale:  timeScale,
		log:        log,
		rows:       rows,
	}
	h.paused.Store(false)

	cp, err := cpStore.Load()
	if err != nil {
		return nil, err
	}
	if cp != nil {
		h.nextIndex = int(cp.LastIndex) + 1
		if t, err := time.Parse(time.RFC3339Nano, cp.LastEffectiveTime); err == nil {
			h.startEffective = t
		}
		log.WithField("index", h.nextIndex).WithField("effective", cp.LastEffectiveTime).
			Info("resuming historical replay from checkpoint")
	}
	return h, nil
}

// Start launches the pacing loop in its own goroutine. It is a no-op if
// the loop is already running or there is nothing left to replay.
func (h *Historical) Start(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	if h.nextIndex >= len(h.rows) {
		h.log.Info("no historical data to replay (index >= rows)")
		h.running.Store(false)
		return
	}
	go h.run(ctx)
}

// Stop terminates the run loop at the next wait-slice boundary. Idempotent.
func (h *Historical) Stop() {
	h.running.Store(false)
}

// Pause flips the consulted-before-each-wait-slice flag. Idempotent.
func (h *Historical) Pause() {
	h.paused.Store(true)
	h.log.Info("historical replay paused")
}

// Resume clears the pause flag. Idempotent.
func (h *Historical) Resume() {
	h.paused.Store(false)
	h.log.Info("historical replay resumed")
}

func (h *Historical) run(ctx context.Context) {
	defer h.running.Store(false)

	h.mu.Lock()
	idx := h.nextIndex
	first := h.rows[idx].EffectiveTime()
	h.startWall = time.Now()
	if h.startEffective.IsZero() {
		h.startEffective = first
	}
	startWall, startEffective := h.startWall, h.startEffective
	h.mu.Unlock()

	h.log.WithField("index", idx).WithField("effective", first).Info("historical replay started")

	for idx < len(h.rows) {
		if !h.running.Load() {
			break
		}
		if h.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(waitSlice):
			}
			continue
		}

		rec := h.rows[idx]
		effective := rec.EffectiveTime()
		// No catch-up compression: the schedule's reference point never
		// shifts to absorb being behind, per spec.md §4.3 and §9.
		deltaEffective := effective.Sub(startEffective).Seconds() / h.timeScale
		target := startWall.Add(time.Duration(deltaEffective * float64(time.Second)))

		sleep := time.Until(target)
		if sleep > 0 {
			wait := sleep
			if wait > waitSlice {
				wait = waitSlice
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		env := envelope.New(envelope.Historical, h.seq.Add(1)-1, rec)
		result := h.queueMgr.Put(env, waitSlice)
		if result == queue.Spilled {
			h.log.WithField("index", idx).Debug("historical envelope spilled rather than enqueued")
		} else {
			h.log.WithField("index", idx).WithField("effective", effective).Info("historical envelope enqueued")
		}

		// Checkpoint after every successful enqueue or spill: both are
		// durable exits of the producer, per spec.md §4.3.
		if err := h.checkpoint.Save(int64(idx), effective.Format(time.RFC3339Nano)); err != nil {
			h.log.WithError(err).Warn("failed to save checkpoint; continuing with prior checkpoint valid")
		}

		h.mu.Lock()
		h.nextIndex = idx + 1
		h.mu.Unlock()
		idx++
	}

	h.log.Info("historical replay finished or stopped")
}
