// Package queue implements the Queue Manager: a bounded, multi-producer
// multi-consumer FIFO of envelopes with overflow spill to disk.
//
// It wraps code.hybscloud.com/lfq's MPMC queue with the blocking-with-timeout
// put/get contract spec.md §4.1 requires, using code.hybscloud.com/iox's
// Backoff for the retry loop between non-blocking attempts — the same
// pattern the upstream package's own doc comment recommends for callers
// that need to wait on ErrWouldBlock.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"

	"github.com/sirupsen/logrus"

	"github.com/marketdata/replay/internal/envelope"
)

// PutResult reports the outcome of Put.
type PutResult int

const (
	Accepted PutResult = iota
	Spilled
)

// UnknownDepth is returned by Qsize when the depth cannot be determined.
const UnknownDepth = -1

// Manager is the Queue Manager described in spec.md §4.1. FIFO order is
// preserved for accepted envelopes; spilled envelopes carry no ordering
// guarantee relative to accepted ones.
//
// capacity is the logical bound an operator configures (spec.md §8 S4
// requires maxqueue=1 to work). lfq.NewMPMC panics below capacity 2, so the
// underlying queue is always built with at least 2 slots and Manager
// enforces the operator-requested, possibly smaller, bound itself via
// depth — an add-then-revert-if-over-threshold check, the same shape as the
// counter lfq.MPMC.Dequeue uses internally for livelock prevention.
type Manager struct {
	q        lfq.Queue[envelope.Envelope]
	capacity int64
	spillDir string
	spillCtr atomix.Int64
	depth    atomix.Int64
	closed   atomix.Bool
	log      logrus.FieldLogger
}

// NewManager creates a Queue Manager honoring the requested capacity
// (minimum 1) and spill directory, which is created if it does not exist.
func NewManager(capacity int, spillDir string, log logrus.FieldLogger) (*Manager, error) {
	if capacity < 1 {
		capacity = 1
	}
	if err := os.MkdirAll(spillDir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: creating spill dir: %w", err)
	}

	underlying := capacity
	if underlying < 2 {
		underlying = 2 // lfq.NewMPMC panics below 2; Manager enforces the real bound itself.
	}

	return &Manager{
		q:        lfq.NewMPMC[envelope.Envelope](underlying),
		capacity: int64(capacity),
		spillDir: spillDir,
		log:      log,
	}, nil
}

// Put blocks up to timeout for capacity. On success it returns Accepted.
// On timeout or after Close, the envelope is spilled to disk and Spilled
// is returned — Put never fails outright; a spill write failure is logged
// and Spilled is still the result, per spec.md §4.1 and §7.
func (m *Manager) Put(env envelope.Envelope, timeout time.Duration) PutResult {
	if !m.closed.LoadAcquire() {
		deadline := time.Now().Add(timeout)
		bo := iox.Backoff{}
		for {
			if m.closed.LoadAcquire() {
				break
			}
			if m.reserve() {
				if err := m.q.Enqueue(&env); err == nil {
					return Accepted
				}
				m.depth.AddAcqRel(-1) // reserved a logical slot the underlying queue couldn't back; release it
			}
			if time.Now().After(deadline) {
				break
			}
			bo.Wait()
		}
	}

	m.spill(env)
	return Spilled
}

// reserve claims one logical slot against the operator-configured capacity,
// independent of the underlying queue's real (possibly larger, due to
// lfq.NewMPMC's minimum-2 invariant) capacity.
func (m *Manager) reserve() bool {
	if m.depth.AddAcqRel(1) <= m.capacity {
		return true
	}
	m.depth.AddAcqRel(-1)
	return false
}

// Get blocks up to timeout for an envelope; returns (zero, false) on
// timeout or once Close has been called and the queue has drained.
func (m *Manager) Get(timeout time.Duration) (envelope.Envelope, bool) {
	deadline := time.Now().Add(timeout)
	bo := iox.Backoff{}
	for {
		env, err := m.q.Dequeue()
		if err == nil {
			m.depth.AddAcqRel(-1)
			return env, true
		}
		if m.closed.LoadAcquire() {
			// One last drained attempt: the queue may still hold envelopes
			// enqueued just before Close flipped the flag.
			if env, err := m.q.Dequeue(); err == nil {
				m.depth.AddAcqRel(-1)
				return env, true
			}
			return envelope.Envelope{}, false
		}
		if time.Now().After(deadline) {
			return envelope.Envelope{}, false
		}
		bo.Wait()
	}
}

// Qsize returns a best-effort current depth, or UnknownDepth if unavailable.
// The underlying lock-free queue deliberately omits an accurate length
// (cross-core synchronization would be required), so this tracks a
// separately maintained, approximate counter.
func (m *Manager) Qsize() int {
	return int(m.depth.LoadRelaxed())
}

// Close unblocks waiting Get calls and rejects further Put calls, which
// then spill. Close is idempotent.
func (m *Manager) Close() {
	if !m.closed.LoadAcquire() {
		m.closed.StoreRelease(true)
		if d, ok := m.q.(lfq.Drainer); ok {
			d.Drain()
		}
	}
}

// spill persists an envelope whose enqueue attempt failed. Spill files are
// named spill_<unix-ts>_<counter>.json so that the unique, monotone
// counter guarantees no collision across producers, per spec.md §3.
func (m *Manager) spill(env envelope.Envelope) {
	idx := m.spillCtr.AddAcqRel(1) - 1
	name := fmt.Sprintf("spill_%d_%d.json", time.Now().Unix(), idx)
	path := filepath.Join(m.spillDir, name)

	data, err := json.Marshal(env)
	if err != nil {
		m.log.WithError(err).Error("failed to encode envelope for spill")
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		m.log.WithError(err).WithField("path", path).Error("failed to spill message")
		return
	}
	m.log.WithField("path", path).WithField("index", env.Index).Warn("queue full or closed; spilled envelope")
}
