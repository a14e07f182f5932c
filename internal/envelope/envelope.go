// Package envelope defines the wire object that flows across the Queue
// Manager boundary between producers and consumers.
package envelope

import (
	"time"

	"github.com/marketdata/replay/internal/record"
)

// Mode is the engine mode a producer was in when it emitted an Envelope.
type Mode string

const (
	Historical Mode = "historical"
	Live       Mode = "live"
)

// Envelope is the immutable object placed on the Queue Manager. Ownership
// transfers from producer to consumer; nothing mutates an Envelope after
// construction.
type Envelope struct {
	Mode Mode `json:"mode"`
	// Sequence is the producer-local monotone counter; index is the
	// underlying Record's index.
	Sequence uint64 `json:"sequence"`
	Index    int    `json:"index"`
	// EffectiveTime is carried as an ISO-8601 string for cross-process
	// portability (spill files, future wire formats).
	EffectiveTime string `json:"effective_time"`
	// ReceivedAt is set only for live envelopes: the wall time of enqueue.
	ReceivedAt time.Time    `json:"received_at,omitempty"`
	Record     record.Record `json:"record"`
}

// New builds an Envelope for the given mode/sequence/record.
func New(mode Mode, sequence uint64, rec record.Record) Envelope {
	return Envelope{
		Mode:          mode,
		Sequence:      sequence,
		Index:         rec.Index,
		EffectiveTime: rec.EffectiveTime().Format(time.RFC3339Nano),
		Record:        rec,
	}
}
