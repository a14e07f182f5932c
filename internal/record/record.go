// Package record defines the immutable market-data record loaded from a
// CSV source and the lazy-parsed attribute bag it carries.
package record

import (
	"time"
)

// Record is an immutable quote loaded from the historical or live CSV
// source. Index is assigned by the source reader; after the historical set
// is sorted by EffectiveTime, Index reflects post-sort order.
type Record struct {
	Index           int
	SourceTimestamp time.Time
	LatencyMS       float64
	// Attrs carries every column from the source row, string-typed on the
	// wire and parsed lazily by consumers. SourceTimestamp and LatencyMS
	// are typed copies of the timestamp and latency columns; LoadCSV
	// rewrites Attrs["timestamp"] and Attrs["latency_ms"] in canonical form,
	// while bid_price/ask_price and unrecognized columns keep their raw strings.
	Attrs map[string]string
}

// EffectiveTime is SourceTimestamp plus LatencyMS — the moment the record
// "takes effect" and the sort key for historical replay.
func (r Record) EffectiveTime() time.Time {
	return r.SourceTimestamp.Add(time.Duration(r.LatencyMS * float64(time.Millisecond)))
}

// BidPrice returns the bid_price attribute and whether it is present.
func (r Record) BidPrice() (string, bool) {
	v, ok := r.Attrs["bid_price"]
	return v, ok && v != ""
}

// AskPrice returns the ask_price attribute and whether it is present.
func (r Record) AskPrice() (string, bool) {
	v, ok := r.Attrs["ask_price"]
	return v, ok && v != ""
}
