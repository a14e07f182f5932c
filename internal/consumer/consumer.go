// Package consumer implements the Mid-Price Consumer (spec.md §4.6): it
// drains envelopes from the Queue Manager, computes bid/ask mid-prices or
// diverts latency-breaching historical records to an error log, and
// batches both outputs before an append-only flush.
package consumer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joeycumines/go-microbatch"
	"github.com/sirupsen/logrus"

	"github.com/marketdata/replay/internal/envelope"
	"github.com/marketdata/replay/internal/queue"
)

const (
	// DefaultLatencyThresholdMS is the default latency_threshold tunable.
	DefaultLatencyThresholdMS = 20.0
	// DefaultBufferSize is the default buffer_size tunable.
	DefaultBufferSize = 50
	// getTimeout bounds each queue Get so the shutdown signal is observed
	// within roughly a second, per spec.md §4.6.
	getTimeout = time.Second
)

// Config holds the mid-price consumer's tunables (spec.md §6).
type Config struct {
	MidPricePath     string
	ErrorPath        string
	LatencyThreshold float64
	BufferSize       int
}

// Consumer drains one Queue Manager and writes to the two shared sink
// files. Spec.md §4.6's "open question — consumer mode" is preserved
// verbatim from the Python original: Mode is fixed at construction and
// never tracks the engine's actual mode, so the latency-diversion rule
// below fires purely off this field, regardless of an envelope's own
// Mode.
type Consumer struct {
	id       int
	queueMgr *queue.Manager
	mode     envelope.Mode
	cfg      Config
	log      logrus.FieldLogger

	mid *microbatch.Batcher[string]
	err *microbatch.Batcher[string]
}

// New constructs a Consumer. mode is fixed for this consumer's lifetime —
// see the Consumer doc comment for why that matters.
func New(id int, queueMgr *queue.Manager, mode envelope.Mode, cfg Config, log logrus.FieldLogger) *Consumer {
	if cfg.LatencyThreshold == 0 {
		cfg.LatencyThreshold = DefaultLatencyThresholdMS
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	c := &Consumer{id: id, queueMgr: queueMgr, mode: mode, cfg: cfg, log: log}
	c.mid = microbatch.NewBatcher[string](&microbatch.BatcherConfig{
		MaxSize:       cfg.BufferSize,
		FlushInterval: -1, // size-bound only, matching spec.md §4.6's buffer_size rule
	}, c.flushTo(cfg.MidPricePath))
	c.err = microbatch.NewBatcher[string](&microbatch.BatcherConfig{
		MaxSize:       cfg.BufferSize,
		FlushInterval: -1,
	}, c.flushTo(cfg.ErrorPath))
	return c
}

// flushTo returns a microbatch.BatchProcessor that append-writes a batch of
// lines to path in a single write call, relying on POSIX O_APPEND
// atomicity so concurrent consumers' flushes interleave safely rather than
// corrupt each other, per spec.md §4.6.
func (c *Consumer) flushTo(path string) microbatch.BatchProcessor[string] {
	return func(_ context.Context, lines []string) error {
		if len(lines) == 0 {
			return nil
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			c.log.WithError(err).WithField("path", path).Error("failed to open sink for append")
			return err
		}
		defer f.Close()

		var buf []byte
		for _, l := range lines {
			buf = append(buf, l...)
		}
		if _, err := f.Write(buf); err != nil {
			c.log.WithError(err).WithField("path", path).Error("failed to flush buffer")
			return err
		}
		return nil
	}
}

// Run drains the queue until ctx is canceled, then flushes both buffers
// unconditionally before returning.
func (c *Consumer) Run(ctx context.Context) {
	c.log.WithField("consumer", c.id).WithField("mode", c.mode).Info("mid-price consumer started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		default:
		}

		env, ok := c.queueMgr.Get(getTimeout)
		if !ok {
			continue
		}
		c.process(ctx, env)
	}
}

func (c *Consumer) shutdown() {
	flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = c.mid.Shutdown(flushCtx)
	_ = c.err.Shutdown(flushCtx)
	c.log.WithField("consumer", c.id).Info("mid-price consumer exiting")
}

func (c *Consumer) process(ctx context.Context, env envelope.Envelope) {
	rec := env.Record
	timestamp := rec.Attrs["timestamp"]

	bidStr, hasBid := rec.BidPrice()
	askStr, hasAsk := rec.AskPrice()
	if !hasBid || !hasAsk {
		c.log.WithField("index", rec.Index).Warn("skipping envelope with missing bid/ask")
		return
	}

	if c.mode == envelope.Historical && rec.LatencyMS > c.cfg.LatencyThreshold {
		line := fmt.Sprintf("No mid price at %s as latency %sms is bigger than %sms\n",
			timestamp, formatLatency(rec.LatencyMS), formatThreshold(c.cfg.LatencyThreshold))
		if _, err := c.err.Submit(ctx, line); err != nil {
			c.log.WithError(err).Warn("failed to submit error line")
		}
		return
	}

	bid, err := strconv.ParseFloat(bidStr, 64)
	if err != nil {
		c.log.WithField("index", rec.Index).WithError(err).Warn("failed to parse bid_price")
		return
	}
	ask, err := strconv.ParseFloat(askStr, 64)
	if err != nil {
		c.log.WithField("index", rec.Index).WithError(err).Warn("failed to parse ask_price")
		return
	}

	mid := 0.5 * (bid + ask)
	line := fmt.Sprintf("%s,%s\n", timestamp, strconv.FormatFloat(mid, 'f', -1, 64))
	if _, err := c.mid.Submit(ctx, line); err != nil {
		c.log.WithError(err).Warn("failed to submit mid-price line")
	}
}

// formatLatency mirrors Python's str() for a float: latency_ms is always
// parsed as a float (record.LoadCSV), so it always renders with a decimal
// point — e.g. 50 -> "50.0" — matching spec.md's S2 scenario exactly.
func formatLatency(ms float64) string {
	s := strconv.FormatFloat(ms, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s
		}
	}
	return s + ".0"
}

func formatThreshold(ms float64) string {
	if ms == float64(int64(ms)) {
		return strconv.FormatInt(int64(ms), 10)
	}
	return strconv.FormatFloat(ms, 'f', -1, 64)
}
