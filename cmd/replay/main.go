// Command replay drives the market-data replay engine: it wires the
// Queue Manager, Checkpoint Store, Historical and Live replayers, Replay
// Engine, Mid-Price Consumers, and Command Dispatcher together, then runs
// until the operator quits or the process receives a termination signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/marketdata/replay/internal/checkpoint"
	"github.com/marketdata/replay/internal/consumer"
	"github.com/marketdata/replay/internal/dispatcher"
	"github.com/marketdata/replay/internal/envelope"
	"github.com/marketdata/replay/internal/logging"
	"github.com/marketdata/replay/internal/queue"
	"github.com/marketdata/replay/internal/replay"
)

type options struct {
	Historical string  `long:"historical" required:"true" description:"Path to the historical CSV record source"`
	Live       string  `long:"live" description:"Path to the live simulation CSV (used to simulate a streaming source)"`
	MaxQueue   int     `long:"maxqueue" default:"10000" description:"Max queue size"`
	Consumers  int     `long:"consumers" default:"2" description:"Number of mid-price consumer workers"`
	TimeScale  float64 `long:"time-scale" default:"1.0" description:"Replay time scale (1.0 = real-time)"`

	CheckpointPath   string        `long:"checkpoint" default:"hist.checkpoint" description:"Path to the historical checkpoint file"`
	SpillDir         string        `long:"spill-dir" default:"./spill" description:"Directory for queue overflow spill files"`
	MidPricePath     string        `long:"mid-prices-log" default:"mid_prices.log" description:"Path to the mid-price output log"`
	ErrorsPath       string        `long:"errors-log" default:"errors.log" description:"Path to the latency-diversion error log"`
	LatencyThreshold float64       `long:"latency-threshold" default:"20" description:"Latency (ms) above which a historical record is diverted to errors.log"`
	BufferSize       int           `long:"buffer-size" default:"50" description:"Consumer output buffer size before an append-flush"`
	LiveEmitInterval time.Duration `long:"live-emit-interval" default:"1ms" description:"Fixed wall-clock cadence for the simulated live feed"`
	QsizeInterval    time.Duration `long:"qsize-interval" default:"1s" description:"Supervisor heartbeat interval for logging queue depth; 0 disables"`

	Log logging.Config `group:"Logging"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	log, err := logging.New(opts.Log)
	if err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queueMgr, err := queue.NewManager(opts.MaxQueue, opts.SpillDir, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create queue manager")
	}

	cpStore := checkpoint.NewStore(opts.CheckpointPath, log)
	hist, err := replay.NewHistorical(opts.Historical, queueMgr, cpStore, opts.TimeScale, log.WithField("component", "historical"))
	if err != nil {
		log.WithError(err).Fatal("failed to initialize historical replayer")
	}
	live := replay.NewLive("", opts.Live, opts.LiveEmitInterval, queueMgr, log.WithField("component", "live"))

	engine := replay.NewEngine(ctx, hist, live, log.WithField("component", "engine"))

	disp := dispatcher.New(engine, os.Stdin, log.WithField("component", "dispatcher"))
	go disp.Run()

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	consumerCfg := consumer.Config{
		MidPricePath:     opts.MidPricePath,
		ErrorPath:        opts.ErrorsPath,
		LatencyThreshold: opts.LatencyThreshold,
		BufferSize:       opts.BufferSize,
	}

	var wg sync.WaitGroup
	for i := 0; i < opts.Consumers; i++ {
		c := consumer.New(i, queueMgr, envelope.Historical, consumerCfg, log.WithField("component", "consumer"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(consumerCtx)
		}()
	}

	go heartbeat(ctx, queueMgr, opts.QsizeInterval, log)

	select {
	case <-ctx.Done():
		log.Info("signal received, shutting down")
	case <-disp.Quit():
	}

	engine.StopAll()
	cancelConsumers()
	queueMgr.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Warn("consumers did not exit within the grace period")
	}

	log.Info("replay engine and consumers terminated")
}

// heartbeat restores main.py's once-a-second debug-level queue-depth log
// (SPEC_FULL.md's supplemented-features §1): purely observational, it
// never reconfigures the queue.
func heartbeat(ctx context.Context, queueMgr *queue.Manager, interval time.Duration, log *logrus.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := queueMgr.Qsize(); n != queue.UnknownDepth {
				log.WithField("qsize", n).Debug("queue depth")
			}
		}
	}
}
