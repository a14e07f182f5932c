// Package dispatcher maps line-oriented operator commands to Replay Engine
// operations (spec.md §4.7). It is a thin, out-of-core façade: it never
// touches queue or consumer state directly.
package dispatcher

import (
	"bufio"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Engine is the subset of *replay.Engine the dispatcher drives.
type Engine interface {
	StartHistorical()
	StartLive()
	Pause()
	Resume()
	StopAll()
}

// Dispatcher reads line-terminated commands and maps them to Engine
// operations: h=historical, l=live, p=pause, r=resume, q=stop and exit.
// Unknown input is warned and ignored.
type Dispatcher struct {
	engine Engine
	in     io.Reader
	log    logrus.FieldLogger
	quit   chan struct{}
}

// New returns a Dispatcher reading commands from in.
func New(engine Engine, in io.Reader, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{engine: engine, in: in, log: log, quit: make(chan struct{})}
}

// Quit is closed once a 'q' command has been dispatched.
func (d *Dispatcher) Quit() <-chan struct{} {
	return d.quit
}

// Run reads commands until EOF or a quit command, and runs on its own
// goroutine — callers should invoke it via `go d.Run()`.
func (d *Dispatcher) Run() {
	color.Cyan("Commands: h=historical, l=live, p=pause, r=resume, q=quit")
	scanner := bufio.NewScanner(d.in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if d.dispatch(cmd) {
			return
		}
	}
}

// dispatch handles a single command line, returning true if it was 'q'.
func (d *Dispatcher) dispatch(cmd string) (quit bool) {
	switch cmd {
	case "h":
		d.engine.StartHistorical()
	case "l":
		d.engine.StartLive()
	case "p":
		d.engine.Pause()
	case "r":
		d.engine.Resume()
	case "q":
		d.log.Info("quit requested via CLI")
		d.engine.StopAll()
		close(d.quit)
		return true
	default:
		d.log.WithField("command", cmd).Warn("unknown command")
	}
	return false
}
