// Package logging wires up the shared logrus logger, following the
// LogConfig pattern estuary-flow's flowctl command uses (level + format,
// both validated by jessevdk/go-flags' `choice:` tags at the CLI layer).
package logging

import (
	"github.com/sirupsen/logrus"
)

// Config configures handling of application log events.
type Config struct {
	Level  string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// New builds a standalone *logrus.Logger from cfg rather than mutating the
// package-level logrus singleton, so multiple components (and tests) can
// run with independent loggers.
func New(cfg Config) (*logrus.Logger, error) {
	log := logrus.New()

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "color":
		log.SetFormatter(&logrus.TextFormatter{ForceColors: true})
	default:
		log.SetFormatter(&logrus.TextFormatter{})
	}

	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	return log, nil
}
