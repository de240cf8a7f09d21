// Package logging configures structured logging for every Memento subsystem.
// Grounded on common/logging.go's OutputSplitter (stderr for error/fatal,
// stdout otherwise) and common/logger.go's LoggerConfig/NewLogger split,
// generalized from a fixed service-wide logger into one every subsystem
// constructor can accept a component-scoped entry from.
package logging

import (
	"bytes"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Format selects the logrus formatter.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config tunes the root logger.
type Config struct {
	Level      string // debug/info/warn/error/fatal
	Format     Format
	TimeFormat string
}

// DefaultConfig returns sensible development defaults.
func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatText, TimeFormat: time.RFC3339}
}

// outputSplitter routes error/fatal-level formatted lines to stderr and
// everything else to stdout, exactly as common.OutputSplitter does.
type outputSplitter struct{}

func (outputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// New builds a *logrus.Logger configured per cfg, with the stdout/stderr
// split and formatter the teacher repo uses across its services.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	if cfg.Format == FormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: timeFormat, FullTimestamp: true})
	}

	logger.SetOutput(outputSplitter{})
	return logger
}

// WithComponent scopes a logger to a subsystem name ("rollback", "pipeline",
// "temporal", …), mirroring the logger.WithField("component", …) convention
// used throughout coordinator/coordinator.go.
func WithComponent(logger *logrus.Logger, name string) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", name)
}

// OrDefault returns entry if non-nil, otherwise a component-scoped entry off
// the standard logger. Every subsystem constructor uses this so a nil
// logger argument never panics.
func OrDefault(entry *logrus.Entry, component string) *logrus.Entry {
	if entry != nil {
		return entry
	}
	return WithComponent(logrus.StandardLogger(), component)
}
