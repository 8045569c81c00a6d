// Package logging configures the global zerolog logger for the monitor and
// derives per-component loggers from it.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level names accepted in configuration. "warning" is accepted as an alias
// of "warn", and names are case-insensitive.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ErrUnknownLevel is returned for a level name ParseLevel does not know.
var ErrUnknownLevel = errors.New("unknown log level")

var levels = map[string]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level to output. Empty means info.
	Level string

	// Pretty switches from JSON lines to console output.
	Pretty bool

	// Output receives log lines. Nil means os.Stderr.
	Output io.Writer
}

// ParseLevel maps a configured level name to its zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level, nil
	}
	return zerolog.NoLevel, fmt.Errorf("%w %q", ErrUnknownLevel, name)
}

// Setup installs the global logger and level. An unknown level leaves the
// current logger untouched.
func Setup(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return log.Logger, err
		}
		level = parsed
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return log.Logger, nil
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: relay attempts (relay, status, duration), per-app progress inside a
// round, results discarded for apps removed mid-session, wiring details.
//
// Info: round start and finish (round, pending, concurrency), session
// summary (mode, rounds, updated, failed), apps added or removed, server
// startup and shutdown.
//
// Warn: degraded fetches that fell back to 0, relay failures and cooldowns,
// store write failures, notification delivery failures.
//
// Error: configuration errors and startup failures (store load, Redis).
//
// Context fields: component, app_id, relay, status, kind, round, pending,
// concurrency, duration.
