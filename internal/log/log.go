// Package log wires the agent's structured logger.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level is one of the four levels the agent ever logs at.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the process-wide logger built by Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// RotateFile, if set, logs are additionally written to this file
	// path through a size-based rotating writer. No sub-command sets it.
	RotateFile string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init builds and returns the process-wide base logger. Components never
// reach for a package-level global; main wires this value (or a
// `.With()`-derived child of it) into every constructor explicitly.
func Init(cfg Config) zerolog.Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.JSONOutput {
		writers = append(writers, out)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	if cfg.RotateFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.RotateFile,
			MaxSize:    maxOr(cfg.MaxSizeMB, 50),
			MaxBackups: maxOr(cfg.MaxBackups, 5),
			MaxAge:     maxOr(cfg.MaxAgeDays, 28),
		})
	}

	var dest io.Writer
	if len(writers) == 1 {
		dest = writers[0]
	} else {
		dest = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(dest).With().Timestamp().Logger()
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Component returns a child logger tagged with the owning component name,
// the pattern every internal/* constructor uses to identify its own
// log lines without relying on call-site discipline.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
