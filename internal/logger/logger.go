// Package logger provides structured logging for fractalnote
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for interactive use
	Output io.Writer
	// LogFile, when set, appends JSON lines to the file instead of Output
	LogFile string
}

const logFilePerm = 0o664

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New creates a structured logger. The returned closer releases the log
// file, if one was opened, and is always safe to call.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	closer := func() error { return nil }

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerm)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		output = zerolog.SyncWriter(f)
		closer = f.Close
	} else if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	l := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "fractalnote").
		Logger()

	return l, closer, nil
}

// Component returns a child logger tagged with a component name
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Op starts an event for a completed store operation. Failed operations are
// logged at warn so routine conflicts stay visible without being errors.
func Op(l zerolog.Logger, op string, started time.Time, err error) *zerolog.Event {
	ev := l.Info()
	if err != nil {
		ev = l.Warn().Err(err)
	}
	return ev.Str("op", op).Dur("duration", time.Since(started))
}
