// Package logging wraps a logiface logger backed by zerolog, implementing
// the small EventLogger surfaces internal/aggregator and cmd/orbitd depend
// on without coupling them to a concrete logging library.
package logging

import (
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger wraps a logiface.Logger configured with the zerolog backend.
type Logger struct {
	l *logiface.Logger[*izerolog.Event]
}

// New builds a Logger writing structured JSON to os.Stderr at the given
// minimum level ("debug", "info", "warn", "error"; unrecognized values fall
// back to "info").
func New(level string) *Logger {
	z := zerolog.New(os.Stderr).With().Timestamp().Logger()

	lvl := izerolog.L.LevelInformational()
	switch level {
	case "debug":
		lvl = izerolog.L.LevelDebug()
	case "warn", "warning":
		lvl = izerolog.L.LevelWarning()
	case "error":
		lvl = izerolog.L.LevelError()
	}

	return &Logger{
		l: izerolog.L.New(izerolog.L.WithZerolog(z), izerolog.L.WithLevel(lvl)),
	}
}

// Warn implements aggregator.EventLogger.
func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log(l.l.Warning(), msg, fields)
}

// Info implements aggregator.EventLogger.
func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(l.l.Info(), msg, fields)
}

// Error logs at error level. Not required by aggregator.EventLogger but
// used directly by cmd/orbitd for startup failures.
func (l *Logger) Error(msg string, err error, fields map[string]any) {
	b := l.l.Err()
	if err != nil {
		b = b.Err(err)
	}
	l.log(b, msg, fields)
}

func (l *Logger) log(b *logiface.Builder[*izerolog.Event], msg string, fields map[string]any) {
	for k, v := range fields {
		b = b.Any(k, v)
	}
	b.Log(msg)
}
