// File: internal/logsink/zerolog.go
// Package logsink provides a zerolog-backed api.LogSink. cmd/netreactord
// uses it; the Server/Client façades default to api.NopLogSink and log
// through this sink only when it is passed in via WithLogger.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package logsink

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/netreactor/api"
)

// ZerologSink adapts api.LogSink to a zerolog.Logger.
type ZerologSink struct {
	logger zerolog.Logger
}

// New builds a ZerologSink writing structured JSON to w with the given
// minimum level. Pass os.Stderr for the common case.
func New(w io.Writer, min api.Level) *ZerologSink {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(min))
	return &ZerologSink{logger: logger}
}

// NewConsole builds a ZerologSink with human-readable console output,
// convenient for the cmd/netreactord CLI and examples.
func NewConsole(min api.Level) *ZerologSink {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return New(cw, min)
}

// Log implements api.LogSink.
func (s *ZerologSink) Log(level api.Level, component, message string, fields api.Fields) {
	ev := s.logger.WithLevel(toZerologLevel(level)).Str("component", component)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(message)
}

func toZerologLevel(l api.Level) zerolog.Level {
	switch l {
	case api.LevelTrace:
		return zerolog.TraceLevel
	case api.LevelDebug:
		return zerolog.DebugLevel
	case api.LevelInfo:
		return zerolog.InfoLevel
	case api.LevelWarning:
		return zerolog.WarnLevel
	case api.LevelError:
		return zerolog.ErrorLevel
	case api.LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
