// Package zerolog adapts github.com/rs/zerolog to fitmeter.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Logger implements fitmeter.Logger using zerolog.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger wraps a zerolog logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields ...fitmeter.Field) *Logger {
	ctx := l.logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{logger: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...fitmeter.Field) {
	write(l.logger.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...fitmeter.Field) {
	write(l.logger.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...fitmeter.Field) {
	write(l.logger.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...fitmeter.Field) {
	write(l.logger.Error(), msg, fields)
}

// write is a no-op when the level is disabled, in which case zerolog hands back a nil event
func write(event *zerolog.Event, msg string, fields []fitmeter.Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			event = event.AnErr(f.Key, v)
		case string:
			event = event.Str(f.Key, v)
		case uint64:
			event = event.Uint64(f.Key, v)
		case int:
			event = event.Int(f.Key, v)
		default:
			event = event.Interface(f.Key, v)
		}
	}
	event.Msg(msg)
}
