// Package zerolog adapts rs/zerolog to the wordsmith.Logger interface.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

// Logger wraps a zerolog.Logger.
type Logger struct {
	base zerolog.Logger
}

// NewLogger returns an adapter over an existing zerolog logger.
func NewLogger(base zerolog.Logger) *Logger {
	return &Logger{base: base}
}

func (l *Logger) Debug(msg string, fields ...wordsmith.Field) {
	l.emit(zerolog.DebugLevel, msg, fields)
}

func (l *Logger) Info(msg string, fields ...wordsmith.Field) {
	l.emit(zerolog.InfoLevel, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...wordsmith.Field) {
	l.emit(zerolog.WarnLevel, msg, fields)
}

func (l *Logger) Error(msg string, fields ...wordsmith.Field) {
	l.emit(zerolog.ErrorLevel, msg, fields)
}

func (l *Logger) emit(level zerolog.Level, msg string, fields []wordsmith.Field) {
	event := l.base.WithLevel(level)
	for _, f := range fields {
		event = event.Interface(f.Key, f.Value)
	}
	event.Msg(msg)
}
