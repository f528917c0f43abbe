// Package zerolog adapts a zerolog.Logger to logger.Logger.
package zerolog

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealgeo/pkg/logger"
)

type Logger struct {
	logger zerolog.Logger
}

var _ logger.Logger = (*Logger)(nil)

func New(l zerolog.Logger) *Logger {
	return &Logger{logger: l}
}

// FromWriter logs JSON lines with timestamps to w.
func FromWriter(w io.Writer) *Logger {
	return New(zerolog.New(w).With().Timestamp().Logger())
}

func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error().Fields(args).Msg(msg)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn().Fields(args).Msg(msg)
}

func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info().Fields(args).Msg(msg)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug().Fields(args).Msg(msg)
}
