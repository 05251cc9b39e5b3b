package config

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a leveled logger with timestamps. Development output is
// human readable; other environments log JSON.
func NewLogger(appEnv string, out io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == EnvDevelopment || verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == EnvDevelopment {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger
}
