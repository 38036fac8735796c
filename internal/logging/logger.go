package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"jobflow/internal/config"
)

// NewLogger builds the process logger: console output for humans, JSON
// otherwise. Unknown levels fall back to info.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Str("service", "jobflow").Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
