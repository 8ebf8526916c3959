package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/ruleset/internal/core/config"
)

// newLogger builds a zerolog logger writing JSON or console text to w.
func newLogger(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	out := w
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "ruleset").Logger(), nil
}
