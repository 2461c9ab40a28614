package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the logger output.
type Config struct {
	Service     string
	Level       string
	Environment string
}

// New creates a zerolog logger. Development environments get human-readable console output,
// everything else gets JSON lines on stdout.
func New(cfg Config) *zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Environment == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return NewWithWriter(out, cfg)
}

// NewWithWriter creates a zerolog logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) *zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	l := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()

	return &l
}
