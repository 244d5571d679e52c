// Package logging builds the zerolog loggers used by every service.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options controls logger output. It is embedded in each service's config.
type Options struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	Console bool   `env:"LOG_CONSOLE" envDefault:"false"`
}

// New returns a logger for service writing to stdout.
func New(service string, opts Options) zerolog.Logger {
	var w io.Writer = os.Stdout
	if opts.Console {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return NewWithWriter(w, service, opts.Level)
}

// NewWithWriter returns a JSON logger tagged with the service name.
// Unknown levels fall back to info.
func NewWithWriter(w io.Writer, service, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
}
