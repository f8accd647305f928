// Package logging builds the process logger.
//
// Components in this module take a *zerolog.Logger and fall back to a no-op
// logger when it is nil. This package only constructs the root logger for the
// CLI and examples.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field names shared by every component.
const (
	FieldToolID   = "tool_id"
	FieldTenantID = "tenant_id"
	FieldExecID   = "exec_id"
	FieldDigest   = "digest"
	FieldState    = "state"
	FieldDuration = "duration"
)

// Config holds logger configuration.
type Config struct {
	Level  string    // debug, info, warn, error
	Pretty bool      // human-readable console output instead of JSON
	Output io.Writer // defaults to os.Stderr
}

// New creates a logger from cfg. An unknown level is an error.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// OrNop returns *l, or a no-op logger when l is nil.
func OrNop(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return *l
}

// Writer adapts a logger into an io.Writer that emits one debug event per
// line written. It is used to capture interpreter output.
func Writer(l zerolog.Logger, stream string) io.Writer {
	return &lineWriter{logger: l, stream: stream}
}

type lineWriter struct {
	logger zerolog.Logger
	stream string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		w.logger.Debug().Str("stream", w.stream).Msg(line)
	}
	return len(p), nil
}
