// Package logging provides zerolog-based logging for conductor.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger initialization.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// Format is the output format (json, console).
	Format string

	// EnableCaller adds caller information to log lines.
	EnableCaller bool

	// Output overrides the destination (default: stderr).
	Output io.Writer
}

var (
	mu   sync.RWMutex
	base = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
)

// Init configures the package-level logger. Safe to call more than once.
func Init(cfg Config) {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stderr
	if cfg.Output != nil {
		out = cfg.Output
	}
	if strings.ToLower(cfg.Format) != "json" {
		out = consoleWriter(out)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.EnableCaller {
		logger = logger.Caller()
	}

	mu.Lock()
	base = logger.Logger()
	mu.Unlock()
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", name).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}
