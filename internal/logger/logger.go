package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	base  zerolog.Logger
	ready bool
	out   io.Writer = os.Stdout
)

// Init configures the global JSON logger.
//
// Environment variables (optional):
//   - LOG_LEVEL: debug|info|warn|error (default: info)
//   - LOG_PRETTY: true|false (default: false)
func Init() {
	level := parseLevel(getenv("LOG_LEVEL", "info"))
	pretty := strings.EqualFold(getenv("LOG_PRETTY", "false"), "true")

	zerolog.TimeFieldFormat = time.RFC3339Nano
	w := out
	if pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base = zerolog.New(w).With().Timestamp().Str("service", "stockpulse").Logger().Level(level)
	ready = true
}

// SetOutput redirects all subsequent log lines to w and re-initializes the
// logger. Tests use it to capture output.
func SetOutput(w io.Writer) {
	out = w
	Init()
}

// L returns the global logger. Call Init() once on startup.
func L() *zerolog.Logger {
	if !ready {
		Init()
	}
	return &base
}

// With returns a child logger tagged with the given component name.
func With(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "err":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
