package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger

// NewLogger constructs the service logger. Development gets a console writer
// at debug level; other environments log JSON at info. An explicit level
// overrides the environment default.
func NewLogger(appEnv string, level ...string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, level...)
}

// NewCLILogger writes to stderr so command output on stdout stays clean.
func NewCLILogger(verbose bool) zerolog.Logger {
	lvl := zerolog.WarnLevel
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// NopLogger discards everything; used as the default for optional loggers.
func NopLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newLogger(out io.Writer, appEnv string, level ...string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if len(level) > 0 && strings.TrimSpace(level[0]) != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level[0]))); err == nil {
			lvl = parsed
		}
	}

	logger := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}
