package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Development gets a console writer at
// debug level; other environments write JSON at info unless LOG_LEVEL says otherwise.
func NewLogger(appEnv string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, os.Getenv("LOG_LEVEL"))
}

func newLogger(out io.Writer, appEnv, levelName string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName))); err == nil && levelName != "" {
		level = lvl
	}

	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("env", appEnv).
		Logger()
}

// Logger aliases zerolog.Logger so packages can accept a logger without
// importing the module directly.
type Logger = zerolog.Logger
