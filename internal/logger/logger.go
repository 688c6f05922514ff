package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/rs/zerolog"
)

func SetupLogger(cfg *config.LoggingConfig) zerolog.Logger {
	return New(os.Stdout, cfg)
}

// New builds the daemon logger writing human-readable lines to out. The
// level is applied globally so that it can be changed while running.
func New(out io.Writer, cfg *config.LoggingConfig) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
	}

	SetLevel(cfg.Level)
	zerolog.TimeFieldFormat = time.RFC3339

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	logger := zerolog.New(consoleWriter).
		With().
		Timestamp().
		Caller().
		Str("service", "nodehostd").
		Str("host", hostname).
		Logger()

	return logger
}

// SetLevel parses raw and makes it the global level, falling back to info.
func SetLevel(raw string) zerolog.Level {
	levelStr := strings.ToLower(strings.TrimSpace(raw))
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}
