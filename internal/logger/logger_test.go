package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, &config.LoggingConfig{Level: "WARN"})
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "nodehostd") {
		t.Errorf("expected warn line with service field: %q", out)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, &config.LoggingConfig{Level: "bogus"})
	log.Debug().Msg("debug")
	log.Info().Msg("info")
	out := buf.String()
	if strings.Contains(out, "debug") {
		t.Errorf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "info") {
		t.Errorf("expected info line: %q", out)
	}
}

func TestSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, &config.LoggingConfig{Level: "INFO"})
	defer SetLevel("INFO")

	log.Debug().Msg("first")
	if got := SetLevel("debug"); got != zerolog.DebugLevel {
		t.Fatalf("SetLevel = %s", got)
	}
	log.Debug().Msg("second")
	out := buf.String()
	if strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("level change not applied: %q", out)
	}
}
