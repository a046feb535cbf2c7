package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/astrade-api/internal/config"
)

func TestSetup_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "astrade.log")

	closer := Setup("production", config.LogConfig{Level: "warn", File: path, MaxSizeMB: 1})
	log.Info().Msg("filtered out")
	log.Warn().Str("component", "test").Msg("kept")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "filtered out") {
		t.Error("info line should be below the configured level")
	}
	if !strings.Contains(out, `"component":"test"`) || !strings.Contains(out, `"message":"kept"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestSetup_BadLevelFallsBackToInfo(t *testing.T) {
	closer := Setup("development", config.LogConfig{Level: "loud"})
	defer closer.Close()

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("level = %s, want info", zerolog.GlobalLevel())
	}
}
