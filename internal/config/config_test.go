package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Campaign != DefaultCampaign || cfg.RecomputeInterval != DefaultRecomputeInterval {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, "campaign: 7\nrecompute_interval: 90s\nlisten_addr: \":9090\"\nlog_level: debug\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Campaign != 7 {
		t.Fatalf("campaign = %d, want 7", cfg.Campaign)
	}
	if cfg.RecomputeInterval != 90*time.Second {
		t.Fatalf("interval = %s, want 90s", cfg.RecomputeInterval)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("listen = %q", cfg.ListenAddr)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("level = %v, want debug", cfg.SlogLevel())
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "campaign: 7\n")
	t.Setenv("SALESPORTAL_CAMPAIGN", "3")
	t.Setenv("SALESPORTAL_RECOMPUTE_INTERVAL", "2m")
	t.Setenv("SALESPORTAL_LISTEN_ADDR", ":7070")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Campaign != 3 || cfg.RecomputeInterval != 2*time.Minute || cfg.ListenAddr != ":7070" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "negative campaign", content: "campaign: -1\n"},
		{name: "tiny interval", content: "recompute_interval: 10ms\n"},
		{name: "bad level", content: "log_level: chatty\n"},
		{name: "bad yaml", content: "campaign: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
