package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

const minimalConfig = `
card:
  threshold: 25
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Expected default sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Fund.RequestTimeout != 15 {
		t.Errorf("Expected default request timeout 15, got %d", cfg.Fund.RequestTimeout)
	}
	if cfg.Fund.GetRequestTimeout() != 15*time.Second {
		t.Errorf("Expected 15s timeout, got %v", cfg.Fund.GetRequestTimeout())
	}
	if len(cfg.Card.Tiers) != 4 {
		t.Errorf("Expected 4 default tier names, got %v", cfg.Card.Tiers)
	}
	if !strings.Contains(cfg.Fund.Pattern, "{{.Nickname}}") {
		t.Errorf("Expected a default fund pattern, got %q", cfg.Fund.Pattern)
	}
	if cfg.Card.Encouragement == "" {
		t.Error("Expected a default encouragement line")
	}
	if cfg.PK.SessionDir != "pk_sessions" || cfg.PK.SnapshotDir != "pk_snapshots" {
		t.Errorf("Expected default PK directories, got %q and %q", cfg.PK.SessionDir, cfg.PK.SnapshotDir)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path, got %q", cfg.Metrics.Path)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
fund:
  scan_interval: 120
card:
  threshold: 50
  tiers: ["N", "R", "SR"]
broadcast:
  enabled: true
  webhook_url: https://chat.example.com/hooks/abc
  send_delay: 500
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Fund.ScanInterval != 120 {
		t.Errorf("Expected scan interval 120, got %d", cfg.Fund.ScanInterval)
	}
	if cfg.Card.Threshold != 50 {
		t.Errorf("Expected threshold 50, got %v", cfg.Card.Threshold)
	}
	if len(cfg.Card.Tiers) != 3 {
		t.Errorf("Expected 3 tier names, got %v", cfg.Card.Tiers)
	}
	if cfg.Broadcast.GetSendDelay() != 500*time.Millisecond {
		t.Errorf("Expected 500ms send delay, got %v", cfg.Broadcast.GetSendDelay())
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("TAOBA_ACCOUNT", "13800000000")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Platforms.Taoba.Account != "13800000000" {
		t.Errorf("Expected env taoba account, got %q", cfg.Platforms.Taoba.Account)
	}
}

func TestTierName(t *testing.T) {
	card := CardConfig{Tiers: []string{"普通", "稀有"}}
	if got := card.TierName(0); got != "普通" {
		t.Errorf("Expected 普通, got %q", got)
	}
	if got := card.TierName(1); got != "稀有" {
		t.Errorf("Expected 稀有, got %q", got)
	}
	if got := card.TierName(5); got != "Tier 5" {
		t.Errorf("Expected numeric fallback, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing threshold",
			`logging: {level: info}`,
			"card.threshold",
		},
		{
			"bad driver",
			"database:\n  driver: mysql\ncard:\n  threshold: 25\n",
			"database.driver",
		},
		{
			"postgres without host",
			"database:\n  driver: postgres\ncard:\n  threshold: 25\n",
			"database.postgres.host",
		},
		{
			"broadcast enabled without webhook",
			"broadcast:\n  enabled: true\ncard:\n  threshold: 25\n",
			"broadcast.webhook_url",
		},
		{
			"negative report interval",
			"pk:\n  report_interval: -1\ncard:\n  threshold: 25\n",
			"pk.report_interval",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.content))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("Expected error to mention %q, got %v", c.wantErr, err)
			}
		})
	}
}
