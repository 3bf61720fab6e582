package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if cfg.LogFilter != "info" {
		t.Errorf("LogFilter = %q; want info", cfg.LogFilter)
	}
	if !cfg.AutoPlayPause {
		t.Error("AutoPlayPause should default to true")
	}
	if !cfg.BatteryStudy.Enabled {
		t.Error("BatteryStudy.Enabled should default to true")
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v; want 5s", cfg.ReconnectDelay)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_filter: debug
known_devices:
  - "AA:BB:CC:DD:EE:FF"
  - "11:22:33:44:55:66"
auto_play_pause: false
battery_study:
  enabled: false
  path: /tmp/study.db
reconnect_delay: 30s
probe_timeout: 3s
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.LogFilter != "debug" {
		t.Errorf("LogFilter = %q", cfg.LogFilter)
	}
	if len(cfg.KnownDevices) != 2 || cfg.KnownDevices[0] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("KnownDevices = %v", cfg.KnownDevices)
	}
	if cfg.AutoPlayPause {
		t.Error("AutoPlayPause should be false")
	}
	if cfg.BatteryStudy.Enabled {
		t.Error("BatteryStudy.Enabled should be false")
	}
	if cfg.BatteryStudy.Path != "/tmp/study.db" {
		t.Errorf("BatteryStudy.Path = %q", cfg.BatteryStudy.Path)
	}
	if cfg.ReconnectDelay != 30*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.ReconnectDelay)
	}
	if cfg.ProbeTimeout != 3*time.Second {
		t.Errorf("ProbeTimeout = %v", cfg.ProbeTimeout)
	}
}

func TestLoadFromMalformedFileReturnsDefaultsAndError(t *testing.T) {
	path := writeConfig(t, "log_filter: [unclosed\n")

	cfg, err := LoadFrom(path)
	if err == nil {
		t.Fatal("malformed file should return an error")
	}
	// the daemon logs the error and keeps running on these
	if cfg.LogFilter != Default().LogFilter {
		t.Errorf("fallback LogFilter = %q", cfg.LogFilter)
	}
	if cfg.ReconnectDelay != Default().ReconnectDelay {
		t.Errorf("fallback ReconnectDelay = %v", cfg.ReconnectDelay)
	}
}

func TestLoadFromRepairsNonPositiveDurations(t *testing.T) {
	path := writeConfig(t, "reconnect_delay: 0s\nprobe_timeout: -5s\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.ReconnectDelay != Default().ReconnectDelay {
		t.Errorf("ReconnectDelay = %v; want default", cfg.ReconnectDelay)
	}
	if cfg.ProbeTimeout != Default().ProbeTimeout {
		t.Errorf("ProbeTimeout = %v; want default", cfg.ProbeTimeout)
	}
}

func TestLoadFromExpandsStudyPath(t *testing.T) {
	path := writeConfig(t, "battery_study:\n  path: ~/studies/battery.db\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "studies/battery.db"); cfg.BatteryStudy.Path != want {
		t.Errorf("BatteryStudy.Path = %q; want %q", cfg.BatteryStudy.Path, want)
	}
}
