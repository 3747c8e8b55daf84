package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()

	cfg, err := NewLoaderWithDirs(home, work).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SandboxBudget != 100*time.Millisecond {
		t.Errorf("SandboxBudget = %v, want 100ms", cfg.SandboxBudget)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if len(cfg.PluginDirs) != 2 {
		t.Fatalf("PluginDirs = %v, want two entries", cfg.PluginDirs)
	}
	if cfg.PluginDirs[1] != filepath.Join(work, ".fable", "plugins") {
		t.Errorf("project plugin dir = %q", cfg.PluginDirs[1])
	}
	if cfg.StorePath() != filepath.Join(work, ".fable", "data", "plugins.json") {
		t.Errorf("StorePath = %q", cfg.StorePath())
	}
}

func TestLoadProjectFileOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()

	dir := filepath.Join(work, ".fable")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	toml := `
sandbox_budget = "250ms"
trusted_plugins = ["inventory"]
log_level = "debug"
`
	if err := os.WriteFile(filepath.Join(dir, "fable.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoaderWithDirs(home, work).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SandboxBudget != 250*time.Millisecond {
		t.Errorf("SandboxBudget = %v, want 250ms", cfg.SandboxBudget)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !cfg.Trusted("inventory") {
		t.Error("Trusted(inventory) = false")
	}
	if cfg.Trusted("achievements") {
		t.Error("Trusted(achievements) = true")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()

	dir := filepath.Join(work, ".fable")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fable.toml"), []byte(`log_level = "debug"`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FABLE_LOG_LEVEL", "warn")
	t.Setenv("FABLE_TRUSTED_PLUGINS", "journal,themer")

	cfg, err := NewLoaderWithDirs(home, work).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if !cfg.Trusted("journal") || !cfg.Trusted("themer") {
		t.Errorf("TrustedPlugins = %v, want journal and themer", cfg.TrustedPlugins)
	}
}
