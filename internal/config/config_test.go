package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.TickInterval != 10*time.Second {
		t.Errorf("TickInterval = %v, want 10s", cfg.TickInterval)
	}
	if cfg.IdleTicks != 3 || cfg.UnresponsiveTicks != 6 {
		t.Errorf("thresholds = (%d, %d), want (3, 6)", cfg.IdleTicks, cfg.UnresponsiveTicks)
	}
	if cfg.MaxChunkSize != 200 {
		t.Errorf("MaxChunkSize = %d, want 200", cfg.MaxChunkSize)
	}
	if cfg.CrashLoopLimit != 3 || cfg.CrashLoopWindow != 10*time.Minute {
		t.Errorf("crash loop policy = (%d, %v), want (3, 10m)", cfg.CrashLoopLimit, cfg.CrashLoopWindow)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstallRoot != "./.tmux_orchestrator" {
		t.Errorf("InstallRoot = %q, want default", cfg.InstallRoot)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "tick_interval: 30s\nmax_chunk_size: 500\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.TickInterval)
	}
	if cfg.MaxChunkSize != 500 {
		t.Errorf("MaxChunkSize = %d, want 500", cfg.MaxChunkSize)
	}
}

func TestLoadEnforcesMinimumTickInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: 1s\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickInterval != 10*time.Second {
		t.Errorf("TickInterval = %v, want enforced minimum 10s", cfg.TickInterval)
	}
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("install_root: /from-file\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv(envInstallRoot, "/from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstallRoot != "/from-env" {
		t.Errorf("InstallRoot = %q, want env override to win", cfg.InstallRoot)
	}
}

func TestLoadDerivesLogDirFromInstallRoot(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogDir != cfg.InstallRoot+"/logs" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, cfg.InstallRoot+"/logs")
	}
}
