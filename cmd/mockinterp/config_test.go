package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/bridgectl/internal/mockinterp"
)

func TestLoadInterpConfigDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[mock]
response_delay_ms = 15
error_probability = 0.1

[[mock.scenarios]]
command = "execute_program"
probability = 0.25
kind = "injected"
message = "injected failure"
	`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadInterpConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ResponseDelay != 15*time.Millisecond {
		t.Fatalf("unexpected delay: %v", cfg.ResponseDelay)
	}
	if cfg.MaxPrograms != 100 {
		t.Fatalf("max_programs default not applied: %d", cfg.MaxPrograms)
	}
	if len(cfg.Scenarios) != 2 {
		t.Fatalf("unexpected scenarios: %+v", cfg.Scenarios)
	}
	if cfg.Scenarios[0].Command != "*" || cfg.Scenarios[0].Probability != 0.1 {
		t.Fatalf("blanket scenario missing: %+v", cfg.Scenarios[0])
	}
	if cfg.Scenarios[1].Command != "execute_program" {
		t.Fatalf("declared scenario missing: %+v", cfg.Scenarios[1])
	}
}

func TestLoadInterpConfigSharesBridgeConfigFile(t *testing.T) {
	// The bridge's own config template carries a [mock] table; the double
	// must accept the same file.
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
name = "bridge-ctl"
pool_size = 4
worker_cmd = ["mockinterp"]

[mock]
max_programs = 5
	`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadInterpConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxPrograms != 5 {
		t.Fatalf("unexpected max_programs: %d", cfg.MaxPrograms)
	}
}

func TestLoadInterpConfigRejectsBadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`
[[mock.scenarios]]
command = "ping"
probability = 2.0
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadInterpConfig(path); err == nil {
		t.Fatalf("expected probability validation error")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := mockinterp.DefaultConfig()
	if err := applyFlagOverrides(&cfg, 40, 7, 0.5); err != nil {
		t.Fatalf("overrides: %v", err)
	}
	if cfg.ResponseDelay != 40*time.Millisecond || cfg.MaxPrograms != 7 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Scenarios) != 1 || cfg.Scenarios[0].Command != "*" {
		t.Fatalf("blanket scenario not appended: %+v", cfg.Scenarios)
	}

	if err := applyFlagOverrides(&cfg, -1, -1, -1); err != nil {
		t.Fatalf("sentinel flags: %v", err)
	}
	if cfg.ResponseDelay != 40*time.Millisecond || cfg.MaxPrograms != 7 || len(cfg.Scenarios) != 1 {
		t.Fatalf("sentinel flags must not override: %+v", cfg)
	}

	if err := applyFlagOverrides(&cfg, -1, -1, 1.5); err == nil {
		t.Fatalf("expected probability range error")
	}
}
