package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadBridgeConfigDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.toml")
	content := `
name = "bridge.alpha"
pool_size = 8
overflow = 3
worker_cmd = ["python3", "interp.py"]
cors_origins = ["http://localhost:3000"]

[mock]
response_delay_ms = 25
error_probability = 0.5
max_programs = 10
	`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadBridgeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "bridge.alpha" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.PoolSize != 8 || cfg.Overflow != 3 {
		t.Fatalf("unexpected pool sizing: %d/%d", cfg.PoolSize, cfg.Overflow)
	}
	if cfg.CheckoutTimeoutMs != 5000 {
		t.Fatalf("checkout timeout default not applied: %d", cfg.CheckoutTimeoutMs)
	}
	if cfg.OperationTimeoutMs != 30000 {
		t.Fatalf("operation timeout default not applied: %d", cfg.OperationTimeoutMs)
	}
	if cfg.AdminAddr != ":9200" {
		t.Fatalf("admin addr default not applied: %q", cfg.AdminAddr)
	}
	if len(cfg.WorkerCmd) != 2 || cfg.WorkerCmd[0] != "python3" {
		t.Fatalf("unexpected worker_cmd: %+v", cfg.WorkerCmd)
	}
	if cfg.Mock.ResponseDelayMs != 25 || cfg.Mock.ErrorProbability != 0.5 || cfg.Mock.MaxPrograms != 10 {
		t.Fatalf("unexpected mock config: %+v", cfg.Mock)
	}
	if cfg.CheckoutTimeout() != 5*time.Second {
		t.Fatalf("unexpected checkout duration: %v", cfg.CheckoutTimeout())
	}
}

func TestLoadBridgeConfigRequiresWorkerCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`
name = "bridge.alpha"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadBridgeConfig(path); err == nil {
		t.Fatalf("expected worker_cmd validation error")
	}
}

func TestLoadBridgeConfigRejectsBadProbability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`
worker_cmd = ["mockinterp"]

[mock]
error_probability = 1.5
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadBridgeConfig(path); err == nil {
		t.Fatalf("expected error_probability validation error")
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}

	cfg, err := LoadBridgeConfig(path)
	if err != nil {
		t.Fatalf("template should load cleanly: %v", err)
	}
	if cfg.PoolSize != 4 || cfg.Overflow != 2 {
		t.Fatalf("unexpected template sizing: %d/%d", cfg.PoolSize, cfg.Overflow)
	}
}
