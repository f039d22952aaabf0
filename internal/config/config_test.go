// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_LoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Checkpoints.MaxCheckpoints != 50 {
		t.Errorf("expected 50 max checkpoints, got %d", cfg.Checkpoints.MaxCheckpoints)
	}
	if cfg.Executor.Policy != "whole_transaction" {
		t.Errorf("expected whole_transaction policy, got %s", cfg.Executor.Policy)
	}

	// Verify SnapsafeDir exists
	if _, err := os.Stat(cfg.SnapsafeDir); os.IsNotExist(err) {
		t.Error("SnapsafeDir should be created")
	}
	if _, err := os.Stat(cfg.LogDir); os.IsNotExist(err) {
		t.Error("LogDir should be created")
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".snapsafe")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	body := `checkpoints:
  max_checkpoints: 10
  concurrency: 2
executor:
  policy: partial
  step_timeout: 30s
  max_retries: 5
`
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Checkpoints.MaxCheckpoints != 10 {
		t.Errorf("expected 10 max checkpoints, got %d", cfg.Checkpoints.MaxCheckpoints)
	}
	if cfg.Executor.Policy != "partial" {
		t.Errorf("expected partial policy, got %s", cfg.Executor.Policy)
	}
	if cfg.Executor.StepTimeout.Std() != 30*time.Second {
		t.Errorf("expected 30s step timeout, got %s", cfg.Executor.StepTimeout.Std())
	}
	if cfg.Executor.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.Executor.MaxRetries)
	}

	// Unset fields keep their defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level, got %s", cfg.Logging.Level)
	}
}

func TestConfig_InvalidPolicy(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".snapsafe")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	body := "executor:\n  policy: yolo\n"
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(root); err == nil {
		t.Error("expected error for invalid policy")
	}
}

func TestConfig_SaveAndReload(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.Checkpoints.MaxCheckpoints = 7
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := Load(root)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Checkpoints.MaxCheckpoints != 7 {
		t.Errorf("expected 7 max checkpoints after reload, got %d", reloaded.Checkpoints.MaxCheckpoints)
	}
}
