package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Orchestrator.MaxConcurrent != 3 {
		t.Errorf("expected max_concurrent 3, got %d", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.TaskTimeout != 5*time.Minute {
		t.Errorf("expected task_timeout 5m, got %s", cfg.Orchestrator.TaskTimeout)
	}
	if cfg.Bus.HistoryCapacity != 100 {
		t.Errorf("expected history_capacity 100, got %d", cfg.Bus.HistoryCapacity)
	}
	if cfg.Compressor.Strategy != "hybrid" {
		t.Errorf("expected hybrid strategy, got %s", cfg.Compressor.Strategy)
	}
	if cfg.Loop.SimilarityThreshold != 0.85 {
		t.Errorf("expected similarity 0.85, got %f", cfg.Loop.SimilarityThreshold)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
anthropic:
  model: claude-opus-4-20250514
orchestrator:
  max_concurrent: 5
  task_timeout: 2m
compressor:
  history_budget: 4000
loop:
  repeat_threshold: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.Model != "claude-opus-4-20250514" {
		t.Errorf("unexpected model %q", cfg.Anthropic.Model)
	}
	if cfg.Orchestrator.MaxConcurrent != 5 {
		t.Errorf("expected max_concurrent 5, got %d", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.TaskTimeout != 2*time.Minute {
		t.Errorf("expected task_timeout 2m, got %s", cfg.Orchestrator.TaskTimeout)
	}
	if cfg.Compressor.HistoryBudget != 4000 {
		t.Errorf("expected history_budget 4000, got %d", cfg.Compressor.HistoryBudget)
	}
	if cfg.Loop.RepeatThreshold != 4 {
		t.Errorf("expected repeat_threshold 4, got %d", cfg.Loop.RepeatThreshold)
	}

	// Unset fields keep their defaults.
	if cfg.Bus.HistoryCapacity != 100 {
		t.Errorf("expected default history_capacity, got %d", cfg.Bus.HistoryCapacity)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestAPIKeyExpansion(t *testing.T) {
	t.Setenv("CONCLAVE_TEST_KEY", "sk-ant-test12345678901234")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "anthropic:\n  api_key: ${CONCLAVE_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-test12345678901234" {
		t.Errorf("expected env expansion, got %q", cfg.Anthropic.APIKey)
	}
}
