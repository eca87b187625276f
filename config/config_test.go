// ABOUTME: Tests for layered config loading: defaults, YAML overlay, env overrides, validation.
// ABOUTME: Uses t.Setenv so overrides never leak between cases.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockEnv enables all three mock toggles so Validate passes without URLs.
func mockEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SCRIVENER_USE_MOCK_LLM", "true")
	t.Setenv("SCRIVENER_USE_MOCK_RESEARCH", "true")
	t.Setenv("SCRIVENER_USE_MOCK_DRAFT", "true")
}

func TestLoadDefaults(t *testing.T) {
	mockEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:8490" {
		t.Errorf("bind = %q", cfg.Server.Bind)
	}
	if cfg.Storage.DBPath != "./scrivener.db" {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Server.MaxPageSize != 100 {
		t.Errorf("max page size = %d", cfg.Server.MaxPageSize)
	}
	if cfg.Limits.TaskTimeLimit != 600*time.Second {
		t.Errorf("time limit = %s", cfg.Limits.TaskTimeLimit)
	}
	if cfg.Limits.TaskSoftLimit != 540*time.Second {
		t.Errorf("soft limit = %s", cfg.Limits.TaskSoftLimit)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	mockEnv(t)

	path := filepath.Join(t.TempDir(), "scrivener.yaml")
	yaml := strings.Join([]string{
		"server:",
		"  bind: 0.0.0.0:9000",
		"limits:",
		"  task_time_limit: 2m",
		"  task_soft_limit: 90s",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0:9000" {
		t.Errorf("bind = %q", cfg.Server.Bind)
	}
	if cfg.Limits.TaskTimeLimit != 2*time.Minute {
		t.Errorf("time limit = %s", cfg.Limits.TaskTimeLimit)
	}
	// Untouched keys keep their defaults.
	if cfg.Storage.DBPath != "./scrivener.db" {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	mockEnv(t)

	path := filepath.Join(t.TempDir(), "scrivener.yaml")
	if err := os.WriteFile(path, []byte("server:\n  bind: 0.0.0.0:9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCRIVENER_BIND", "127.0.0.1:7777")
	t.Setenv("SCRIVENER_DB_PATH", "/tmp/other.db")
	t.Setenv("SCRIVENER_MAX_PAGE_SIZE", "25")
	t.Setenv("SCRIVENER_TASK_TIME_LIMIT", "120")
	t.Setenv("SCRIVENER_TASK_SOFT_LIMIT", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:7777" {
		t.Errorf("bind = %q, env should win over yaml", cfg.Server.Bind)
	}
	if cfg.Storage.DBPath != "/tmp/other.db" {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Server.MaxPageSize != 25 {
		t.Errorf("max page size = %d", cfg.Server.MaxPageSize)
	}
	// Bare seconds and duration strings both parse.
	if cfg.Limits.TaskTimeLimit != 2*time.Minute {
		t.Errorf("time limit = %s", cfg.Limits.TaskTimeLimit)
	}
	if cfg.Limits.TaskSoftLimit != 90*time.Second {
		t.Errorf("soft limit = %s", cfg.Limits.TaskSoftLimit)
	}
}

func TestLoadRejectsBadEnvValues(t *testing.T) {
	mockEnv(t)

	tests := []struct {
		key   string
		value string
	}{
		{"SCRIVENER_MAX_PAGE_SIZE", "lots"},
		{"SCRIVENER_TASK_TIME_LIMIT", "soon"},
		{"SCRIVENER_USE_MOCK_LLM", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); err == nil {
				t.Errorf("Load accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty bind", func(c *Config) { c.Server.Bind = "" }},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"zero page size", func(c *Config) { c.Server.MaxPageSize = 0 }},
		{"zero time limit", func(c *Config) { c.Limits.TaskTimeLimit = 0 }},
		{"soft above hard", func(c *Config) { c.Limits.TaskSoftLimit = c.Limits.TaskTimeLimit + time.Second }},
		{"real llm without key", func(c *Config) { c.Mocks.LLM = false; c.LLM.APIKey = "" }},
		{"real research without url", func(c *Config) { c.Mocks.Research = false; c.Services.ResearchURL = "" }},
		{"real draft without url", func(c *Config) { c.Mocks.Draft = false; c.Services.DraftURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Mocks = MocksConfig{LLM: true, Research: true, Draft: true}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestLoadRequiresRealClientConfig(t *testing.T) {
	// Mock toggles off: real endpoints are mandatory.
	t.Setenv("SCRIVENER_USE_MOCK_LLM", "false")
	if _, err := Load(""); err == nil {
		t.Error("Load accepted a real LLM client with no API key")
	}

	t.Setenv("SCRIVENER_OPENAI_API_KEY", "sk-test")
	t.Setenv("SCRIVENER_USE_MOCK_RESEARCH", "true")
	t.Setenv("SCRIVENER_USE_MOCK_DRAFT", "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
}
