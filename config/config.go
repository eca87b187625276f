// ABOUTME: Layered configuration: defaults, optional scrivener.yaml overlay, SCRIVENER_* env overrides.
// ABOUTME: Env always wins so deployments can pin single values without a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the YAML overlay searched for in the working directory.
const DefaultConfigFile = "scrivener.yaml"

// Config holds everything the server and worker need to start.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Limits   LimitsConfig   `yaml:"limits"`
	LLM      LLMConfig      `yaml:"llm"`
	Services ServicesConfig `yaml:"services"`
	Mocks    MocksConfig    `yaml:"mocks"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Bind is the listen address.
	Bind string `yaml:"bind"`
	// MaxPageSize caps the limit parameter on workflow listings.
	MaxPageSize int `yaml:"max_page_size"`
}

// StorageConfig configures the workflow registry.
type StorageConfig struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`
}

// QueueConfig configures the async task queue.
type QueueConfig struct {
	// NATSURL is the NATS server URL (empty disables async dispatch).
	NATSURL string `yaml:"nats_url"`
}

// LimitsConfig bounds workflow execution time.
type LimitsConfig struct {
	// TaskTimeLimit is the hard wall-clock budget per workflow run.
	TaskTimeLimit time.Duration `yaml:"task_time_limit"`
	// TaskSoftLimit logs a warning when a run passes it (0 disables).
	TaskSoftLimit time.Duration `yaml:"task_soft_limit"`
}

// LLMConfig configures the topic-proposal model.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ServicesConfig points at the downstream HTTP services.
type ServicesConfig struct {
	// ResearchURL is the deep-research service base URL.
	ResearchURL string `yaml:"research_url"`
	// DraftURL is the draft-branch service base URL.
	DraftURL string `yaml:"draft_url"`
	// VaultSummary is a static vault summary injected into pipeline state.
	VaultSummary string `yaml:"vault_summary"`
}

// MocksConfig swaps external clients for in-process mocks.
type MocksConfig struct {
	LLM      bool `yaml:"llm"`
	Research bool `yaml:"research"`
	Draft    bool `yaml:"draft"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:        "127.0.0.1:8490",
			MaxPageSize: 100,
		},
		Storage: StorageConfig{
			DBPath: "./scrivener.db",
		},
		Limits: LimitsConfig{
			TaskTimeLimit: 600 * time.Second,
			TaskSoftLimit: 540 * time.Second,
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped if it does not exist), then SCRIVENER_* env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// No overlay; defaults plus env only.
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides individual fields from SCRIVENER_* variables.
func (c *Config) applyEnv() error {
	setString(&c.Server.Bind, "SCRIVENER_BIND")
	setString(&c.Storage.DBPath, "SCRIVENER_DB_PATH")
	setString(&c.Queue.NATSURL, "SCRIVENER_NATS_URL")
	setString(&c.LLM.APIKey, "SCRIVENER_OPENAI_API_KEY")
	setString(&c.LLM.Model, "SCRIVENER_OPENAI_MODEL")
	setString(&c.LLM.BaseURL, "SCRIVENER_OPENAI_BASE_URL")
	setString(&c.Services.ResearchURL, "SCRIVENER_RESEARCH_URL")
	setString(&c.Services.DraftURL, "SCRIVENER_DRAFT_URL")
	setString(&c.Services.VaultSummary, "SCRIVENER_VAULT_SUMMARY")

	if err := setInt(&c.Server.MaxPageSize, "SCRIVENER_MAX_PAGE_SIZE"); err != nil {
		return err
	}
	if err := setSeconds(&c.Limits.TaskTimeLimit, "SCRIVENER_TASK_TIME_LIMIT"); err != nil {
		return err
	}
	if err := setSeconds(&c.Limits.TaskSoftLimit, "SCRIVENER_TASK_SOFT_LIMIT"); err != nil {
		return err
	}
	if err := setBool(&c.Mocks.LLM, "SCRIVENER_USE_MOCK_LLM"); err != nil {
		return err
	}
	if err := setBool(&c.Mocks.Research, "SCRIVENER_USE_MOCK_RESEARCH"); err != nil {
		return err
	}
	return setBool(&c.Mocks.Draft, "SCRIVENER_USE_MOCK_DRAFT")
}

// Validate rejects configurations that cannot serve requests.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return fmt.Errorf("server.bind is required")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Server.MaxPageSize <= 0 {
		return fmt.Errorf("server.max_page_size must be positive, got %d", c.Server.MaxPageSize)
	}
	if c.Limits.TaskTimeLimit <= 0 {
		return fmt.Errorf("limits.task_time_limit must be positive, got %s", c.Limits.TaskTimeLimit)
	}
	if c.Limits.TaskSoftLimit < 0 {
		return fmt.Errorf("limits.task_soft_limit must not be negative, got %s", c.Limits.TaskSoftLimit)
	}
	if c.Limits.TaskSoftLimit > c.Limits.TaskTimeLimit {
		return fmt.Errorf("limits.task_soft_limit %s exceeds task_time_limit %s",
			c.Limits.TaskSoftLimit, c.Limits.TaskTimeLimit)
	}
	if !c.Mocks.LLM && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required unless the mock LLM is enabled")
	}
	if !c.Mocks.Research && c.Services.ResearchURL == "" {
		return fmt.Errorf("services.research_url is required unless the mock research client is enabled")
	}
	if !c.Mocks.Draft && c.Services.DraftURL == "" {
		return fmt.Errorf("services.draft_url is required unless the mock draft client is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

// setSeconds accepts a bare number of seconds or a Go duration string.
func setSeconds(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}
