// Package config handles configuration loading and management for Conclave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Conclave.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Bus          BusConfig          `mapstructure:"bus"`
	Compressor   CompressorConfig   `mapstructure:"compressor"`
	Loop         LoopConfig         `mapstructure:"loop"`
	Router       RouterConfig       `mapstructure:"router"`
	State        StateConfig        `mapstructure:"state"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes API calls through AWS Bedrock instead of the
	// Anthropic API directly.
	UseBedrock bool `mapstructure:"use_bedrock"`
}

// OrchestratorConfig holds pool and run settings.
type OrchestratorConfig struct {
	// MaxConcurrent is the pool's in-flight task limit.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// TaskTimeout is the per-task execution deadline.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// MaxIterations is the react-mode iteration budget.
	MaxIterations int `mapstructure:"max_iterations"`
}

// BusConfig holds message bus settings.
type BusConfig struct {
	// HistoryCapacity bounds the retained message history.
	HistoryCapacity int `mapstructure:"history_capacity"`
}

// CompressorConfig holds context compression tuning.
type CompressorConfig struct {
	HistoryBudget    int     `mapstructure:"history_budget"`
	SummaryThreshold float64 `mapstructure:"summary_threshold"`
	MaxMessages      int     `mapstructure:"max_messages"`
	MaxToolOutputLen int     `mapstructure:"max_tool_output_len"`
	Strategy         string  `mapstructure:"strategy"`
}

// LoopConfig holds loop detection tuning.
type LoopConfig struct {
	WindowSize          int     `mapstructure:"window_size"`
	RepeatThreshold     int     `mapstructure:"repeat_threshold"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// RouterConfig holds task routing settings.
type RouterConfig struct {
	// KeywordsFile is an optional YAML file overriding the built-in
	// routing keywords.
	KeywordsFile string `mapstructure:"keywords_file"`
	// WatchKeywords reloads the keywords file when it changes.
	WatchKeywords bool `mapstructure:"watch_keywords"`
}

// StateConfig holds session persistence settings.
type StateConfig struct {
	// DBPath is the SQLite database file for session state. Empty
	// disables persistence.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.conclave.yaml in current directory or parent)
// 3. User config (~/.config/conclave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("orchestrator.max_concurrent", cfg.Orchestrator.MaxConcurrent)
	v.Set("orchestrator.task_timeout", cfg.Orchestrator.TaskTimeout.String())
	v.Set("orchestrator.max_iterations", cfg.Orchestrator.MaxIterations)
	v.Set("bus.history_capacity", cfg.Bus.HistoryCapacity)
	v.Set("compressor.history_budget", cfg.Compressor.HistoryBudget)
	v.Set("compressor.summary_threshold", cfg.Compressor.SummaryThreshold)
	v.Set("compressor.max_messages", cfg.Compressor.MaxMessages)
	v.Set("compressor.max_tool_output_len", cfg.Compressor.MaxToolOutputLen)
	v.Set("compressor.strategy", cfg.Compressor.Strategy)
	v.Set("loop.window_size", cfg.Loop.WindowSize)
	v.Set("loop.repeat_threshold", cfg.Loop.RepeatThreshold)
	v.Set("loop.similarity_threshold", cfg.Loop.SimilarityThreshold)
	v.Set("router.keywords_file", cfg.Router.KeywordsFile)
	v.Set("router.watch_keywords", cfg.Router.WatchKeywords)
	v.Set("state.db_path", cfg.State.DBPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("orchestrator.max_concurrent", 3)
	v.SetDefault("orchestrator.task_timeout", "5m")
	v.SetDefault("orchestrator.max_iterations", 10)

	v.SetDefault("bus.history_capacity", 100)

	v.SetDefault("compressor.history_budget", 8000)
	v.SetDefault("compressor.summary_threshold", 0.7)
	v.SetDefault("compressor.max_messages", 10)
	v.SetDefault("compressor.max_tool_output_len", 2000)
	v.SetDefault("compressor.strategy", "hybrid")

	v.SetDefault("loop.window_size", 10)
	v.SetDefault("loop.repeat_threshold", 3)
	v.SetDefault("loop.similarity_threshold", 0.85)

	v.SetDefault("router.keywords_file", "")
	v.SetDefault("router.watch_keywords", false)

	v.SetDefault("state.db_path", "")
}

// getUserConfigDir returns the XDG config directory for Conclave.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conclave")
	}

	// Fall back to ~/.config/conclave
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conclave")
	}
	return filepath.Join(home, ".config", "conclave")
}

// findProjectConfig searches for .conclave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conclave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrent: 3,
			TaskTimeout:   5 * time.Minute,
			MaxIterations: 10,
		},
		Bus: BusConfig{
			HistoryCapacity: 100,
		},
		Compressor: CompressorConfig{
			HistoryBudget:    8000,
			SummaryThreshold: 0.7,
			MaxMessages:      10,
			MaxToolOutputLen: 2000,
			Strategy:         "hybrid",
		},
		Loop: LoopConfig{
			WindowSize:          10,
			RepeatThreshold:     3,
			SimilarityThreshold: 0.85,
		},
	}
}
