// Package config handles configuration loading for Tactix.
// It supports XDG config paths, project-level overrides, and environment
// variables, plus yaml level files defining the orchestration ladder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tactix-ai/tactix/pkg/models"
)

// Config holds all configuration for Tactix.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Validation ValidationConfig `mapstructure:"validation"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// EngineConfig holds scheduling settings.
type EngineConfig struct {
	// GlobalConcurrency is the process-wide dispatch ceiling.
	GlobalConcurrency int `mapstructure:"global_concurrency"`
	// ClassLimits caps concurrent reservations per agent class.
	ClassLimits map[string]int `mapstructure:"class_limits"`
	// Quorum is the consensus vote size. Minimum 3.
	Quorum int `mapstructure:"quorum"`
	// Retries is the per-subtask retry budget.
	Retries int `mapstructure:"retries"`
	// DebugLog is a file path for dispatch diagnostics. Empty disables it.
	DebugLog string `mapstructure:"debug_log"`
}

// ValidationConfig holds pipeline settings.
type ValidationConfig struct {
	// Threshold is the global weighted-average pass threshold in [0,1].
	Threshold float64 `mapstructure:"threshold"`
	// MaxCorrectionAttempts bounds the correction loop.
	MaxCorrectionAttempts int `mapstructure:"max_correction_attempts"`
}

// TimeoutsConfig holds per-complexity dispatch timeouts.
type TimeoutsConfig struct {
	Simple  time.Duration `mapstructure:"simple"`
	Medium  time.Duration `mapstructure:"medium"`
	Complex time.Duration `mapstructure:"complex"`
	Expert  time.Duration `mapstructure:"expert"`
}

// RetentionConfig holds terminal-request retention settings.
type RetentionConfig struct {
	// Window is how long terminal requests stay queryable.
	Window time.Duration `mapstructure:"window"`
	// GCInterval is how often the retention sweep runs.
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

// AgentClassLimits converts the configured class limits to typed keys,
// dropping unknown classes.
func (c *Config) AgentClassLimits() map[models.AgentClass]int {
	limits := make(map[models.AgentClass]int, len(c.Engine.ClassLimits))
	for name, limit := range c.Engine.ClassLimits {
		class := models.AgentClass(name)
		if class.Valid() {
			limits[class] = limit
		}
	}
	return limits
}

// ComplexityTimeouts converts the configured timeouts to typed keys.
func (c *Config) ComplexityTimeouts() map[models.Complexity]time.Duration {
	return map[models.Complexity]time.Duration{
		models.ComplexitySimple:  c.Timeouts.Simple,
		models.ComplexityMedium:  c.Timeouts.Medium,
		models.ComplexityComplex: c.Timeouts.Complex,
		models.ComplexityExpert:  c.Timeouts.Expert,
	}
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.tactix.yaml in current directory or parent)
// 3. User config (~/.config/tactix/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects out-of-range settings early, before anything is wired.
func (c *Config) validate() error {
	if c.Validation.Threshold < 0 || c.Validation.Threshold > 1 {
		return fmt.Errorf("validation.threshold %f outside [0,1]", c.Validation.Threshold)
	}
	if c.Engine.GlobalConcurrency < 1 {
		return fmt.Errorf("engine.global_concurrency must be at least 1, got %d", c.Engine.GlobalConcurrency)
	}
	if c.Validation.MaxCorrectionAttempts < 1 {
		return fmt.Errorf("validation.max_correction_attempts must be at least 1, got %d", c.Validation.MaxCorrectionAttempts)
	}
	for name, limit := range c.Engine.ClassLimits {
		if limit < 1 {
			return fmt.Errorf("engine.class_limits.%s must be at least 1, got %d", name, limit)
		}
	}
	return nil
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

	v.SetDefault("engine.global_concurrency", 8)
	v.SetDefault("engine.class_limits", map[string]int{})
	v.SetDefault("engine.quorum", 3)
	v.SetDefault("engine.retries", 2)
	v.SetDefault("engine.debug_log", "")

	v.SetDefault("validation.threshold", 0.7)
	v.SetDefault("validation.max_correction_attempts", 3)

	v.SetDefault("timeouts.simple", "30s")
	v.SetDefault("timeouts.medium", "1m")
	v.SetDefault("timeouts.complex", "2m")
	v.SetDefault("timeouts.expert", "4m")

	v.SetDefault("retention.window", "24h")
	v.SetDefault("retention.gc_interval", "10m")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			GlobalConcurrency: 8,
			ClassLimits:       map[string]int{},
			Quorum:            3,
			Retries:           2,
		},
		Validation: ValidationConfig{
			Threshold:             0.7,
			MaxCorrectionAttempts: 3,
		},
		Timeouts: TimeoutsConfig{
			Simple:  30 * time.Second,
			Medium:  time.Minute,
			Complex: 2 * time.Minute,
			Expert:  4 * time.Minute,
		},
		Retention: RetentionConfig{
			Window:     24 * time.Hour,
			GCInterval: 10 * time.Minute,
		},
	}
}

// getUserConfigDir returns the XDG config directory for Tactix.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tactix")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "tactix")
	}
	return filepath.Join(home, ".config", "tactix")
}

// findProjectConfig searches for .tactix.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".tactix.yaml")
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
