package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tactix-ai/tactix/pkg/models"
)

// Duration wraps time.Duration so yaml level files can use "30s" notation.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ValidatorSpec is one entry in a level's ordered validator table.
type ValidatorSpec struct {
	// Name is the registered validator name.
	Name string `yaml:"name"`
	// Weight is this validator's share of the weighted average.
	Weight float64 `yaml:"weight"`
	// Blocking marks the validator as a hard veto.
	Blocking bool `yaml:"blocking"`
	// Budget is the validator's time budget. Zero means the pipeline default.
	Budget Duration `yaml:"budget"`
}

// LevelConfig defines one orchestration level loaded from yaml.
type LevelConfig struct {
	// Index is the level's position in the ladder, 0-indexed.
	Index int `yaml:"index"`
	// Strategy is the coordination strategy name for this level.
	Strategy string `yaml:"strategy"`
	// BlockingWeightBoost is added to every blocking validator's weight.
	BlockingWeightBoost float64 `yaml:"blocking_weight_boost"`
	// MaxCorrectionAttempts overrides the global correction cap. Zero
	// means inherit.
	MaxCorrectionAttempts int `yaml:"max_correction_attempts"`
	// RetryBudget is the per-task retry budget for graphs executed here.
	RetryBudget int `yaml:"retry_budget"`
	// Validators is the ordered validator table for this level.
	Validators []ValidatorSpec `yaml:"validators"`
}

// levelsFile is the on-disk shape of configs/levels.yaml.
type levelsFile struct {
	Levels []LevelConfig `yaml:"levels"`
}

// LoadLevelConfigs loads the orchestration ladder from levels.yaml in the
// given directory. Levels are validated for contiguous indices and known
// strategies. The yaml package is used directly because the validator
// tables are order-sensitive.
func LoadLevelConfigs(configsDir string) ([]LevelConfig, error) {
	if configsDir == "" {
		configsDir = "configs"
	}

	path := filepath.Join(configsDir, "levels.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file levelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
	}

	if err := validateLevels(file.Levels); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file.Levels, nil
}

// validateLevels rejects malformed ladders before anything is wired.
func validateLevels(levels []LevelConfig) error {
	if len(levels) == 0 {
		return fmt.Errorf("no levels defined")
	}
	for i, level := range levels {
		if level.Index != i {
			return fmt.Errorf("levels must be contiguous from 0, got index %d at position %d", level.Index, i)
		}
		if !models.CoordinationStrategy(level.Strategy).Valid() {
			return fmt.Errorf("level %d: unknown strategy %q", i, level.Strategy)
		}
		if level.BlockingWeightBoost < 0 {
			return fmt.Errorf("level %d: negative blocking weight boost", i)
		}
		for _, spec := range level.Validators {
			if spec.Name == "" {
				return fmt.Errorf("level %d: validator with empty name", i)
			}
			if spec.Weight < 0 {
				return fmt.Errorf("level %d: validator %s has negative weight", i, spec.Name)
			}
		}
	}
	return nil
}

// DefaultLevelConfigs returns the built-in two-level ladder, used when no
// levels.yaml is available.
func DefaultLevelConfigs() []LevelConfig {
	baseValidators := []ValidatorSpec{
		{Name: "structure", Weight: 1.0},
		{Name: "completeness", Weight: 1.0},
		{Name: "security", Weight: 1.5, Blocking: true},
		{Name: "consistency", Weight: 1.0},
		{Name: "confidence", Weight: 0.5},
	}

	return []LevelConfig{
		{
			Index:       0,
			Strategy:    string(models.StrategyParallel),
			RetryBudget: 2,
			Validators:  baseValidators,
		},
		{
			Index:               1,
			Strategy:            string(models.StrategyConsensus),
			BlockingWeightBoost: 0.5,
			RetryBudget:         1,
			Validators:          baseValidators,
		},
	}
}
