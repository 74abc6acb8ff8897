package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tactix-ai/tactix/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Display the effective Tactix configuration.

Without arguments, displays all configuration values and the loaded
orchestration levels. With one argument, displays a single key.

Configuration is stored at ~/.config/tactix/config.yaml
Project-specific overrides can be placed in .tactix.yaml
The orchestration ladder loads from configs/levels.yaml`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 1 {
			displayConfigKey(cfg, args[0])
			return
		}
		displayAllConfig(cfg)
	},
}

// configValues flattens the config into displayable key/value pairs.
func configValues(cfg *config.Config) map[string]string {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}
	debugLogDisplay := cfg.Engine.DebugLog
	if debugLogDisplay == "" {
		debugLogDisplay = "(disabled)"
	}

	values := map[string]string{
		"anthropic.api_key":                  apiKeyDisplay,
		"engine.global_concurrency":          fmt.Sprintf("%d", cfg.Engine.GlobalConcurrency),
		"engine.quorum":                      fmt.Sprintf("%d", cfg.Engine.Quorum),
		"engine.retries":                     fmt.Sprintf("%d", cfg.Engine.Retries),
		"engine.debug_log":                   debugLogDisplay,
		"validation.threshold":               fmt.Sprintf("%g", cfg.Validation.Threshold),
		"validation.max_correction_attempts": fmt.Sprintf("%d", cfg.Validation.MaxCorrectionAttempts),
		"timeouts.simple":                    cfg.Timeouts.Simple.String(),
		"timeouts.medium":                    cfg.Timeouts.Medium.String(),
		"timeouts.complex":                   cfg.Timeouts.Complex.String(),
		"timeouts.expert":                    cfg.Timeouts.Expert.String(),
		"retention.window":                   cfg.Retention.Window.String(),
		"retention.gc_interval":              cfg.Retention.GCInterval.String(),
	}
	for class, limit := range cfg.Engine.ClassLimits {
		values["engine.class_limits."+class] = fmt.Sprintf("%d", limit)
	}
	return values
}

// displayAllConfig prints all configuration values plus the level ladder.
func displayAllConfig(cfg *config.Config) {
	values := configValues(cfg)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("%s: %s\n", key, values[key])
	}

	levels, err := config.LoadLevelConfigs("configs")
	if err != nil {
		levels = config.DefaultLevelConfigs()
		fmt.Println("\nlevels: (built-in defaults)")
	} else {
		fmt.Println("\nlevels: (configs/levels.yaml)")
	}
	for _, level := range levels {
		names := make([]string, 0, len(level.Validators))
		for _, v := range level.Validators {
			name := v.Name
			if v.Blocking {
				name += "!"
			}
			names = append(names, name)
		}
		fmt.Printf("  %d: strategy=%s boost=%g retries=%d validators=[%s]\n",
			level.Index, level.Strategy, level.BlockingWeightBoost, level.RetryBudget,
			strings.Join(names, " "))
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	values := configValues(cfg)
	value, ok := values[key]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown configuration key: %s\n", key)
		os.Exit(1)
	}
	fmt.Println(value)
}
