package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tactix",
	Short: "Multi-layer task orchestration engine",
	Long: `Tactix decomposes high-level requests into dependency-ordered subtask
graphs and dispatches them across a pool of provider-backed agents.

Artifacts pass through a weighted validation pipeline with hard security
vetoes and a bounded correction loop; requests that exhaust their
corrections escalate through strictly ordered orchestration levels with
progressively more conservative strategies.

Core capabilities:
- Template-based decomposition into a single-delivery DAG
- Parallel, sequential, consensus, hierarchical, and adaptive dispatch
- Weighted multi-validator aggregation with blocking vetoes
- Correction loops with machine-actionable feedback
- Escalation ladder with full attempt/correction/escalation traces`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
