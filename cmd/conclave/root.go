package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "Multi-agent task orchestrator",
	Long: `Conclave orchestrates specialized agents over a shared message bus.

A task is classified to an agent (reader, coder, reviewer, or
coordinator) and run in one of four modes:
  single       one agent runs the whole task
  parallel     the task is split on conjunctions and run concurrently
  react        one agent iterates through think/act cycles
  coordinator  a fixed reader -> coder -> reviewer pipeline

Agents share state through a versioned context store and publish
lifecycle events on the message bus. Finished runs can be persisted
to SQLite and exported as YAML snapshots.`,
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
	rootCmd.AddCommand(versionCmd)
}
