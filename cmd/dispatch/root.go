package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Multi-agent task scheduling and coordination engine",
	Long: `Dispatch schedules tasks across a bounded pool of agents, matching
each task to an agent by declared capability, resolving dependencies into a
safe execution order, and enforcing memory and concurrency admission control.

Tasks and the agent pool are declared in a batch YAML file:

  dispatch run tasks.yaml        execute a batch
  dispatch plan tasks.yaml       preview the phase plan without executing
  dispatch status                show recent execution history`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
