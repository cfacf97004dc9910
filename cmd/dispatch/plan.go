package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dispatch/internal/monitor"
	"github.com/ShayCichocki/dispatch/internal/planner"
)

var planStrategy string

var planCmd = &cobra.Command{
	Use:   "plan <batch.yaml>",
	Short: "Preview the phase plan for a batch without executing it",
	Long: `Plan groups a batch's tasks into execution phases under the chosen
strategy and prints the resulting plan with duration and memory estimates.

Strategies:
  parallel    group every dependency-satisfied task into one phase
  sequential  one task per phase, in dependency order
  hybrid      parallel grouping, split to the memory-derived agent ceiling`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planBatch(args[0])
	},
}

func init() {
	planCmd.Flags().StringVar(&planStrategy, "strategy", "hybrid", "Phase grouping strategy (parallel, sequential, hybrid)")
	planCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a config file (overrides discovery)")
}

func planBatch(batchPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	batch, err := LoadBatch(batchPath)
	if err != nil {
		return err
	}

	strategy, err := planner.ParseStrategy(planStrategy)
	if err != nil {
		return err
	}

	thresholds := cfg.Thresholds()
	p := planner.New(monitor.NewSystem(thresholds), thresholds)
	plan, err := p.Plan(batch.TaskModels(), strategy)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Printf("Plan: %d task(s), %d phase(s), strategy %s\n", len(batch.Tasks), len(plan.Phases), plan.Strategy)
	if plan.Degraded {
		fmt.Printf("%s dependency cycle detected; affected tasks run forced-sequential\n", color.YellowString("warning:"))
	}
	fmt.Println()

	for _, ph := range plan.Phases {
		mode := string(ph.Mode)
		if ph.Mode == planner.PhaseForcedSequential {
			mode = color.YellowString(mode)
		}
		fmt.Printf("  phase %d (%s, concurrency %d): %s\n", ph.Index, mode, ph.MaxConcurrency, strings.Join(ph.TaskIDs, ", "))
	}

	fmt.Println()
	fmt.Printf("Estimated duration: %s\n", plan.EstimatedDuration)
	fmt.Printf("Peak memory:        %d MB\n", plan.PeakMemoryMB)
	return nil
}
