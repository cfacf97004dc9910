package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dispatch/internal/breaker"
	"github.com/ShayCichocki/dispatch/internal/config"
	"github.com/ShayCichocki/dispatch/internal/coordinator"
	"github.com/ShayCichocki/dispatch/internal/history"
	"github.com/ShayCichocki/dispatch/internal/invoker"
	"github.com/ShayCichocki/dispatch/internal/monitor"
	"github.com/ShayCichocki/dispatch/internal/registry"
	"github.com/ShayCichocki/dispatch/internal/state"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run <batch.yaml>",
	Short: "Execute a batch of tasks across the declared agent pool",
	Long: `Run loads a batch file, registers its agents, and schedules its tasks
until every task reaches a terminal state or the process is interrupted.

If a queue snapshot exists from a previous interrupted run, its tasks are
restored before the batch's own tasks are submitted. On exit, still-queued
tasks are written back to the snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a config file (overrides discovery)")
}

func loadConfig() (*config.Config, error) {
	if runConfigPath != "" {
		return config.LoadFromPath(runConfigPath)
	}
	return config.Load()
}

func runBatch(batchPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	batch, err := LoadBatch(batchPath)
	if err != nil {
		return err
	}
	if len(batch.Agents) == 0 {
		return fmt.Errorf("batch file %s declares no agents", batchPath)
	}

	logger, err := coordinator.NewDebugLogger(cfg.Logging.DebugLogPath)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	reg := registry.New()
	for _, spec := range batch.AgentSpecs() {
		reg.Register(spec)
	}

	opts := []coordinator.Option{
		coordinator.WithConfig(coordinator.Config{
			MaxRetries:            cfg.Scheduler.MaxRetries,
			BackoffBase:           cfg.Scheduler.BackoffBase,
			BackoffCap:            cfg.Scheduler.BackoffCap,
			PollInterval:          cfg.Scheduler.PollInterval,
			MaxDispatchesPerCycle: cfg.Scheduler.MaxDispatchesPerCycle,
			MaxConcurrentAgents:   cfg.Scheduler.MaxConcurrentAgents,
		}),
		coordinator.WithBreakers(breaker.NewSet(cfg.Breaker.Window, cfg.Breaker.Threshold, cfg.Breaker.MaxAge)),
		coordinator.WithLogger(logger),
	}

	if cfg.History.DBPath != "" {
		sink, err := history.OpenSQLite(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("open history db: %w", err)
		}
		defer sink.Close()
		opts = append(opts, coordinator.WithHistory(sink))
	}

	c := coordinator.New(coordinator.Required{
		Registry: reg,
		Monitor:  monitor.NewSystem(cfg.Thresholds()),
		Invoker:  invoker.NewExec(batch.Commands),
	}, opts...)

	// Restore any tasks left queued by a previous interrupted run.
	if cfg.Snapshot.Path != "" {
		restored, err := state.Load(cfg.Snapshot.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s snapshot restore failed: %v\n", color.YellowString("warning:"), err)
		} else if len(restored) > 0 {
			if err := c.SubmitBatch(restored); err != nil {
				fmt.Fprintf(os.Stderr, "%s restored task rejected: %v\n", color.YellowString("warning:"), err)
			}
			fmt.Printf("Restored %d queued task(s) from snapshot\n", len(restored))
		}
	}

	if err := c.SubmitBatch(batch.TaskModels()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("rejected:"), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scheduling %d task(s) across %d agent(s)\n\n", len(batch.Tasks), reg.Count())
	go c.Run(ctx)

	completed, failed := drainEvents(ctx, c)

	c.Stop()

	if cfg.Snapshot.Path != "" {
		if remaining := c.QueueSnapshot(); len(remaining) > 0 {
			if err := state.Save(cfg.Snapshot.Path, remaining); err != nil {
				fmt.Fprintf(os.Stderr, "%s snapshot save failed: %v\n", color.YellowString("warning:"), err)
			} else {
				fmt.Printf("Saved %d still-queued task(s) to snapshot\n", len(remaining))
			}
		} else {
			os.Remove(cfg.Snapshot.Path)
		}
	}

	fmt.Printf("\n%s %d completed, %d failed\n", color.New(color.Bold).Sprint("Done:"), completed, failed)
	if dropped := c.DroppedEventCount(); dropped > 0 {
		fmt.Printf("(%d event(s) dropped under load)\n", dropped)
	}
	if failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}
	return nil
}

// drainEvents prints scheduler events until all work is done or the context
// is cancelled. Returns the completed and failed counts.
func drainEvents(ctx context.Context, c *coordinator.Coordinator) (completed, failed int) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.Events():
			printEvent(ev)
			switch ev.Type {
			case coordinator.EventTaskCompleted:
				completed++
			case coordinator.EventTaskFailed:
				failed++
			}
		case <-ticker.C:
			if c.Pending() == 0 {
				return flushEvents(c, completed, failed)
			}
		case <-ctx.Done():
			fmt.Println("\nInterrupted, waiting for in-flight tasks...")
			return flushEvents(c, completed, failed)
		}
	}
}

// flushEvents consumes whatever is still buffered so the final counts
// include completions that raced the pending check.
func flushEvents(c *coordinator.Coordinator, completed, failed int) (int, int) {
	for {
		select {
		case ev := <-c.Events():
			printEvent(ev)
			switch ev.Type {
			case coordinator.EventTaskCompleted:
				completed++
			case coordinator.EventTaskFailed:
				failed++
			}
		default:
			return completed, failed
		}
	}
}

func printEvent(ev coordinator.Event) {
	stamp := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case coordinator.EventTaskQueued:
		fmt.Printf("[%s] %s %s (priority %s)\n", stamp, color.CyanString("queued"), ev.TaskID, ev.Priority)
	case coordinator.EventTaskDispatched:
		fmt.Printf("[%s] %s %s -> %s\n", stamp, color.BlueString("dispatch"), ev.TaskID, ev.AgentName)
	case coordinator.EventTaskCompleted:
		fmt.Printf("[%s] %s %s\n", stamp, color.GreenString("complete"), ev.TaskID)
	case coordinator.EventTaskRetrying:
		fmt.Printf("[%s] %s %s (attempt %d): %s\n", stamp, color.YellowString("retry"), ev.TaskID, ev.RetryCount, ev.Message)
	case coordinator.EventTaskFailed:
		fmt.Printf("[%s] %s %s: %s\n", stamp, color.RedString("failed"), ev.TaskID, ev.Message)
	case coordinator.EventBreakerOpen:
		fmt.Printf("[%s] %s agent type %s: %s\n", stamp, color.RedString("breaker"), ev.AgentType, ev.Message)
	case coordinator.EventCycleError:
		fmt.Printf("[%s] %s %s\n", stamp, color.RedString("cycle error"), ev.Message)
	}
}
