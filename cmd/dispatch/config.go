package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/dispatch/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify dispatch configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/dispatch/config.yaml
Project-specific overrides can be placed in .dispatch.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("memory.per_agent_mb: %d\n", cfg.Memory.PerAgentMB)
	fmt.Printf("memory.safe_mb: %d\n", cfg.Memory.SafeMB)
	fmt.Printf("memory.warning_mb: %d\n", cfg.Memory.WarningMB)
	fmt.Printf("memory.critical_mb: %d\n", cfg.Memory.CriticalMB)
	fmt.Printf("memory.reserved_buffer_mb: %d\n", cfg.Memory.ReservedBufferMB)
	fmt.Printf("scheduler.max_concurrent_agents: %d\n", cfg.Scheduler.MaxConcurrentAgents)
	fmt.Printf("scheduler.max_retries: %d\n", cfg.Scheduler.MaxRetries)
	fmt.Printf("scheduler.backoff_base: %s\n", cfg.Scheduler.BackoffBase)
	fmt.Printf("scheduler.backoff_cap: %s\n", cfg.Scheduler.BackoffCap)
	fmt.Printf("scheduler.poll_interval: %s\n", cfg.Scheduler.PollInterval)
	fmt.Printf("scheduler.max_dispatches_per_cycle: %d\n", cfg.Scheduler.MaxDispatchesPerCycle)
	fmt.Printf("breaker.window: %d\n", cfg.Breaker.Window)
	fmt.Printf("breaker.threshold: %g\n", cfg.Breaker.Threshold)
	fmt.Printf("breaker.max_age: %s\n", cfg.Breaker.MaxAge)
	fmt.Printf("history.db_path: %s\n", orUnset(cfg.History.DBPath))
	fmt.Printf("snapshot.path: %s\n", orUnset(cfg.Snapshot.Path))
	fmt.Printf("logging.debug_log_path: %s\n", orUnset(cfg.Logging.DebugLogPath))
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "memory.per_agent_mb":
		return strconv.FormatUint(cfg.Memory.PerAgentMB, 10), nil
	case "memory.safe_mb":
		return strconv.FormatUint(cfg.Memory.SafeMB, 10), nil
	case "memory.warning_mb":
		return strconv.FormatUint(cfg.Memory.WarningMB, 10), nil
	case "memory.critical_mb":
		return strconv.FormatUint(cfg.Memory.CriticalMB, 10), nil
	case "memory.reserved_buffer_mb":
		return strconv.FormatUint(cfg.Memory.ReservedBufferMB, 10), nil
	case "scheduler.max_concurrent_agents":
		return strconv.Itoa(cfg.Scheduler.MaxConcurrentAgents), nil
	case "scheduler.max_retries":
		return strconv.Itoa(cfg.Scheduler.MaxRetries), nil
	case "scheduler.backoff_base":
		return cfg.Scheduler.BackoffBase.String(), nil
	case "scheduler.backoff_cap":
		return cfg.Scheduler.BackoffCap.String(), nil
	case "scheduler.poll_interval":
		return cfg.Scheduler.PollInterval.String(), nil
	case "scheduler.max_dispatches_per_cycle":
		return strconv.Itoa(cfg.Scheduler.MaxDispatchesPerCycle), nil
	case "breaker.window":
		return strconv.Itoa(cfg.Breaker.Window), nil
	case "breaker.threshold":
		return strconv.FormatFloat(cfg.Breaker.Threshold, 'g', -1, 64), nil
	case "breaker.max_age":
		return cfg.Breaker.MaxAge.String(), nil
	case "history.db_path":
		return orUnset(cfg.History.DBPath), nil
	case "snapshot.path":
		return orUnset(cfg.Snapshot.Path), nil
	case "logging.debug_log_path":
		return orUnset(cfg.Logging.DebugLogPath), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	parseUint := func(name string) (uint64, error) {
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		return n, nil
	}
	parseInt := func(name string) (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		return n, nil
	}
	parseDuration := func(name string) (time.Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", name, err)
		}
		return d, nil
	}

	var err error
	switch strings.ToLower(key) {
	case "memory.per_agent_mb":
		cfg.Memory.PerAgentMB, err = parseUint(key)
	case "memory.safe_mb":
		cfg.Memory.SafeMB, err = parseUint(key)
	case "memory.warning_mb":
		cfg.Memory.WarningMB, err = parseUint(key)
	case "memory.critical_mb":
		cfg.Memory.CriticalMB, err = parseUint(key)
	case "memory.reserved_buffer_mb":
		cfg.Memory.ReservedBufferMB, err = parseUint(key)
	case "scheduler.max_concurrent_agents":
		cfg.Scheduler.MaxConcurrentAgents, err = parseInt(key)
	case "scheduler.max_retries":
		cfg.Scheduler.MaxRetries, err = parseInt(key)
	case "scheduler.backoff_base":
		cfg.Scheduler.BackoffBase, err = parseDuration(key)
	case "scheduler.backoff_cap":
		cfg.Scheduler.BackoffCap, err = parseDuration(key)
	case "scheduler.poll_interval":
		cfg.Scheduler.PollInterval, err = parseDuration(key)
	case "scheduler.max_dispatches_per_cycle":
		cfg.Scheduler.MaxDispatchesPerCycle, err = parseInt(key)
	case "breaker.window":
		cfg.Breaker.Window, err = parseInt(key)
	case "breaker.threshold":
		f, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil {
			return fmt.Errorf("invalid value for %s: %w", key, ferr)
		}
		cfg.Breaker.Threshold = f
	case "breaker.max_age":
		cfg.Breaker.MaxAge, err = parseDuration(key)
	case "history.db_path":
		cfg.History.DBPath = value
	case "snapshot.path":
		cfg.Snapshot.Path = value
	case "logging.debug_log_path":
		cfg.Logging.DebugLogPath = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}
