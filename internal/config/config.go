// Package config handles configuration loading and management for dispatch.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/dispatch/internal/monitor"
)

// Config holds all configuration for dispatch.
type Config struct {
	Memory    MemoryConfig    `mapstructure:"memory"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	History   HistoryConfig   `mapstructure:"history"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// MemoryConfig holds the memory thresholds driving admission control.
// All values are megabytes.
type MemoryConfig struct {
	PerAgentMB       uint64 `mapstructure:"per_agent_mb"`
	SafeMB           uint64 `mapstructure:"safe_mb"`
	WarningMB        uint64 `mapstructure:"warning_mb"`
	CriticalMB       uint64 `mapstructure:"critical_mb"`
	ReservedBufferMB uint64 `mapstructure:"reserved_buffer_mb"`
}

// SchedulerConfig holds dispatch-loop tunables.
type SchedulerConfig struct {
	// MaxConcurrentAgents caps in-flight dispatches. Zero derives the cap
	// from available memory alone.
	MaxConcurrentAgents   int           `mapstructure:"max_concurrent_agents"`
	MaxRetries            int           `mapstructure:"max_retries"`
	BackoffBase           time.Duration `mapstructure:"backoff_base"`
	BackoffCap            time.Duration `mapstructure:"backoff_cap"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	MaxDispatchesPerCycle int           `mapstructure:"max_dispatches_per_cycle"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// Window is the number of recent outcomes considered per agent type.
	Window int `mapstructure:"window"`
	// Threshold is the failure rate above which a type stops admitting.
	Threshold float64 `mapstructure:"threshold"`
	// MaxAge bounds how long an outcome counts toward the rate.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// HistoryConfig holds execution history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Empty disables history.
	DBPath string `mapstructure:"db_path"`
}

// SnapshotConfig holds queue snapshot settings.
type SnapshotConfig struct {
	// Path is where the queue snapshot is written. Empty disables snapshots.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	// DebugLogPath is the scheduler debug log file. Empty disables it.
	DebugLogPath string `mapstructure:"debug_log_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (DISPATCH_*)
// 2. Project config (.dispatch.yaml in current directory or parent)
// 3. User config (~/.config/dispatch/config.yaml)
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

	// Environment variable overrides: DISPATCH_SCHEDULER_MAX_RETRIES etc.
	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(cfg)

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

	expandPaths(cfg)

	return cfg, nil
}

// expandPaths expands ${VAR} references in path-valued settings.
func expandPaths(cfg *Config) {
	cfg.History.DBPath = os.ExpandEnv(cfg.History.DBPath)
	cfg.Snapshot.Path = os.ExpandEnv(cfg.Snapshot.Path)
	cfg.Logging.DebugLogPath = os.ExpandEnv(cfg.Logging.DebugLogPath)
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

	v.Set("memory.per_agent_mb", cfg.Memory.PerAgentMB)
	v.Set("memory.safe_mb", cfg.Memory.SafeMB)
	v.Set("memory.warning_mb", cfg.Memory.WarningMB)
	v.Set("memory.critical_mb", cfg.Memory.CriticalMB)
	v.Set("memory.reserved_buffer_mb", cfg.Memory.ReservedBufferMB)
	v.Set("scheduler.max_concurrent_agents", cfg.Scheduler.MaxConcurrentAgents)
	v.Set("scheduler.max_retries", cfg.Scheduler.MaxRetries)
	v.Set("scheduler.backoff_base", cfg.Scheduler.BackoffBase.String())
	v.Set("scheduler.backoff_cap", cfg.Scheduler.BackoffCap.String())
	v.Set("scheduler.poll_interval", cfg.Scheduler.PollInterval.String())
	v.Set("scheduler.max_dispatches_per_cycle", cfg.Scheduler.MaxDispatchesPerCycle)
	v.Set("breaker.window", cfg.Breaker.Window)
	v.Set("breaker.threshold", cfg.Breaker.Threshold)
	v.Set("breaker.max_age", cfg.Breaker.MaxAge.String())
	v.Set("history.db_path", cfg.History.DBPath)
	v.Set("snapshot.path", cfg.Snapshot.Path)
	v.Set("logging.debug_log_path", cfg.Logging.DebugLogPath)

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

// Thresholds converts the memory section to monitor thresholds.
func (c *Config) Thresholds() monitor.Thresholds {
	return monitor.Thresholds{
		SafeMB:           c.Memory.SafeMB,
		WarningMB:        c.Memory.WarningMB,
		CriticalMB:       c.Memory.CriticalMB,
		ReservedBufferMB: c.Memory.ReservedBufferMB,
		MemoryPerAgentMB: c.Memory.PerAgentMB,
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Memory defaults
	v.SetDefault("memory.per_agent_mb", 512)
	v.SetDefault("memory.safe_mb", 2048)
	v.SetDefault("memory.warning_mb", 1024)
	v.SetDefault("memory.critical_mb", 512)
	v.SetDefault("memory.reserved_buffer_mb", 1024)

	// Scheduler defaults
	v.SetDefault("scheduler.max_concurrent_agents", 0)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.backoff_base", "1s")
	v.SetDefault("scheduler.backoff_cap", "1m")
	v.SetDefault("scheduler.poll_interval", "250ms")
	v.SetDefault("scheduler.max_dispatches_per_cycle", 8)

	// Breaker defaults
	v.SetDefault("breaker.window", 10)
	v.SetDefault("breaker.threshold", 0.5)
	v.SetDefault("breaker.max_age", "1h")

	// Persistence defaults
	v.SetDefault("history.db_path", "")
	v.SetDefault("snapshot.path", "")
	v.SetDefault("logging.debug_log_path", "")
}

// getUserConfigDir returns the XDG config directory for dispatch.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dispatch")
	}

	// Fall back to ~/.config/dispatch
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "dispatch")
	}
	return filepath.Join(home, ".config", "dispatch")
}

// findProjectConfig searches for .dispatch.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".dispatch.yaml")
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
		Memory: MemoryConfig{
			PerAgentMB:       512,
			SafeMB:           2048,
			WarningMB:        1024,
			CriticalMB:       512,
			ReservedBufferMB: 1024,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentAgents:   0,
			MaxRetries:            3,
			BackoffBase:           time.Second,
			BackoffCap:            time.Minute,
			PollInterval:          250 * time.Millisecond,
			MaxDispatchesPerCycle: 8,
		},
		Breaker: BreakerConfig{
			Window:    10,
			Threshold: 0.5,
			MaxAge:    time.Hour,
		},
	}
}
