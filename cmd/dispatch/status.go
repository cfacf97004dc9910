package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dispatch/internal/history"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent execution history",
	Long: `Status reads the execution history database and prints the most
recent task outcomes, newest first. Requires history.db_path to be set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Number of entries to show")
	statusCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a config file (overrides discovery)")
}

func showStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.History.DBPath == "" {
		return fmt.Errorf("history.db_path is not configured; nothing to show")
	}
	if _, err := os.Stat(cfg.History.DBPath); err != nil {
		return fmt.Errorf("no history database at %s", cfg.History.DBPath)
	}

	sink, err := history.OpenSQLite(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	defer sink.Close()

	entries, err := sink.Recent(statusLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No execution history yet.")
		return nil
	}

	for _, e := range entries {
		status := e.Status
		switch status {
		case "completed":
			status = color.GreenString("%-9s", status)
		case "failed":
			status = color.RedString("%-9s", status)
		case "retrying":
			status = color.YellowString("%-9s", status)
		default:
			status = fmt.Sprintf("%-9s", status)
		}

		line := fmt.Sprintf("%s  %s  %-12s agent=%s", e.CompletedAt.Format("2006-01-02 15:04:05"), status, e.TaskID, e.AgentName)
		if e.RetryCount > 0 {
			line += fmt.Sprintf(" retries=%d", e.RetryCount)
		}
		fmt.Println(line)
		if e.Status == "failed" && e.Detail != "" {
			fmt.Printf("    %s\n", e.Detail)
		}
	}
	return nil
}
