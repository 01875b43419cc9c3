package main

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/famtasks/internal/config"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:     "prune",
	GroupID: "data",
	Short:   "Remove old completed tasks and history from the cache",
	Long: `Compact the local cache.

Tasks completed more than --days days ago and history entries older than
--history-days days are removed from the cache. The remote store is not
touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		days := cfg.Sync.RetentionDays
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}
		historyDays := cfg.Sync.HistoryRetentionDays
		if cmd.Flags().Changed("history-days") {
			historyDays, _ = cmd.Flags().GetInt("history-days")
		}
		if days < 0 || historyDays < 0 {
			fatalf("retention days must not be negative")
		}

		out, closeLog := logSink(cfg)
		defer func() { _ = closeLog() }()
		s, err := openStore(ctx, cfg, config.NewLoggers(out))
		if err != nil {
			fatalf("failed to open cache: %v", err)
		}

		tasks := s.ClearOldCompletedTasks(days)
		history := s.ClearOldHistory(historyDays)
		closeStore(ctx, s)

		fmt.Printf("%s Pruned %d tasks completed over %d days ago and %d history entries over %d days old\n",
			ui.RenderPass("✓"), tasks, days, history, historyDays)
	},
}

func init() {
	pruneCmd.Flags().Int("days", 7, "keep tasks completed within this many days (default from sync.retention_days)")
	pruneCmd.Flags().Int("history-days", 30, "keep history within this many days (default from sync.history_retention_days)")
	rootCmd.AddCommand(pruneCmd)
}
