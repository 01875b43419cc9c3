package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mschirtzinger/famtasks/internal/config"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local cache and queue status",
	Long: `Display what the local cache holds and what is waiting to be synced.

Shows:
  - Cache location and entity counts
  - Pending and failed operations
  - Last successful sync and last full reconciliation`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := context.Background()

		cfg := loadConfig()
		out, closeLog := logSink(cfg)
		defer func() { _ = closeLog() }()

		s, err := openStore(ctx, cfg, config.NewLoggers(out))
		if err != nil {
			fatalf("failed to open cache: %v", err)
		}
		stats := s.Stats()
		if err := s.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close cache: %v\n", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(stats)
			return
		}

		fmt.Printf("\n%s famsync status\n\n", ui.RenderAccent("📊"))
		pending := fmt.Sprint(stats.PendingOperations)
		if stats.PendingOperations > 0 {
			pending = ui.RenderWarn(pending)
		}
		failed := fmt.Sprint(stats.FailedOperations)
		if stats.FailedOperations > 0 {
			failed = ui.RenderFail(failed)
		}
		fmt.Print(ui.KeyValue([][2]string{
			{"User", cfg.User.ID},
			{"Family", orNone(cfg.User.FamilyID)},
			{"Cache", cfg.StorePath()},
			{"Remote", cfg.Remote.URL},
			{"Tasks", fmt.Sprint(stats.Tasks)},
			{"Approvals", fmt.Sprint(stats.Approvals)},
			{"History", fmt.Sprint(stats.History)},
			{"Pending", pending},
			{"Failed", failed},
			{"Last sync", formatTime(stats.LastSync)},
			{"Last full sync", formatTime(stats.LastFullSync)},
		}))
		fmt.Println()
	},
}

func orNone(s string) string {
	if s == "" {
		return ui.RenderMuted("none")
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ui.RenderMuted("never")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func init() {
	statusCmd.Flags().Bool("json", false, "print stats as JSON")
	rootCmd.AddCommand(statusCmd)
}
