package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mschirtzinger/famtasks/internal/config"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/queue"
	"github.com/mschirtzinger/famtasks/internal/store"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "data",
	Short:   "Inspect and manage queued operations",
	Long: `Inspect the operations waiting to reach the remote store.

Operations that exhausted their retries, or that the remote store refused,
are moved to the failed list. They can be requeued once the cause is fixed.`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending (or failed) operations",
	Run: func(cmd *cobra.Command, args []string) {
		failed, _ := cmd.Flags().GetBool("failed")
		withQueue(func(q *queue.Queue) {
			ops, title, empty := q.Pending(), "Pending operations", "Nothing queued"
			if failed {
				ops, title, empty = q.Failed(), "Failed operations", "No failed operations"
			}
			if len(ops) == 0 {
				fmt.Printf("%s %s\n", ui.RenderPass("✓"), empty)
				return
			}
			fmt.Printf("\n%s %s (%d)\n\n", ui.RenderAccent("📋"), title, len(ops))
			for _, op := range ops {
				printOperation(op)
			}
			fmt.Println()
		})
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Move failed operations back to the pending queue",
	Run: func(cmd *cobra.Command, args []string) {
		withQueue(func(q *queue.Queue) {
			n := q.RequeueFailed()
			fmt.Printf("%s Requeued %d operations\n", ui.RenderPass("✓"), n)
		})
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard failed operations",
	Run: func(cmd *cobra.Command, args []string) {
		withQueue(func(q *queue.Queue) {
			n := q.ClearFailed()
			fmt.Printf("%s Discarded %d failed operations\n", ui.RenderPass("✓"), n)
		})
	},
}

// withQueue opens the local cache, runs fn against its queue and flushes.
func withQueue(fn func(q *queue.Queue)) {
	ctx := context.Background()
	cfg := loadConfig()
	out, closeLog := logSink(cfg)
	defer func() { _ = closeLog() }()
	logs := config.NewLoggers(out)

	s, err := openStore(ctx, cfg, logs)
	if err != nil {
		fatalf("failed to open cache: %v", err)
	}
	fn(queue.New(s, &queue.Config{FailedLimit: cfg.Sync.FailedOpsLimit, Logger: logs.For("queue")}))
	closeStore(ctx, s)
}

func closeStore(ctx context.Context, s *store.Store) {
	if err := s.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close cache: %v\n", err)
	}
}

func printOperation(op model.PendingOperation) {
	entity := "?"
	if decoded, err := queue.Decode(op); err == nil {
		entity = decoded.EntityID()
	}
	queued := time.UnixMilli(op.Timestamp).Local().Format("2006-01-02 15:04:05")
	fmt.Printf("  %s %-6s %-9s %s  %s\n", ui.RenderMuted(shortID(op.ID)), op.Type, op.Collection, entity, ui.RenderMuted(queued))
	if op.RetryCount > 0 || op.LastError != "" {
		fmt.Printf("         retries=%d %s\n", op.RetryCount, ui.RenderFail(op.LastError))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	queueListCmd.Flags().Bool("failed", false, "list failed operations instead")
	queueCmd.AddCommand(queueListCmd, queueRequeueCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
