package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mschirtzinger/famtasks/internal/engine"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one forced sync cycle",
	Long: `Run a single sync cycle and print its report.

The cycle drains the pending operation queue, downloads remote changes and
reconciles the cache with the remote store. When the remote store is
unreachable nothing is attempted and queued operations are kept.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rt, err := openRuntime(ctx, runtimeOptions{})
		if err != nil {
			fatalf("%v", err)
		}
		defer rt.close(context.Background())

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), rt.cfg.Remote.URL)
		rep, err := rt.engine.ForceSync(ctx)
		if errors.Is(err, model.ErrOffline) {
			pending, _ := rt.engine.Queue().Counts()
			fmt.Printf("%s Offline: %d operations remain queued\n", ui.RenderWarn("⚠"), pending)
			return
		}
		printReport(rep)
		if err != nil {
			rt.close(context.Background())
			fatalf("sync failed: %v", err)
		}
	},
}

func printReport(rep engine.Report) {
	marker := ui.RenderPass("✓")
	if rep.Error != "" {
		marker = ui.RenderFail("✗")
	}
	fmt.Printf("%s Cycle %d finished in %v\n", marker, rep.Seq, rep.Duration().Round(time.Millisecond))

	rows := [][2]string{
		{"Drained", fmt.Sprint(rep.Drained)},
		{"Deferred", fmt.Sprint(rep.Deferred)},
		{"Retrying", fmt.Sprint(rep.Failed)},
		{"Dropped", fmt.Sprint(rep.Dropped)},
		{"Downloaded", fmt.Sprint(rep.Downloaded)},
		{"Removed", fmt.Sprint(rep.Removed)},
		{"Full sync", yesNo(rep.FullSync)},
	}
	if rep.Pruned > 0 {
		rows = append(rows, [2]string{"Pruned", fmt.Sprint(rep.Pruned)})
	}
	if rep.Error != "" {
		rows = append(rows, [2]string{"Error", ui.RenderFail(rep.Error)})
	}
	fmt.Print(ui.KeyValue(rows))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
