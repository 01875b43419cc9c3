package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mschirtzinger/famtasks/internal/dashboard"
	"github.com/mschirtzinger/famtasks/internal/engine"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync engine in the foreground",
	Long: `Run the sync engine until interrupted.

The daemon:
  1. Monitors connectivity to the remote store
  2. Syncs periodically while online and immediately on reconnect
  3. Keeps live listeners on the user's and family's tasks
  4. Optionally serves the status dashboard (--dashboard)`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg := loadConfig()
		withDashboard := cfg.Dashboard.Enabled
		if cmd.Flags().Changed("dashboard") {
			withDashboard, _ = cmd.Flags().GetBool("dashboard")
		}
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		var (
			server  *dashboard.Server
			handler *dashboard.Handler
			opts    runtimeOptions
		)
		if withDashboard {
			server = dashboard.NewServer(&dashboard.Config{Port: port})
			handler = dashboard.NewHandler(server, nil)
			opts.events = handler
		}

		rt, err := openRuntime(ctx, opts)
		if err != nil {
			fatalf("%v", err)
		}
		defer rt.close(context.Background())

		if server != nil {
			handler.UpdateStats(rt.store.GetTasksForScope(rt.cfg.User.ID, rt.cfg.User.FamilyID))
			defer handler.Attach(rt.engine.Status())()
			if err := server.Start(); err != nil {
				rt.close(context.Background())
				fatalf("failed to start dashboard: %v", err)
			}
			defer func() { _ = server.Stop() }()
		}

		if err := rt.engine.Start(ctx); err != nil {
			rt.close(context.Background())
			fatalf("failed to start engine: %v", err)
		}

		fmt.Printf("%s Sync daemon running for %s\n", ui.RenderAccent("🚀"), rt.cfg.User.ID)
		fmt.Printf("   Remote: %s\n", rt.cfg.Remote.URL)
		fmt.Printf("   Cache: %s\n", rt.cfg.StorePath())
		if server != nil {
			fmt.Printf("   Dashboard: ws://%s/ws\n", server.GetAddr())
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		<-ctx.Done()
		fmt.Println("\nShutting down...")
		printLast(rt.engine)
	},
}

func printLast(e *engine.Engine) {
	if rep := e.LastCycle(); rep.Seq > 0 {
		printReport(rep)
	}
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the status dashboard (default from dashboard.enabled)")
	daemonCmd.Flags().IntP("port", "p", 8080, "dashboard port (default from dashboard.port)")
	rootCmd.AddCommand(daemonCmd)
}
