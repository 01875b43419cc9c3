package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mschirtzinger/famtasks/internal/config"
	"github.com/mschirtzinger/famtasks/internal/docstore"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the remote document server",
	Long: `Serve the document store that famsync clients sync with.

Documents are persisted in a sqlite database (server.db_path). Clients
read and write over HTTP and subscribe to query results over WebSocket:

  GET/PUT/DELETE /v1/doc?collection=...&id=...
  POST           /v1/query
  GET (WS)       /v1/subscribe`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		dbPath := cfg.Server.DBPath
		if cmd.Flags().Changed("db") {
			dbPath, _ = cmd.Flags().GetString("db")
		}

		// The server always logs, to log.file or stderr.
		out, closer := cfg.Log.Writer()
		defer closer.Close()
		logs := config.NewLoggers(out)

		store, err := docstore.OpenSQLite(dbPath, logs.For("docstore"))
		if err != nil {
			fatalf("failed to open %s: %v", dbPath, err)
		}
		defer store.Close()

		server := docstore.NewServer(store, &docstore.Config{Port: port, Logger: logs.For("docserver")})
		if err := server.Start(); err != nil {
			_ = store.Close()
			fatalf("failed to start server: %v", err)
		}

		fmt.Printf("%s Document server listening on %s\n", ui.RenderAccent("🗄"), server.GetAddr())
		fmt.Printf("   Database: %s\n", dbPath)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down document server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8090, "port to listen on (default from server.port)")
	serveCmd.Flags().String("db", "", "sqlite database path (default from server.db_path)")
	rootCmd.AddCommand(serveCmd)
}
