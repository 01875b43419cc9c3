package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mschirtzinger/famtasks/internal/config"
	"github.com/mschirtzinger/famtasks/internal/connectivity"
	"github.com/mschirtzinger/famtasks/internal/docstore"
	"github.com/mschirtzinger/famtasks/internal/engine"
	"github.com/mschirtzinger/famtasks/internal/queue"
	"github.com/mschirtzinger/famtasks/internal/remote"
	"github.com/mschirtzinger/famtasks/internal/store"
)

// runtime is everything a command needs to talk to the cache and the
// remote store.
type runtime struct {
	cfg     *config.Config
	logs    *config.Loggers
	store   *store.Store
	client  *docstore.Client
	gateway *remote.Gateway
	monitor *connectivity.Monitor
	engine  *engine.Engine

	closers []func() error
}

// runtimeOptions adjust how openRuntime wires the engine.
type runtimeOptions struct {
	events engine.EventSink
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("%v", err)
	}
	return cfg
}

// logSink returns the destination of component logs. Without --verbose and
// without log.file, component logs are discarded so command output stays
// readable.
func logSink(cfg *config.Config) (io.Writer, func() error) {
	if cfg.Log.File == "" && !verbose {
		return io.Discard, func() error { return nil }
	}
	w, c := cfg.Log.Writer()
	return w, c.Close
}

// openStore opens only the local cache. Commands that never reach the
// remote store use it directly.
func openStore(ctx context.Context, cfg *config.Config, logs *config.Loggers) (*store.Store, error) {
	path := cfg.StorePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	backend, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return store.New(ctx, backend, &store.Config{
		Key:              cfg.Store.Key,
		DebounceInterval: cfg.Store.Debounce,
		Logger:           logs.For("store"),
	})
}

// openRuntime loads the configuration and wires store, gateway,
// connectivity monitor and engine. The engine is not started.
func openRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg := loadConfig()
	if err := cfg.RequireUser(); err != nil {
		return nil, err
	}

	out, closeLog := logSink(cfg)
	rt := &runtime{cfg: cfg, logs: config.NewLoggers(out)}
	rt.closers = append(rt.closers, closeLog)

	s, err := openStore(ctx, cfg, rt.logs)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.store = s

	clientConfig := docstore.DefaultClientConfig(cfg.Remote.URL)
	clientConfig.Logger = rt.logs.For("docstore")
	client, err := docstore.NewClient(clientConfig)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.client = client
	rt.closers = append(rt.closers, client.Close)

	rt.gateway = remote.New(client, &remote.Config{
		RetentionDays: cfg.Sync.RetentionDays,
		Logger:        rt.logs.For("remote"),
	})

	rt.monitor = connectivity.NewMonitor(connectivitySource(cfg), &connectivity.Config{Logger: rt.logs.For("connectivity")})
	if err := rt.monitor.Initialize(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}

	q := queue.New(s, &queue.Config{
		FailedLimit: cfg.Sync.FailedOpsLimit,
		Logger:      rt.logs.For("queue"),
	})

	e, err := engine.New(engine.Deps{
		Store:   s,
		Queue:   q,
		Gateway: rt.gateway,
		Monitor: rt.monitor,
	}, &engine.Config{
		UserID:                cfg.User.ID,
		FamilyID:              cfg.User.FamilyID,
		Interval:              cfg.Sync.Interval,
		FullSyncInterval:      cfg.Sync.FullSyncInterval,
		ConflictPolicy:        cfg.ConflictPolicy(),
		Retry:                 cfg.RetryPolicy(),
		RetentionDays:         cfg.Sync.RetentionDays,
		HistoryRetentionDays:  cfg.Sync.HistoryRetentionDays,
		CompactionProbability: cfg.Sync.CompactionProbability,
		Events:                opts.events,
		Logger:                rt.logs.For("engine"),
	})
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.engine = e
	return rt, nil
}

// connectivitySource combines a TCP probe of the remote host with the
// optional offline marker file.
func connectivitySource(cfg *config.Config) connectivity.Source {
	var sources []connectivity.Source
	if addr := probeAddr(cfg); addr != "" {
		sources = append(sources, connectivity.NewProbeSource(addr, cfg.Connectivity.ProbeInterval))
	}
	if cfg.Connectivity.MarkerFile != "" {
		path, err := filepath.Abs(cfg.Connectivity.MarkerFile)
		if err == nil {
			sources = append(sources, connectivity.NewMarkerSource(path))
		}
	}
	if len(sources) == 0 {
		return nil
	}
	return connectivity.All(sources...)
}

// probeAddr returns connectivity.probe_addr, or host:port of remote.url.
func probeAddr(cfg *config.Config) string {
	if cfg.Connectivity.ProbeAddr != "" {
		return cfg.Connectivity.ProbeAddr
	}
	u, err := url.Parse(cfg.Remote.URL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// close stops the engine and releases every resource in reverse order.
func (rt *runtime) close(ctx context.Context) {
	if rt.engine != nil {
		if err := rt.engine.Stop(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop engine: %v\n", err)
		}
	}
	if rt.monitor != nil {
		rt.monitor.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close cache: %v\n", err)
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}
