// Package engine implements the sync engine that reconciles the local
// cache with the remote document store.
//
// The engine is idle until one of three triggers fires: connectivity
// returning (an offline to online edge derived from the monitor's raw
// stream), the periodic timer while online, or an explicit ForceSync.
// At most one cycle runs at a time. A cycle drains the pending operation
// queue, downloads tasks changed since the last successful sync, runs a
// full reconciliation when due, re-establishes the remote listeners and
// finally compacts the cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mschirtzinger/famtasks/internal/connectivity"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/queue"
	"github.com/mschirtzinger/famtasks/internal/remote"
	"github.com/mschirtzinger/famtasks/internal/retry"
	"github.com/mschirtzinger/famtasks/internal/status"
	"github.com/mschirtzinger/famtasks/internal/store"
	"golang.org/x/sync/singleflight"
)

// Config holds configuration for the engine.
type Config struct {
	// UserID and FamilyID scope every download and listener. An empty
	// FamilyID means the user has no family.
	UserID   string
	FamilyID string

	// Interval is the periodic sync interval while online.
	Interval time.Duration

	// FullSyncInterval is the minimum time between two full
	// reconciliations of unforced cycles.
	FullSyncInterval time.Duration

	// ConflictPolicy decides inbound remote task updates.
	ConflictPolicy ConflictPolicy

	// Retry bounds queued operation attempts.
	Retry retry.Policy

	// RetentionDays and HistoryRetentionDays drive cache compaction.
	RetentionDays        int
	HistoryRetentionDays int

	// CompactionProbability is the chance a cycle compacts the cache.
	CompactionProbability float64

	// Rand is the jitter and compaction source. Nil uses math/rand/v2.
	Rand retry.RandomSource

	Clock clock.Clock

	// Events receives cache and queue events. Optional.
	Events EventSink

	// Logger for engine activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:              30 * time.Second,
		FullSyncInterval:      5 * time.Minute,
		ConflictPolicy:        LocalWins,
		Retry:                 retry.DefaultPolicy(),
		RetentionDays:         7,
		HistoryRetentionDays:  30,
		CompactionProbability: 0.5,
		Clock:                 clock.New(),
		Logger:                log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Deps are the collaborators of an engine. Store, Gateway and Monitor are
// required; Queue and Status are created when nil.
type Deps struct {
	Store   *store.Store
	Queue   *queue.Queue
	Gateway *remote.Gateway
	Monitor *connectivity.Monitor
	Status  *status.Publisher
}

// Report describes one sync cycle.
type Report struct {
	Seq        int       `json:"seq"`
	Forced     bool      `json:"forced"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Drained    int       `json:"drained"`
	Deferred   int       `json:"deferred"`
	Failed     int       `json:"failed"`
	Dropped    int       `json:"dropped"`
	Downloaded int       `json:"downloaded"`
	Removed    int       `json:"removed"`
	FullSync   bool      `json:"fullSync"`
	Pruned     int       `json:"pruned"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the cycle ran.
func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Engine orchestrates sync cycles.
type Engine struct {
	store   *store.Store
	queue   *queue.Queue
	gateway *remote.Gateway
	monitor *connectivity.Monitor
	status  *status.Publisher
	config  *Config
	visitor *gatewayVisitor

	group   singleflight.Group
	syncing atomic.Bool
	seq     atomic.Int64

	// inflight counts write-through remote calls per entity.
	inflightMu sync.Mutex
	inflight   map[entityKey]int

	mu         sync.Mutex
	running    bool
	online     bool
	paused     bool
	tickStop   chan struct{}
	listeners  []func()
	removeConn func()
	last       Report

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine. It does not start any trigger; see Start.
func New(deps Deps, config *Config) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}

	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.UserID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.FullSyncInterval <= 0 {
		config.FullSyncInterval = defaults.FullSyncInterval
	}
	if config.ConflictPolicy == "" {
		config.ConflictPolicy = defaults.ConflictPolicy
	}
	if _, err := ParseConflictPolicy(string(config.ConflictPolicy)); err != nil {
		return nil, err
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = defaults.Retry
	}
	if config.Retry.Rand == nil {
		config.Retry.Rand = config.Rand
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	e := &Engine{
		store:    deps.Store,
		queue:    deps.Queue,
		gateway:  deps.Gateway,
		monitor:  deps.Monitor,
		status:   deps.Status,
		config:   config,
		inflight: make(map[entityKey]int),
	}
	if e.queue == nil {
		e.queue = queue.New(e.store, &queue.Config{Clock: config.Clock, Logger: config.Logger})
	}
	if e.status == nil {
		e.status = status.NewPublisher(status.Status{})
	}
	e.visitor = &gatewayVisitor{
		gateway: e.gateway,
		actor:   remote.Actor{UserID: config.UserID, FamilyID: config.FamilyID},
	}
	e.queue.SetOnChange(e.onQueueChange)

	pending, failed := e.queue.Counts()
	e.status.Update(func(s *status.Status) {
		s.IsOnline = e.monitor.IsConnected()
		s.LastSync = e.store.LastSync()
		s.PendingOperations = pending
		s.FailedOperations = failed
	})
	return e, nil
}

// Status returns the status publisher.
func (e *Engine) Status() *status.Publisher {
	return e.status
}

// Queue returns the pending operation queue.
func (e *Engine) Queue() *queue.Queue {
	return e.queue
}

// Start enables the connectivity and periodic triggers. If the monitor
// reports online, a first cycle starts immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.removeConn = e.monitor.AddListener(e.onConnectivity)
	e.online = e.monitor.IsConnected()
	online := e.online
	if !e.paused {
		e.startTickerLocked()
	}
	e.mu.Unlock()

	e.status.Update(func(s *status.Status) { s.IsOnline = online })
	e.config.Logger.Printf("Sync engine started (user=%s, family=%s, interval=%v, policy=%s)",
		e.config.UserID, e.config.FamilyID, e.config.Interval, e.config.ConflictPolicy)

	if online {
		e.trigger("startup")
	}
	return nil
}

// Stop disables every trigger, tears down the remote listeners, waits for
// an in-flight cycle and flushes the cache.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	e.stopTickerLocked()
	removeConn := e.removeConn
	e.removeConn = nil
	listeners := e.listeners
	e.listeners = nil
	e.mu.Unlock()

	if removeConn != nil {
		removeConn()
	}
	for _, unsub := range listeners {
		unsub()
	}
	e.wg.Wait()

	if err := e.store.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	e.config.Logger.Println("Sync engine stopped")
	return nil
}

// Pause stops the periodic timer. A running cycle is not interrupted.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return
	}
	e.paused = true
	e.stopTickerLocked()
	e.config.Logger.Println("Periodic sync paused")
}

// Resume restarts the periodic timer after Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		return
	}
	e.paused = false
	if e.running {
		e.startTickerLocked()
	}
	e.config.Logger.Println("Periodic sync resumed")
}

func (e *Engine) startTickerLocked() {
	if e.tickStop != nil {
		return
	}
	done := make(chan struct{})
	e.tickStop = done
	ticker := e.config.Clock.Ticker(e.config.Interval)
	ctx := e.ctx

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if e.IsOnline() {
					e.trigger("periodic")
				}
			}
		}
	}()
}

func (e *Engine) stopTickerLocked() {
	if e.tickStop != nil {
		close(e.tickStop)
		e.tickStop = nil
	}
}

// IsOnline reports the connectivity state the engine last observed.
func (e *Engine) IsOnline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return e.monitor.IsConnected()
	}
	return e.online
}

// IsSyncing reports whether a cycle is in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// LastCycle returns the report of the most recent cycle.
func (e *Engine) LastCycle() Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) onConnectivity(st connectivity.State) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = st.Connected
	e.mu.Unlock()

	e.status.Update(func(s *status.Status) { s.IsOnline = st.Connected })

	switch {
	case !wasOnline && st.Connected:
		e.config.Logger.Println("Connectivity restored, starting sync")
		e.trigger("reconnect")
	case wasOnline && !st.Connected:
		e.config.Logger.Println("Connectivity lost, stopping remote listeners")
		e.stopListeners()
	}
}

func (e *Engine) onQueueChange(pending, failed int) {
	e.status.Update(func(s *status.Status) {
		s.PendingOperations = pending
		s.FailedOperations = failed
	})
	if e.config.Events != nil {
		e.config.Events.OnQueueChanged(pending, failed)
	}
}

// trigger starts a background cycle unless one is already running.
func (e *Engine) trigger(reason string) {
	if e.syncing.Load() {
		return
	}
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	ctx := e.ctx
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		if _, err := e.do(ctx, false); err != nil && !errors.Is(err, model.ErrOffline) {
			e.config.Logger.Printf("Warning: %s sync failed: %v", reason, err)
		}
	}()
}

// ForceSync runs a forced cycle, which always includes a full
// reconciliation. Concurrent callers share the in-flight forced cycle and
// its result; a caller arriving during a periodic cycle waits for it and
// then runs a forced one. It returns model.ErrOffline while disconnected.
func (e *Engine) ForceSync(ctx context.Context) (Report, error) {
	return e.do(ctx, true)
}

func (e *Engine) do(ctx context.Context, forced bool) (Report, error) {
	for {
		v, err, _ := e.group.Do("cycle", func() (any, error) {
			return e.runCycle(ctx, forced)
		})
		rep, _ := v.(Report)
		if err != nil || !forced || rep.Forced {
			return rep, err
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
	}
}

func (e *Engine) random() float64 {
	if e.config.Rand == nil {
		return rand.Float64()
	}
	return e.config.Rand.Float64()
}
