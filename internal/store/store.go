// Package store implements the local key-value cache of the offline sync core.
//
// The whole cache (users, families, tasks, approvals, history, the pending
// operation queue and sync bookkeeping) is one model.OfflineData value,
// serialized as a single JSON document under one storage key. All readers
// and writers go through the Store; nobody touches the serialized blob.
//
// Writes update the in-memory copy immediately, so a reader in the same
// process always sees the latest state, and schedule a debounced durable
// write: bursts of Set/Update calls within the debounce window coalesce
// into one backend write after the window goes idle. Flush forces the
// pending write before the process suspends or exits.
//
// Failure semantics:
//   - A document that cannot be read or decoded yields an empty cache; the
//     error is logged and never returned.
//   - Debounced writes that fail are logged and swallowed. Flush returns
//     the error so shutdown paths can report it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mschirtzinger/famtasks/internal/model"
)

// DefaultKey is the storage key of the cache document.
const DefaultKey = "famtasks_offline_data"

// Config holds configuration for the store.
type Config struct {
	// Key is the storage key of the cache document.
	Key string

	// DebounceInterval is how long the store waits after the last write
	// before persisting. Zero persists on every write.
	DebounceInterval time.Duration

	// Clock drives the debounce timer and the retention cutoffs.
	Clock clock.Clock

	// Logger for store activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Key:              DefaultKey,
		DebounceInterval: 500 * time.Millisecond,
		Clock:            clock.New(),
		Logger:           log.New(os.Stderr, "[store] ", log.LstdFlags),
	}
}

// Patch is a merge-patch over the cache root. Every non-nil field replaces
// the corresponding top-level field; nil fields are left untouched.
type Patch struct {
	Users             map[string]model.User
	Families          map[string]model.Family
	Tasks             map[string]model.Task
	Approvals         map[string]model.Approval
	History           map[string]model.HistoryItem
	PendingOperations []model.PendingOperation
	FailedOperations  []model.PendingOperation
	NotificationReads map[string]bool
	LastSync          *int64
	LastFullSync      *int64
}

// Store is the single owner of the cached OfflineData.
type Store struct {
	backend Backend
	config  *Config

	mu     sync.Mutex
	data   model.OfflineData
	dirty  bool
	timer  *clock.Timer
	closed bool

	// writeMu serializes backend writes between the debounce timer and Flush.
	writeMu sync.Mutex
}

// New creates a store over backend and loads the cached document.
//
// A missing or corrupt document yields an empty cache.
func New(ctx context.Context, backend Backend, config *Config) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Key == "" {
		config.Key = defaults.Key
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	s := &Store{
		backend: backend,
		config:  config,
		data:    model.NewOfflineData(),
	}
	s.data = s.load(ctx)
	return s, nil
}

// load reads and decodes the cache document, falling back to an empty cache.
func (s *Store) load(ctx context.Context) model.OfflineData {
	raw, err := s.backend.Load(ctx, s.config.Key)
	if err != nil {
		s.config.Logger.Printf("Warning: failed to read cache, starting empty: %v", err)
		return model.NewOfflineData()
	}
	if len(raw) == 0 {
		return model.NewOfflineData()
	}

	var data model.OfflineData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.config.Logger.Printf("Warning: cache document is corrupt, starting empty: %v", err)
		return model.NewOfflineData()
	}
	data.EnsureMaps()
	return data
}

// Get returns a deep copy of the current cache.
func (s *Store) Get() model.OfflineData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Set applies a merge-patch to the cache and schedules a durable write.
func (s *Store) Set(p Patch) {
	s.Update(func(d *model.OfflineData) {
		if p.Users != nil {
			d.Users = p.Users
		}
		if p.Families != nil {
			d.Families = p.Families
		}
		if p.Tasks != nil {
			d.Tasks = p.Tasks
		}
		if p.Approvals != nil {
			d.Approvals = p.Approvals
		}
		if p.History != nil {
			d.History = p.History
		}
		if p.PendingOperations != nil {
			d.PendingOperations = p.PendingOperations
		}
		if p.FailedOperations != nil {
			d.FailedOperations = p.FailedOperations
		}
		if p.NotificationReads != nil {
			d.NotificationReads = p.NotificationReads
		}
		if p.LastSync != nil {
			d.LastSync = *p.LastSync
		}
		if p.LastFullSync != nil {
			d.LastFullSync = *p.LastFullSync
		}
	})
}

// Update runs fn against the live cache under the store lock and schedules
// a durable write. fn must not retain d or call back into the store.
func (s *Store) Update(fn func(d *model.OfflineData)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.data)
	s.data.EnsureMaps()
	s.dirty = true
	s.scheduleLocked()
}

// View runs fn against the live cache under the store lock without copying.
// fn must not modify d.
func (s *Store) View(fn func(d *model.OfflineData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
}

// scheduleLocked (re)arms the debounce timer. s.mu must be held.
func (s *Store) scheduleLocked() {
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.config.Clock.AfterFunc(s.config.DebounceInterval, func() {
		if err := s.persist(context.Background()); err != nil {
			s.config.Logger.Printf("Warning: failed to persist cache: %v", err)
		}
	})
}

// persist writes the cache document if it changed since the last write.
func (s *Store) persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.backend.Save(ctx, s.config.Key, raw); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Flush forces any pending debounced write to complete before returning.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return s.persist(ctx)
}

// Close flushes pending writes and closes the backend.
// The store remains readable but no longer schedules writes.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("failed to close backend: %w", err)
	}
	return flushErr
}

// Clear resets the cache to an empty document.
func (s *Store) Clear() {
	s.Update(func(d *model.OfflineData) {
		*d = model.NewOfflineData()
	})
}
