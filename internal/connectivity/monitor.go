// Package connectivity reports whether the remote store is reachable.
//
// A Monitor follows one Source and fans its raw state stream out to
// listeners. It does not derive transitions; listeners receive every
// state the source reports, including repeats of the connected flag with
// a different type or detail.
package connectivity

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
)

// State is a snapshot of network reachability.
type State struct {
	Connected bool   `json:"connected"`
	Type      string `json:"type"`
	Detail    string `json:"detail,omitempty"`
}

// Offline is the state reported before any source has answered.
var Offline = State{Type: "unknown"}

// Source produces connectivity states.
type Source interface {
	// Current fetches the state now.
	Current(ctx context.Context) (State, error)

	// Watch calls fn for every state change until ctx is done or the
	// returned stop function is called.
	Watch(ctx context.Context, fn func(State)) (stop func(), err error)
}

// Config holds configuration for the monitor.
type Config struct {
	// Logger for connectivity activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// Monitor tracks the state reported by a Source.
type Monitor struct {
	source Source
	config *Config

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
	stop      func()
}

// NewMonitor creates a monitor over source. A nil source leaves the
// monitor in the Offline state.
func NewMonitor(source Source, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	return &Monitor{
		source:    source,
		config:    config,
		state:     Offline,
		listeners: make(map[int]func(State)),
	}
}

// Initialize subscribes to the source and fetches the current state.
// A failing source is logged and leaves the state unchanged.
func (m *Monitor) Initialize(ctx context.Context) error {
	if m.source == nil {
		m.config.Logger.Printf("Warning: no connectivity source configured, staying offline")
		return nil
	}

	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return fmt.Errorf("monitor already initialized")
	}
	m.mu.Unlock()

	stop, err := m.source.Watch(ctx, m.set)
	if err != nil {
		m.config.Logger.Printf("Warning: failed to watch connectivity: %v", err)
		stop = func() {}
	}
	m.mu.Lock()
	m.stop = stop
	m.mu.Unlock()

	st, err := m.source.Current(ctx)
	if err != nil {
		m.config.Logger.Printf("Warning: failed to fetch connectivity state: %v", err)
		return nil
	}
	m.set(st)
	return nil
}

func (m *Monitor) set(st State) {
	m.mu.Lock()
	prev := m.state
	m.state = st
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if prev.Connected != st.Connected {
		m.config.Logger.Printf("Connectivity changed: connected=%v type=%s", st.Connected, st.Type)
	}
	for _, fn := range fns {
		fn(st)
	}
}

// IsConnected reports the last known reachability.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Connected
}

// CurrentState returns the last known state.
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AddListener registers fn for every state change. The returned function
// removes it.
func (m *Monitor) AddListener(fn func(State)) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Close stops watching the source and removes every listener.
func (m *Monitor) Close() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.listeners = make(map[int]func(State))
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
}
