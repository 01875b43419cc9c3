package connectivity

import (
	"context"
	"sync"
)

// ManualSource reports whatever state it was last given. It backs the
// --online/--offline CLI flags and tests.
type ManualSource struct {
	mu       sync.Mutex
	state    State
	watchers map[int]func(State)
	nextID   int
}

// NewManualSource creates a source reporting initial.
func NewManualSource(initial State) *ManualSource {
	return &ManualSource{state: initial, watchers: make(map[int]func(State))}
}

// Online returns a connected manual state.
func Online() State { return State{Connected: true, Type: "manual"} }

// Set reports st to every watcher.
func (s *ManualSource) Set(st State) {
	s.mu.Lock()
	s.state = st
	fns := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// SetConnected is shorthand for Set with a manual state.
func (s *ManualSource) SetConnected(connected bool) {
	s.Set(State{Connected: connected, Type: "manual"})
}

// Current implements Source.
func (s *ManualSource) Current(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// Watch implements Source.
func (s *ManualSource) Watch(ctx context.Context, fn func(State)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop, nil
}
