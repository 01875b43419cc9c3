package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// MarkerSource forces offline mode while a marker file exists. Creating
// the file takes the device offline; removing it brings it back.
type MarkerSource struct {
	path string
}

// NewMarkerSource creates a source watching the marker at path.
func NewMarkerSource(path string) *MarkerSource {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &MarkerSource{path: path}
}

// Path returns the absolute marker path.
func (m *MarkerSource) Path() string {
	return m.path
}

// Current implements Source.
func (m *MarkerSource) Current(ctx context.Context) (State, error) {
	_, err := os.Stat(m.path)
	switch {
	case err == nil:
		return State{Type: "marker", Detail: m.path + " present"}, nil
	case errors.Is(err, fs.ErrNotExist):
		return State{Connected: true, Type: "marker"}, nil
	default:
		return State{}, fmt.Errorf("failed to stat marker %s: %w", m.path, err)
	}
}

// Watch implements Source. It watches the marker's directory and reports
// the marker state after every create, remove or rename of the marker.
func (m *MarkerSource) Watch(ctx context.Context, fn func(State)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch marker directory %s: %w", dir, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.processEvents(ctx, watcher, done, fn)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			watcher.Close()
			wg.Wait()
		})
	}, nil
}

func (m *MarkerSource) processEvents(ctx context.Context, watcher *fsnotify.Watcher, done <-chan struct{}, fn func(State)) {
	var last State
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !m.relevant(event) {
				continue
			}
			st, err := m.Current(ctx)
			if err != nil || st == last {
				continue
			}
			last = st
			fn(st)

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// relevant reports whether event touches the marker. Chmod and writes
// do not change presence.
func (m *MarkerSource) relevant(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != m.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
