package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mschirtzinger/famtasks/internal/docstore"
)

// FlakyStore wraps a docstore.Store with fault injection and call counters.
type FlakyStore struct {
	docstore.Store

	mu        sync.Mutex
	readErr   error
	writeErr  error
	failNext  int
	gate      chan struct{}
	entered   chan struct{}
	queries   int
	writes    int
	subscribe int
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner docstore.Store) *FlakyStore {
	return &FlakyStore{Store: inner}
}

// FailReads makes Get, Query and Subscribe return err until cleared with nil.
func (f *FlakyStore) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// FailWrites makes Set and Delete return err until cleared with nil.
func (f *FlakyStore) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// FailNextWrites makes the next n writes return err.
func (f *FlakyStore) FailNextWrites(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
	f.writeErr = err
}

// Gate blocks every Query until Release is called. Entered receives a
// value each time a Query reaches the gate.
func (f *FlakyStore) Gate() (entered <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 64)
	return f.entered
}

// Release opens the gate.
func (f *FlakyStore) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Queries returns the number of Query calls.
func (f *FlakyStore) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// Writes returns the number of successful Set and Delete calls.
func (f *FlakyStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Subscriptions returns the number of Subscribe calls.
func (f *FlakyStore) Subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribe
}

func (f *FlakyStore) writeFault() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr == nil {
		return nil
	}
	err := f.writeErr
	if f.failNext > 0 {
		f.failNext--
		if f.failNext == 0 {
			f.writeErr = nil
		}
	}
	return err
}

func (f *FlakyStore) readFault() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readErr
}

// Get implements docstore.Store.
func (f *FlakyStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := f.readFault(); err != nil {
		return docstore.Document{}, err
	}
	return f.Store.Get(ctx, collection, id)
}

// Set implements docstore.Store.
func (f *FlakyStore) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := f.writeFault(); err != nil {
		return err
	}
	if err := f.Store.Set(ctx, collection, id, data); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}

// Delete implements docstore.Store.
func (f *FlakyStore) Delete(ctx context.Context, collection, id string) error {
	if err := f.writeFault(); err != nil {
		return err
	}
	if err := f.Store.Delete(ctx, collection, id); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}

// Query implements docstore.Store.
func (f *FlakyStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	f.mu.Lock()
	f.queries++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.readFault(); err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, q)
}

// Subscribe implements docstore.Store.
func (f *FlakyStore) Subscribe(ctx context.Context, q docstore.Query, fn func([]docstore.Document)) (func(), error) {
	f.mu.Lock()
	f.subscribe++
	f.mu.Unlock()
	if err := f.readFault(); err != nil {
		return nil, err
	}
	return f.Store.Subscribe(ctx, q, fn)
}
