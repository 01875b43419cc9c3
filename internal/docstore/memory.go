package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/mschirtzinger/famtasks/internal/model"
)

// Memory is an in-process Store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	clock       clock.Clock
	hub         *hub
	closed      bool
}

// NewMemory creates an empty in-memory store. A nil clock uses wall time.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	return &Memory{
		collections: make(map[string]map[string]Document),
		clock:       clk,
		hub:         newHub(log.New(io.Discard, "", 0)),
	}
}

// Get implements Store.Get.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Document{}, errClosed
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, model.ErrNotFound)
	}
	return doc, nil
}

// Set implements Store.Set.
func (m *Memory) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", model.ErrInvalidArgument)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: %s/%s: data is not valid JSON", model.ErrInvalidArgument, collection, id)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errClosed
	}
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		m.collections[collection] = docs
	}
	docs[id] = Document{
		ID:         id,
		Data:       append(json.RawMessage(nil), data...),
		UpdateTime: m.clock.Now(),
	}
	m.mu.Unlock()

	m.hub.changed(collection)
	return nil
}

// Delete implements Store.Delete.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errClosed
	}
	_, existed := m.collections[collection][id]
	delete(m.collections[collection], id)
	m.mu.Unlock()

	if existed {
		m.hub.changed(collection)
	}
	return nil
}

// Query implements Store.Query.
func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	docs := make([]Document, 0, len(m.collections[q.Collection]))
	for _, d := range m.collections[q.Collection] {
		docs = append(docs, d)
	}
	return q.apply(docs), nil
}

// Subscribe implements Store.Subscribe.
func (m *Memory) Subscribe(ctx context.Context, q Query, fn func([]Document)) (func(), error) {
	initial, err := m.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context) ([]Document, error) { return m.Query(ctx, q) }
	return m.hub.subscribe(ctx, q, initial, fetch, fn), nil
}

// Len returns the number of documents in collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Close implements Store.Close.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.hub.closeAll()
	return nil
}

var errClosed = fmt.Errorf("%w: store is closed", model.ErrUnavailable)
