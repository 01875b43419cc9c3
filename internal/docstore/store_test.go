package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/retry"
)

// storeFactories returns every Store implementation under test.
func storeFactories() map[string]func(t *testing.T) Store {
	quiet := log.New(io.Discard, "", 0)
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory(nil) },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"), quiet)
			if err != nil {
				t.Fatalf("OpenSQLite() failed: %v", err)
			}
			return s
		},
		"client": func(t *testing.T) Store {
			backing := NewMemory(nil)
			srv := NewServer(backing, &Config{Logger: quiet})
			ts := httptest.NewServer(srv.Handler())
			t.Cleanup(func() {
				_ = srv.Stop()
				ts.Close()
				_ = backing.Close()
			})
			c, err := NewClient(&ClientConfig{
				BaseURL: ts.URL,
				Retry:   retry.Policy{MaxAttempts: 1},
				Logger:  quiet,
			})
			if err != nil {
				t.Fatalf("NewClient() failed: %v", err)
			}
			return c
		},
	}
}

// collector records subscription deliveries.
type collector struct {
	mu     sync.Mutex
	frames [][]Document
}

func (c *collector) add(docs []Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, docs)
}

func (c *collector) last() ([]Document, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil, 0
	}
	return c.frames[len(c.frames)-1], len(c.frames)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			if _, err := s.Get(ctx, "tasks", "t1"); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("Get() of missing doc error = %v, want not found", err)
			}

			if err := s.Set(ctx, "tasks", "t1", json.RawMessage(`{"title":"Buy milk","userId":"u1"}`)); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
			got, err := s.Get(ctx, "tasks", "t1")
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			var fields map[string]string
			if err := got.Decode(&fields); err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if got.ID != "t1" || fields["title"] != "Buy milk" {
				t.Errorf("Get() = %+v", got)
			}

			if err := s.Set(ctx, "tasks", "t1", json.RawMessage(`not json`)); !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("Set() with invalid JSON error = %v, want invalid argument", err)
			}

			if err := s.Delete(ctx, "tasks", "t1"); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			if err := s.Delete(ctx, "tasks", "t1"); err != nil {
				t.Errorf("Delete() of missing doc failed: %v", err)
			}
			if _, err := s.Get(ctx, "tasks", "t1"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("Get() after delete error = %v", err)
			}
		})
	}
}

func TestStoreQuery(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			seed := map[string]string{
				"t1": `{"userId":"u1","private":false}`,
				"t2": `{"userId":"u1","private":true}`,
				"t3": `{"userId":"u2","private":false}`,
			}
			for id, data := range seed {
				if err := s.Set(ctx, "tasks", id, json.RawMessage(data)); err != nil {
					t.Fatalf("Set(%s) failed: %v", id, err)
				}
			}
			if err := s.Set(ctx, "families/f1/members", "u1", json.RawMessage(`{"role":"admin"}`)); err != nil {
				t.Fatalf("Set(member) failed: %v", err)
			}

			docs, err := s.Query(ctx, Query{
				Collection: "tasks",
				Filters:    []Filter{Where("userId", OpEqual, "u1"), Where("private", OpEqual, false)},
			})
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(docs) != 1 || docs[0].ID != "t1" {
				t.Errorf("Query() = %v, want [t1]", docs)
			}

			members, err := s.Query(ctx, Query{Collection: "families/f1/members"})
			if err != nil {
				t.Fatalf("Query(members) failed: %v", err)
			}
			if len(members) != 1 || members[0].ID != "u1" {
				t.Errorf("Query(members) = %v", members)
			}

			if _, err := s.Query(ctx, Query{}); !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("Query() without collection error = %v", err)
			}
		})
	}
}

func TestStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			if err := s.Set(ctx, "tasks", "t1", json.RawMessage(`{"userId":"u1"}`)); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}

			var c collector
			unsubscribe, err := s.Subscribe(ctx, Query{
				Collection: "tasks",
				Filters:    []Filter{Where("userId", OpEqual, "u1")},
			}, c.add)
			if err != nil {
				t.Fatalf("Subscribe() failed: %v", err)
			}

			// Initial full result set.
			waitFor(t, func() bool {
				docs, n := c.last()
				return n >= 1 && len(docs) == 1
			})

			// A matching write delivers the new full set.
			if err := s.Set(ctx, "tasks", "t2", json.RawMessage(`{"userId":"u1"}`)); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
			waitFor(t, func() bool {
				docs, _ := c.last()
				return len(docs) == 2
			})

			// Deletion shrinks the set.
			if err := s.Delete(ctx, "tasks", "t1"); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			waitFor(t, func() bool {
				docs, _ := c.last()
				return len(docs) == 1 && docs[0].ID == "t2"
			})

			unsubscribe()
			_, before := c.last()
			if err := s.Set(ctx, "tasks", "t3", json.RawMessage(`{"userId":"u1"}`)); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
			time.Sleep(50 * time.Millisecond)
			if _, after := c.last(); after != before {
				t.Errorf("delivery after unsubscribe: %d frames, want %d", after, before)
			}
		})
	}
}

func TestClientMapsServerErrors(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	srv := NewServer(NewMemory(nil), &Config{Logger: quiet})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c, err := NewClient(&ClientConfig{BaseURL: ts.URL, Retry: retry.Policy{MaxAttempts: 1}, Logger: quiet})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	ctx := context.Background()
	if _, err := c.Get(ctx, "tasks", "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get() error = %v, want not found", err)
	}
	if err := c.Set(ctx, "tasks", "t1", json.RawMessage(`{bad`)); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("Set() error = %v, want invalid argument", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestClientUnreachableIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	quiet := log.New(io.Discard, "", 0)
	c, err := NewClient(&ClientConfig{BaseURL: url, Retry: retry.Policy{MaxAttempts: 1}, Logger: quiet})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	ctx := context.Background()
	if err := c.Set(ctx, "tasks", "t1", json.RawMessage(`{}`)); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Set() error = %v, want unavailable", err)
	}
	if _, err := c.Subscribe(ctx, Query{Collection: "tasks"}, func([]Document) {}); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Subscribe() error = %v, want unavailable", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory(nil)
	_ = m.Close()
	if err := m.Set(context.Background(), "tasks", "t1", json.RawMessage(`{}`)); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Set() on closed store error = %v, want unavailable", err)
	}
}
