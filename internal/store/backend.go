package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/famtasks/internal/sqlitedb"
)

// Backend persists opaque documents under string keys.
//
// The store only ever uses a single key; the interface is keyed so that
// several caches (one per signed-in user) can share a database file.
type Backend interface {
	// Load returns the document stored under key.
	// It returns (nil, nil) when the key does not exist.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Close releases resources held by the backend.
	Close() error
}

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteBackend stores documents in a kv table of an embedded SQLite file.
type SQLiteBackend struct {
	db *sqlitedb.DB
}

// OpenSQLite opens (or creates) a SQLite backed cache at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sqlitedb.Open(path, kvSchema)
	if err != nil {
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

// Load implements Backend.Load.
func (b *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := b.db.Conn().QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return []byte(value), nil
}

// Save implements Backend.Save.
func (b *SQLiteBackend) Save(ctx context.Context, key string, data []byte) error {
	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err := b.db.Conn().ExecContext(ctx, query, key, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Close implements Backend.Close.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// MemoryBackend keeps documents in memory. It counts writes so tests can
// observe write coalescing.
type MemoryBackend struct {
	mu      sync.Mutex
	docs    map[string][]byte
	writes  int
	saveErr error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

// Load implements Backend.Load.
func (b *MemoryBackend) Load(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.docs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// Save implements Backend.Save.
func (b *MemoryBackend) Save(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.docs[key] = append([]byte(nil), data...)
	b.writes++
	return nil
}

// FailSaves makes every subsequent Save return err (nil restores writes).
func (b *MemoryBackend) FailSaves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saveErr = err
}

// Put seeds raw bytes under key without counting a write.
func (b *MemoryBackend) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[key] = data
}

// Writes returns the number of successful Save calls.
func (b *MemoryBackend) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Close implements Backend.Close.
func (b *MemoryBackend) Close() error {
	return nil
}
