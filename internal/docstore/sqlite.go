package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/sqlitedb"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(collection, updated_at);
`

// SQLite is a Store persisted in an embedded SQLite database.
//
// Filters are evaluated in Go over the collection's rows; collections
// are expected to stay small (one family's data).
type SQLite struct {
	db     *sqlitedb.DB
	hub    *hub
	logger *log.Logger
}

// OpenSQLite opens (or creates) a document database at path.
func OpenSQLite(path string, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[docstore] ", log.LstdFlags)
	}
	db, err := sqlitedb.Open(path, documentsSchema)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db, hub: newHub(logger), logger: logger}, nil
}

// Get implements Store.Get.
func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	var data, updated string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, model.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return toDocument(id, data, updated), nil
}

// Set implements Store.Set.
func (s *SQLite) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", model.ErrInvalidArgument)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: %s/%s: data is not valid JSON", model.ErrInvalidArgument, collection, id)
	}

	query := `
	INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Conn().ExecContext(ctx, query, collection, id, string(data), now); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	s.hub.changed(collection)
	return nil
}

// Delete implements Store.Delete.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.hub.changed(collection)
	}
	return nil
}

// Query implements Store.Query.
func (s *SQLite) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, data, updated_at FROM documents WHERE collection = ?`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, data, updated string
		if err := rows.Scan(&id, &data, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", q.Collection, err)
		}
		docs = append(docs, toDocument(id, data, updated))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", q.Collection, err)
	}
	return q.apply(docs), nil
}

// Subscribe implements Store.Subscribe.
func (s *SQLite) Subscribe(ctx context.Context, q Query, fn func([]Document)) (func(), error) {
	initial, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context) ([]Document, error) { return s.Query(ctx, q) }
	return s.hub.subscribe(ctx, q, initial, fetch, fn), nil
}

// Close implements Store.Close.
func (s *SQLite) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}

func toDocument(id, data, updated string) Document {
	t, _ := time.Parse(time.RFC3339Nano, updated)
	return Document{ID: id, Data: json.RawMessage(data), UpdateTime: t}
}
