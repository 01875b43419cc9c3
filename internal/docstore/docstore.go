// Package docstore is the remote document database the sync core talks to.
//
// Documents are opaque JSON objects addressed by (collection, id). A
// collection name may be a path such as "families/f1/members". Queries
// combine equality and range filters over top-level fields; subscriptions
// deliver the full current result set of a query, first immediately and
// again after every change to the collection. They never deliver diffs.
//
// Implementations:
//   - Memory: in-process, used as the remote fake in tests
//   - SQLite: durable, backs the document server
//   - Client: HTTP and WebSocket client of a Server
package docstore

import (
	"context"
	"encoding/json"
	"time"
)

// Document is a stored JSON object.
type Document struct {
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	UpdateTime time.Time       `json:"updateTime"`
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Op is a filter comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
)

// Filter compares a top-level document field against a value.
//
// A nil Value matches missing and null fields under OpEqual. Time values
// and RFC 3339 strings compare chronologically.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Where builds a filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents of one collection matching every filter.
type Query struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`

	// Limit caps the result size. Zero means unlimited.
	Limit int `json:"limit,omitempty"`
}

// Store is a document database.
//
// Errors wrap the model sentinels: model.ErrNotFound for missing documents
// and model.ErrUnavailable when the store cannot be reached.
type Store interface {
	// Get returns the document id of collection.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, data json.RawMessage) error

	// Delete removes a document. Deleting a missing document is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// Query returns the documents matching q, ordered by id.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Subscribe calls fn with the result set of q now and after every
	// change to q's collection, until ctx is done or the returned
	// function is called. Calls to fn are sequential. The returned
	// function must not be called from within fn.
	Subscribe(ctx context.Context, q Query, fn func([]Document)) (func(), error)

	// Close releases resources and ends all subscriptions.
	Close() error
}
