package model

import (
	"encoding/json"
	"fmt"
)

// Collection names an entity collection of the remote store.
type Collection string

const (
	CollectionTasks     Collection = "tasks"
	CollectionFamilies  Collection = "families"
	CollectionUsers     Collection = "users"
	CollectionApprovals Collection = "approvals"
	CollectionHistory   Collection = "history"
)

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	switch c := Collection(s); c {
	case CollectionTasks, CollectionFamilies, CollectionUsers, CollectionApprovals, CollectionHistory:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown collection %q", ErrInvalidArgument, s)
	}
}

// OpType is the mutation kind of a pending operation.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// PendingOperation is the persisted envelope of a mutation intent that has
// not yet been confirmed by the remote store.
//
// Data holds the collection-specific payload; internal/queue decodes it
// into a typed operation.
type PendingOperation struct {
	ID         string          `json:"id"`
	Type       OpType          `json:"type"`
	Collection Collection      `json:"collection"`
	Data       json.RawMessage `json:"data"`
	Timestamp  int64           `json:"timestamp"` // epoch ms
	RetryCount int             `json:"retryCount"`
	LastError  string          `json:"lastError,omitempty"`

	// NextAttemptAt is the earliest time (epoch ms) the operation may be
	// retried. Zero means immediately.
	NextAttemptAt int64 `json:"nextAttemptAt,omitempty"`
}

// OfflineData is the root of the local cache. It is serialized as a single
// JSON document under one storage key.
type OfflineData struct {
	Users             map[string]User        `json:"users"`
	Families          map[string]Family      `json:"families"`
	Tasks             map[string]Task        `json:"tasks"`
	Approvals         map[string]Approval    `json:"approvals"`
	History           map[string]HistoryItem `json:"history"`
	PendingOperations []PendingOperation     `json:"pendingOperations"`
	LastSync          int64                  `json:"lastSync"` // epoch ms
	NotificationReads map[string]bool        `json:"notificationReads"`

	// FailedOperations holds operations dropped after exhausting their
	// retries or failing fatally, newest last.
	FailedOperations []PendingOperation `json:"failedOperations,omitempty"`

	// LastFullSync is the epoch ms of the last full reconciliation.
	LastFullSync int64 `json:"lastFullSync,omitempty"`
}

// NewOfflineData returns an empty cache root with all maps allocated.
func NewOfflineData() OfflineData {
	return OfflineData{
		Users:             map[string]User{},
		Families:          map[string]Family{},
		Tasks:             map[string]Task{},
		Approvals:         map[string]Approval{},
		History:           map[string]HistoryItem{},
		PendingOperations: []PendingOperation{},
		NotificationReads: map[string]bool{},
	}
}

// EnsureMaps allocates any nil map, as produced by decoding a partial document.
func (d *OfflineData) EnsureMaps() {
	if d.Users == nil {
		d.Users = map[string]User{}
	}
	if d.Families == nil {
		d.Families = map[string]Family{}
	}
	if d.Tasks == nil {
		d.Tasks = map[string]Task{}
	}
	if d.Approvals == nil {
		d.Approvals = map[string]Approval{}
	}
	if d.History == nil {
		d.History = map[string]HistoryItem{}
	}
	if d.PendingOperations == nil {
		d.PendingOperations = []PendingOperation{}
	}
	if d.NotificationReads == nil {
		d.NotificationReads = map[string]bool{}
	}
}

// Clone returns a deep copy of the cache root.
func (d OfflineData) Clone() OfflineData {
	c := NewOfflineData()
	for k, v := range d.Users {
		c.Users[k] = v
	}
	for k, v := range d.Families {
		c.Families[k] = v.Clone()
	}
	for k, v := range d.Tasks {
		c.Tasks[k] = v.Clone()
	}
	for k, v := range d.Approvals {
		c.Approvals[k] = v
	}
	for k, v := range d.History {
		c.History[k] = v
	}
	for k, v := range d.NotificationReads {
		c.NotificationReads[k] = v
	}
	c.PendingOperations = append(c.PendingOperations, d.PendingOperations...)
	if d.FailedOperations != nil {
		c.FailedOperations = append([]PendingOperation(nil), d.FailedOperations...)
	}
	c.LastSync = d.LastSync
	c.LastFullSync = d.LastFullSync
	return c
}
