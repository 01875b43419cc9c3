// Package remote is the typed gateway between the sync core and the remote
// document store.
//
// The gateway owns the write preconditions and delete authorization rules,
// applies the read-side retention window, and merges multi-query task
// subscriptions into one privacy-filtered stream.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mschirtzinger/famtasks/internal/docstore"
	"github.com/mschirtzinger/famtasks/internal/model"
)

// Collection paths of the remote store.
const (
	TasksPath       = "tasks"
	FamiliesPath    = "families"
	UsersPath       = "users"
	ApprovalsPath   = "approvals"
	HistoryPath     = "history"
	InviteCodesPath = "inviteCodes"
)

// MembersPath returns the members sub-collection of familyID.
func MembersPath(familyID string) string {
	return fmt.Sprintf("%s/%s/members", FamiliesPath, familyID)
}

// Actor identifies the user on whose behalf a mutation runs.
type Actor struct {
	UserID   string
	FamilyID string
}

// Config holds gateway configuration.
type Config struct {
	// RetentionDays hides tasks completed longer ago than this from every
	// read path. Zero disables the filter.
	RetentionDays int

	// Clock is used for the retention cutoff and invite code expiry.
	Clock clock.Clock

	// Logger for gateway activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 7,
		Clock:         clock.New(),
		Logger:        log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Gateway provides typed access to the remote collections.
type Gateway struct {
	store  docstore.Store
	config *Config
}

// New creates a gateway over store.
func New(store docstore.Store, config *Config) *Gateway {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Gateway{store: store, config: config}
}

// Store returns the underlying document store.
func (g *Gateway) Store() docstore.Store {
	return g.store
}

// encode is the single serialization boundary for remote writes. Optional
// fields are omitted by their json tags, so no value is ever sent as an
// explicit undefined.
func encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode payload: %v", model.ErrInvalidArgument, err)
	}
	return data, nil
}

// put encodes and writes v. Callers validate first.
func (g *Gateway) put(ctx context.Context, collection, id string, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, collection, id, data); err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", collection, id, err)
	}
	return nil
}

// decodeAll decodes docs into T, filling empty ids from the document id.
// Undecodable documents are logged and skipped.
func decodeAll[T any](g *Gateway, docs []docstore.Document, setID func(*T, string)) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			g.config.Logger.Printf("Warning: skipping malformed document %s: %v", d.ID, err)
			continue
		}
		setID(&v, d.ID)
		out = append(out, v)
	}
	return out
}

func (g *Gateway) retentionCutoff() time.Time {
	if g.config.RetentionDays <= 0 {
		return time.Time{}
	}
	return g.config.Clock.Now().AddDate(0, 0, -g.config.RetentionDays)
}
