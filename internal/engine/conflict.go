package engine

import (
	"fmt"
	"reflect"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// ConflictPolicy decides between a cached task and an inbound remote
// version with different content.
type ConflictPolicy string

const (
	// LocalWins discards the remote change.
	LocalWins ConflictPolicy = "local_wins"
	// RemoteWins accepts the remote change unless it is older.
	RemoteWins ConflictPolicy = "remote_wins"
	// Merge keeps every set local field and fills the rest from remote.
	Merge ConflictPolicy = "merge"
)

// ParseConflictPolicy validates a policy name.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case LocalWins, RemoteWins, Merge:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown conflict policy %q", model.ErrInvalidArgument, s)
	}
}

// Resolve returns the task to cache and whether it replaces local.
func (p ConflictPolicy) Resolve(local, remote model.Task) (model.Task, bool) {
	switch p {
	case RemoteWins:
		if remote.UpdatedAt.Before(local.UpdatedAt) {
			return local, false
		}
		return remote, true
	case Merge:
		return mergeTask(local, remote), true
	default:
		return local, false
	}
}

// mergeTask overlays every non-zero local field on remote. Booleans are
// never null, so the local value always wins for them.
func mergeTask(local, remote model.Task) model.Task {
	out := local.Clone()
	src := remote.Clone()
	ov := reflect.ValueOf(&out).Elem()
	rv := reflect.ValueOf(src)
	for i := 0; i < ov.NumField(); i++ {
		f := ov.Field(i)
		if f.Kind() == reflect.Bool || !f.IsZero() {
			continue
		}
		f.Set(rv.Field(i))
	}
	return out
}
