// Package queue implements the pending operation queue.
//
// Operations are persisted in the local cache (OfflineData.PendingOperations)
// until the remote store confirms them. The queue only records intents and
// their retry bookkeeping; draining is orchestrated by the sync engine.
package queue

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/store"
)

// Config holds configuration for the queue.
type Config struct {
	// FailedLimit caps the dead-letter list; the oldest entries are
	// discarded first.
	FailedLimit int

	// Clock stamps enqueue times.
	Clock clock.Clock

	// OnChange is called with the pending and failed counts after every
	// enqueue, removal or drop.
	OnChange func(pending, failed int)

	// Logger for queue activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FailedLimit: 50,
		Clock:       clock.New(),
		Logger:      log.New(os.Stderr, "[queue] ", log.LstdFlags),
	}
}

// Queue records pending operations in the store.
type Queue struct {
	store  *store.Store
	config *Config
}

// New creates a queue over s.
func New(s *store.Store, config *Config) *Queue {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.FailedLimit <= 0 {
		config.FailedLimit = defaults.FailedLimit
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Queue{store: s, config: config}
}

// SetOnChange replaces the change callback.
func (q *Queue) SetOnChange(fn func(pending, failed int)) {
	q.config.OnChange = fn
}

// Enqueue appends op with a zero retry count.
//
// A private task is stripped of its family id before it is recorded.
// Payloads that fail validation are rejected and nothing is written.
func (q *Queue) Enqueue(op Operation) (model.PendingOperation, error) {
	if ts, ok := op.(*TaskSave); ok {
		ts.Task.NormalizePrivacy()
	}
	if err := validate(op); err != nil {
		return model.PendingOperation{}, fmt.Errorf("failed to enqueue %s %s: %w", op.Kind(), op.Collection(), err)
	}

	data, err := Encode(op)
	if err != nil {
		return model.PendingOperation{}, err
	}

	p := model.PendingOperation{
		ID:         uuid.NewString(),
		Type:       op.Kind(),
		Collection: op.Collection(),
		Data:       data,
		Timestamp:  q.config.Clock.Now().UnixMilli(),
	}

	var pending, failed int
	q.store.Update(func(d *model.OfflineData) {
		d.PendingOperations = append(d.PendingOperations, p)
		pending, failed = len(d.PendingOperations), len(d.FailedOperations)
	})
	q.config.Logger.Printf("Queued %s %s %s (pending=%d)", p.Type, p.Collection, op.EntityID(), pending)
	q.notify(pending, failed)
	return p, nil
}

// Pending returns a copy of the queued operations in enqueue order.
func (q *Queue) Pending() []model.PendingOperation {
	var out []model.PendingOperation
	q.store.View(func(d *model.OfflineData) {
		out = append(out, d.PendingOperations...)
	})
	return out
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	n := 0
	q.store.View(func(d *model.OfflineData) {
		n = len(d.PendingOperations)
	})
	return n
}

// Failed returns a copy of the dead-letter list, newest last.
func (q *Queue) Failed() []model.PendingOperation {
	var out []model.PendingOperation
	q.store.View(func(d *model.OfflineData) {
		out = append(out, d.FailedOperations...)
	})
	return out
}

// Remove deletes the operation id after the remote store confirmed it.
func (q *Queue) Remove(id string) bool {
	removed := false
	var pending, failed int
	q.store.Update(func(d *model.OfflineData) {
		d.PendingOperations, removed = without(d.PendingOperations, id)
		pending, failed = len(d.PendingOperations), len(d.FailedOperations)
	})
	if removed {
		q.notify(pending, failed)
	}
	return removed
}

// MarkFailed records a failed attempt of operation id: it increments the
// retry count, stores the error and defers the next attempt until next.
// It returns the updated operation.
func (q *Queue) MarkFailed(id string, cause error, next time.Time) (model.PendingOperation, bool) {
	var updated model.PendingOperation
	found := false
	q.store.Update(func(d *model.OfflineData) {
		for i := range d.PendingOperations {
			if d.PendingOperations[i].ID != id {
				continue
			}
			op := &d.PendingOperations[i]
			op.RetryCount++
			if cause != nil {
				op.LastError = cause.Error()
			}
			op.NextAttemptAt = next.UnixMilli()
			updated, found = *op, true
			return
		}
	})
	return updated, found
}

// Drop moves operation id to the dead-letter list.
func (q *Queue) Drop(id string, cause error) bool {
	dropped := false
	var pending, failed int
	var op model.PendingOperation
	q.store.Update(func(d *model.OfflineData) {
		for i := range d.PendingOperations {
			if d.PendingOperations[i].ID == id {
				op = d.PendingOperations[i]
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
		d.PendingOperations, _ = without(d.PendingOperations, id)
		if cause != nil {
			op.LastError = cause.Error()
		}
		op.NextAttemptAt = 0
		d.FailedOperations = append(d.FailedOperations, op)
		if over := len(d.FailedOperations) - q.config.FailedLimit; over > 0 {
			d.FailedOperations = append([]model.PendingOperation(nil), d.FailedOperations[over:]...)
		}
		pending, failed = len(d.PendingOperations), len(d.FailedOperations)
	})
	if dropped {
		q.config.Logger.Printf("Warning: dropped %s %s after %d attempts: %s", op.Type, op.Collection, op.RetryCount, op.LastError)
		q.notify(pending, failed)
	}
	return dropped
}

// RequeueFailed moves every dead-lettered operation back to the end of the
// queue with a fresh retry budget. It returns the number requeued.
func (q *Queue) RequeueFailed() int {
	n := 0
	var pending, failed int
	q.store.Update(func(d *model.OfflineData) {
		for _, op := range d.FailedOperations {
			op.RetryCount = 0
			op.NextAttemptAt = 0
			op.LastError = ""
			d.PendingOperations = append(d.PendingOperations, op)
			n++
		}
		d.FailedOperations = nil
		pending, failed = len(d.PendingOperations), 0
	})
	if n > 0 {
		q.notify(pending, failed)
	}
	return n
}

// ClearFailed empties the dead-letter list and returns how many entries it held.
func (q *Queue) ClearFailed() int {
	n := 0
	var pending int
	q.store.Update(func(d *model.OfflineData) {
		n = len(d.FailedOperations)
		d.FailedOperations = nil
		pending = len(d.PendingOperations)
	})
	if n > 0 {
		q.notify(pending, 0)
	}
	return n
}

// Counts returns the pending and failed operation counts.
func (q *Queue) Counts() (pending, failed int) {
	q.store.View(func(d *model.OfflineData) {
		pending, failed = len(d.PendingOperations), len(d.FailedOperations)
	})
	return pending, failed
}

func (q *Queue) notify(pending, failed int) {
	if q.config.OnChange != nil {
		q.config.OnChange(pending, failed)
	}
}

func without(ops []model.PendingOperation, id string) ([]model.PendingOperation, bool) {
	for i := range ops {
		if ops[i].ID == id {
			out := make([]model.PendingOperation, 0, len(ops)-1)
			out = append(out, ops[:i]...)
			return append(out, ops[i+1:]...), true
		}
	}
	return ops, false
}
