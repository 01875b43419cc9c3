package engine

import (
	"context"

	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/queue"
)

type entityKey struct {
	collection model.Collection
	id         string
}

func keyOf(op queue.Operation) entityKey {
	return entityKey{collection: op.Collection(), id: op.EntityID()}
}

// drain replays the pending queue against the gateway.
//
// Creates and updates run first grouped by (collection, type), then
// deletes and everything queued after a delete of the same entity, in
// queue order. An operation whose backoff has not elapsed, or whose
// entity already failed in this drain, blocks every later operation on
// the same entity. Fatal failures and exhausted retries move the
// operation to the failed list.
func (e *Engine) drain(ctx context.Context, rep *Report) {
	entries, invalid := queue.Decoded(e.queue.Pending())
	for id, err := range invalid {
		if e.queue.Drop(id, err) {
			rep.Dropped++
		}
	}
	if len(entries) == 0 {
		return
	}

	batchable, sequential := queue.Partition(entries)
	blocked := make(map[entityKey]bool)
	for _, g := range queue.GroupBatchable(batchable) {
		for _, entry := range g.Entries {
			e.replay(ctx, entry, blocked, rep)
		}
	}
	for _, entry := range sequential {
		e.replay(ctx, entry, blocked, rep)
	}

	if rep.Drained+rep.Failed+rep.Dropped > 0 {
		e.config.Logger.Printf("Drained %d operations (failed=%d, dropped=%d, deferred=%d)",
			rep.Drained, rep.Failed, rep.Dropped, rep.Deferred)
	}
}

func (e *Engine) replay(ctx context.Context, entry queue.Entry, blocked map[entityKey]bool, rep *Report) {
	key := keyOf(entry.Op)
	if blocked[key] {
		rep.Deferred++
		return
	}
	now := e.config.Clock.Now()
	if entry.Pending.NextAttemptAt > now.UnixMilli() {
		blocked[key] = true
		rep.Deferred++
		return
	}

	err := entry.Op.Accept(ctx, e.visitor)
	switch {
	case err == nil:
		e.queue.Remove(entry.Pending.ID)
		rep.Drained++

	case model.IsFatal(err):
		e.queue.Drop(entry.Pending.ID, err)
		rep.Dropped++

	default:
		blocked[key] = true
		attempts := entry.Pending.RetryCount + 1
		if e.config.Retry.Exhausted(attempts) {
			e.queue.MarkFailed(entry.Pending.ID, err, now)
			e.queue.Drop(entry.Pending.ID, err)
			rep.Dropped++
			return
		}
		next := now.Add(e.config.Retry.Delay(attempts))
		e.queue.MarkFailed(entry.Pending.ID, err, next)
		rep.Failed++
		e.config.Logger.Printf("Retrying %s %s %s in %v (attempt %d): %v",
			entry.Op.Kind(), entry.Op.Collection(), entry.Op.EntityID(), next.Sub(now), attempts, err)
	}
}
