package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/queue"
)

// submit writes op to the remote store when online, falling back to the
// queue. An operation on an entity that already has queued operations is
// always queued so it cannot overtake them. Fatal errors are returned
// without queueing.
func (e *Engine) submit(ctx context.Context, op queue.Operation) error {
	if e.IsOnline() && !e.hasQueued(keyOf(op)) {
		err := e.writeThrough(ctx, op)
		if err == nil {
			return nil
		}
		if model.IsFatal(err) {
			return err
		}
		e.config.Logger.Printf("Warning: remote %s %s %s failed, queueing: %v", op.Kind(), op.Collection(), op.EntityID(), err)
	}
	if _, err := e.queue.Enqueue(op); err != nil {
		return err
	}
	return nil
}

// writeThrough applies op remotely. While the call is in flight inbound
// remote snapshots leave the entity's cache entry alone.
func (e *Engine) writeThrough(ctx context.Context, op queue.Operation) error {
	key := keyOf(op)
	e.inflightMu.Lock()
	e.inflight[key]++
	e.inflightMu.Unlock()
	defer func() {
		e.inflightMu.Lock()
		if e.inflight[key]--; e.inflight[key] <= 0 {
			delete(e.inflight, key)
		}
		e.inflightMu.Unlock()
	}()
	return op.Accept(ctx, e.visitor)
}

func (e *Engine) hasQueued(key entityKey) bool {
	entries, _ := queue.Decoded(e.queue.Pending())
	for _, entry := range entries {
		if keyOf(entry.Op) == key {
			return true
		}
	}
	return false
}

// SaveTask creates or updates a task. It is cached first and then written
// remotely or queued. A private task is stripped of its family id; tasks
// failing validation are rejected before anything is written. When the
// remote store refuses the write the previous cache entry is restored.
func (e *Engine) SaveTask(ctx context.Context, task model.Task) (model.Task, error) {
	now := e.config.Clock.Now()
	var prev model.Task
	exists := false
	if task.ID == "" {
		task.ID = uuid.NewString()
	} else {
		prev, exists = e.store.GetTask(task.ID)
	}
	task.SetDefaults(now)
	if exists {
		task.UpdatedAt = now
	}
	task.NormalizePrivacy()
	if err := task.Validate(); err != nil {
		return model.Task{}, err
	}

	e.store.SaveTask(task)
	e.emitUpsert(task)

	op := queue.CreateTask(task)
	if exists {
		op = queue.UpdateTask(task)
	}
	if err := e.submit(ctx, op); err != nil {
		if model.IsFatal(err) {
			if exists {
				e.store.SaveTask(prev)
				e.emitUpsert(prev)
			} else if e.store.RemoveFromCache(model.CollectionTasks, task.ID) {
				e.emitRemove(task.ID)
			}
		}
		return task, fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return task, nil
}

// DeleteTask removes a task from the cache and deletes it remotely or
// queues the delete. When the remote store refuses the delete the cached
// task is restored.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: task id is required", model.ErrInvalidArgument)
	}
	prev, cached := e.store.GetTask(id)
	if e.store.RemoveFromCache(model.CollectionTasks, id) {
		e.emitRemove(id)
	}

	if err := e.submit(ctx, queue.DeleteTask(id)); err != nil {
		if cached && model.IsFatal(err) {
			e.store.SaveTask(prev)
			e.emitUpsert(prev)
		}
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// SaveApproval creates or answers an approval request.
func (e *Engine) SaveApproval(ctx context.Context, approval model.Approval) (model.Approval, error) {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.Status == "" {
		approval.Status = model.ApprovalPending
	}
	if approval.RequestedAt.IsZero() {
		approval.RequestedAt = e.config.Clock.Now()
	}
	if err := approval.Validate(); err != nil {
		return model.Approval{}, err
	}

	e.store.SaveApproval(approval)
	if err := e.submit(ctx, queue.SaveApproval(approval)); err != nil {
		return approval, fmt.Errorf("failed to save approval %s: %w", approval.ID, err)
	}
	return approval, nil
}

// DeleteApproval removes an approval request.
func (e *Engine) DeleteApproval(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: approval id is required", model.ErrInvalidArgument)
	}
	e.store.RemoveFromCache(model.CollectionApprovals, id)
	if err := e.submit(ctx, queue.DeleteApproval(id)); err != nil {
		return fmt.Errorf("failed to delete approval %s: %w", id, err)
	}
	return nil
}

// AddHistoryItem records a history entry.
func (e *Engine) AddHistoryItem(ctx context.Context, item model.HistoryItem) (model.HistoryItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = e.config.Clock.Now()
	}
	if item.UserID == "" {
		item.UserID = e.config.UserID
	}
	if item.FamilyID == "" {
		item.FamilyID = e.config.FamilyID
	}
	if err := item.Validate(); err != nil {
		return model.HistoryItem{}, err
	}

	e.store.SaveHistoryItem(item)
	if err := e.submit(ctx, queue.AddHistory(item)); err != nil {
		return item, fmt.Errorf("failed to add history %s: %w", item.ID, err)
	}
	return item, nil
}

// SaveFamily creates or updates a family document.
func (e *Engine) SaveFamily(ctx context.Context, family model.Family) error {
	if err := family.Validate(); err != nil {
		return err
	}
	op := queue.SaveFamily(family)
	e.store.SaveFamily(family)
	if err := e.submit(ctx, op); err != nil {
		return fmt.Errorf("failed to save family %s: %w", family.ID, err)
	}
	return nil
}

// SaveUser creates or updates a user document.
func (e *Engine) SaveUser(ctx context.Context, user model.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	op := queue.SaveUser(user)
	e.store.SaveUser(user)
	if err := e.submit(ctx, op); err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}
	return nil
}
