package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/queue"
	"golang.org/x/sync/errgroup"
)

// fingerprint is the content of a task that counts as a real change.
type fingerprint struct {
	Title       string
	Description string
	Completed   bool
	Status      model.Status
	Category    string
	Priority    string
	UpdatedAt   string
	DueDate     string
	DueTime     string
	UserID      string
	EditedBy    string
}

func isoTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func taskHash(t model.Task) (uint64, error) {
	return hashstructure.Hash(fingerprint{
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Status:      t.Status,
		Category:    t.Category,
		Priority:    t.Priority,
		UpdatedAt:   isoTime(&t.UpdatedAt),
		DueDate:     isoTime(t.DueDate),
		DueTime:     isoTime(t.DueTime),
		UserID:      t.UserID,
		EditedBy:    t.EditedBy,
	}, hashstructure.FormatV2, nil)
}

// hasRealChanges reports whether remote differs from local in any
// semantically meaningful field. Dates are compared as UTC ISO strings.
func hasRealChanges(local, remote model.Task) bool {
	a, errA := taskHash(local)
	b, errB := taskHash(remote)
	if errA != nil || errB != nil {
		return true
	}
	return a != b
}

func sameJSON(a, b model.Task) bool {
	x, errX := json.Marshal(a)
	y, errY := json.Marshal(b)
	return errX == nil && errY == nil && bytes.Equal(x, y)
}

// applyRemoteTasks applies a batch of inbound remote tasks and returns how
// many changed the cache.
func (e *Engine) applyRemoteTasks(tasks []model.Task) int {
	pending := e.pendingTaskIDs()
	n := 0
	for _, t := range tasks {
		if e.applyRemoteTask(t, pending) {
			n++
		}
	}
	return n
}

// applyRemoteTask runs an inbound remote task through the conflict
// policy and writes the outcome to the cache. It reports whether the
// cache changed. Tasks in pending have local writes not yet confirmed by
// the remote store and are left alone.
func (e *Engine) applyRemoteTask(remote model.Task, pending map[string]bool) bool {
	if pending[remote.ID] {
		return false
	}
	local, exists := e.store.GetTask(remote.ID)

	next := remote
	if exists {
		if !hasRealChanges(local, remote) {
			return false
		}
		resolved, accept := e.config.ConflictPolicy.Resolve(local, remote)
		if !accept || sameJSON(local, resolved) {
			return false
		}
		next = resolved
	}

	e.store.SaveTask(next)
	e.emitUpsert(next)
	return true
}

// downloadDelta fetches tasks updated strictly after since and applies
// them. Completed tasks past the retention window are excluded by the
// gateway.
func (e *Engine) downloadDelta(ctx context.Context, since time.Time) (int, error) {
	tasks, err := e.gateway.GetTasksUpdatedSince(ctx, e.config.UserID, e.config.FamilyID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to download changes: %w", err)
	}
	n := e.applyRemoteTasks(tasks)
	if n > 0 {
		e.config.Logger.Printf("Downloaded %d changed tasks since %s", n, since.Format(time.RFC3339))
	}
	return n, nil
}

// pendingTaskIDs returns the ids of tasks with queued operations or a
// remote write in flight.
func (e *Engine) pendingTaskIDs() map[string]bool {
	entries, _ := queue.Decoded(e.queue.Pending())
	ids := make(map[string]bool)
	for _, entry := range entries {
		if entry.Op.Collection() == model.CollectionTasks {
			ids[entry.Op.EntityID()] = true
		}
	}
	e.inflightMu.Lock()
	for key := range e.inflight {
		if key.collection == model.CollectionTasks {
			ids[key.id] = true
		}
	}
	e.inflightMu.Unlock()
	return ids
}

// inScope reports whether t belongs to the subset a full reconciliation
// replaces: tasks of the user and public tasks of the user's family.
func (e *Engine) inScope(t model.Task) bool {
	if t.OwnedBy(e.config.UserID) {
		return true
	}
	return e.config.FamilyID != "" && t.FamilyID == e.config.FamilyID && !t.Private
}

// reconcile downloads the user's tasks and, with a family, the family's
// tasks, members and approvals, then replaces the in-scope part of the
// cache with them. Tasks with queued operations and the user's own
// private tasks are left untouched.
func (e *Engine) reconcile(ctx context.Context, nowMs int64) (upserted, removed int, err error) {
	user, familyID := e.config.UserID, e.config.FamilyID

	var (
		userTasks   []model.Task
		familyTasks []model.Task
		members     []model.Member
		family      model.Family
		hasFamily   bool
		approvals   []model.Approval
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		userTasks, err = e.gateway.GetTasksByUser(gctx, user)
		return err
	})
	if familyID != "" {
		eg.Go(func() error {
			var err error
			familyTasks, err = e.gateway.GetTasksByFamily(gctx, familyID)
			return err
		})
		eg.Go(func() error {
			var err error
			members, err = e.gateway.GetFamilyMembers(gctx, familyID)
			return err
		})
		eg.Go(func() error {
			f, err := e.gateway.GetFamily(gctx, familyID)
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			family, hasFamily = f, true
			return nil
		})
		eg.Go(func() error {
			var err error
			approvals, err = e.gateway.GetApprovalsByFamily(gctx, familyID)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, 0, fmt.Errorf("failed to reconcile: %w", err)
	}

	remoteTasks := make(map[string]model.Task, len(userTasks)+len(familyTasks))
	for _, set := range [][]model.Task{userTasks, familyTasks} {
		for _, t := range set {
			remoteTasks[t.ID] = t
		}
	}
	pending := e.pendingTaskIDs()

	var changed []model.Task
	var removedIDs []string
	e.store.Update(func(d *model.OfflineData) {
		for id, local := range d.Tasks {
			if !e.inScope(local) || pending[id] || local.IsOwnPrivate(user) {
				continue
			}
			if _, ok := remoteTasks[id]; !ok {
				delete(d.Tasks, id)
				removedIDs = append(removedIDs, id)
			}
		}
		for id, rt := range remoteTasks {
			if pending[id] {
				continue
			}
			local, ok := d.Tasks[id]
			if ok && (local.IsOwnPrivate(user) || sameJSON(local, rt)) {
				continue
			}
			d.Tasks[id] = rt
			changed = append(changed, rt)
		}

		if familyID != "" {
			if hasFamily {
				family.Members = members
				d.Families[familyID] = family
			} else if f, ok := d.Families[familyID]; ok {
				f.Members = members
				d.Families[familyID] = f
			}
			for id, a := range d.Approvals {
				if a.FamilyID == familyID {
					delete(d.Approvals, id)
				}
			}
			for _, a := range approvals {
				d.Approvals[a.ID] = a
			}
		}
		d.LastFullSync = nowMs
	})

	for _, t := range changed {
		e.emitUpsert(t)
	}
	for _, id := range removedIDs {
		e.emitRemove(id)
	}
	if len(changed)+len(removedIDs) > 0 {
		e.config.Logger.Printf("Reconciled %d tasks (updated=%d, removed=%d)", len(remoteTasks), len(changed), len(removedIDs))
	}
	return len(changed), len(removedIDs), nil
}
