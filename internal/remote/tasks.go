package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/famtasks/internal/docstore"
	"github.com/mschirtzinger/famtasks/internal/model"
	"golang.org/x/sync/errgroup"
)

func setTaskID(t *model.Task, id string) {
	if t.ID == "" {
		t.ID = id
	}
}

// SaveTask creates or replaces a task.
//
// It rejects a task without userId or title, and a private task carrying a
// family id, before any network call.
func (g *Gateway) SaveTask(ctx context.Context, task model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return g.put(ctx, TasksPath, task.ID, task)
}

// GetTask returns the task id, including soft-deleted and old tasks.
func (g *Gateway) GetTask(ctx context.Context, id string) (model.Task, error) {
	doc, err := g.store.Get(ctx, TasksPath, id)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	var t model.Task
	if err := doc.Decode(&t); err != nil {
		return model.Task{}, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	setTaskID(&t, doc.ID)
	return t, nil
}

// DeleteTask deletes a task on behalf of actor.
//
// A private task (or one without a family) may only be deleted by its
// creator or assignee. A family task requires the family admin or a
// member holding the delete permission. Deleting a missing task is a no-op.
func (g *Gateway) DeleteTask(ctx context.Context, taskID string, actor Actor) error {
	task, err := g.GetTask(ctx, taskID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := g.authorizeDelete(ctx, task, actor); err != nil {
		return err
	}
	if err := g.store.Delete(ctx, TasksPath, taskID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

func (g *Gateway) authorizeDelete(ctx context.Context, task model.Task, actor Actor) error {
	if actor.UserID == "" {
		return fmt.Errorf("%w: delete task %s: no acting user", model.ErrPermissionDenied, task.ID)
	}
	if task.Private || task.FamilyID == "" {
		if task.OwnedBy(actor.UserID) {
			return nil
		}
		return fmt.Errorf("%w: task %s belongs to another user", model.ErrPermissionDenied, task.ID)
	}

	family, err := g.GetFamily(ctx, task.FamilyID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	if err == nil && family.AdminID == actor.UserID {
		return nil
	}

	member, err := g.getMember(ctx, task.FamilyID, actor.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: %s is not a member of family %s", model.ErrPermissionDenied, actor.UserID, task.FamilyID)
	}
	if err != nil {
		return err
	}
	if !member.CanDelete() {
		return fmt.Errorf("%w: %s may not delete family tasks", model.ErrPermissionDenied, actor.UserID)
	}
	return nil
}

// GetTasksByUser returns the tasks userID created or is assigned.
func (g *Gateway) GetTasksByUser(ctx context.Context, userID string) ([]model.Task, error) {
	return g.queryTasks(ctx, userID, userScopes(userID), nil)
}

// GetTasksByFamily returns the public tasks of familyID.
func (g *Gateway) GetTasksByFamily(ctx context.Context, familyID string) ([]model.Task, error) {
	return g.queryTasks(ctx, "", []docstore.Query{familyScope(familyID)}, nil)
}

// GetTasksUpdatedSince returns the tasks visible to userID (own tasks and
// the public tasks of familyID) whose updatedAt is strictly after since.
func (g *Gateway) GetTasksUpdatedSince(ctx context.Context, userID, familyID string, since time.Time) ([]model.Task, error) {
	scopes := userScopes(userID)
	if familyID != "" {
		scopes = append(scopes, familyScope(familyID))
	}
	newer := docstore.Where("updatedAt", docstore.OpGreater, since)
	return g.queryTasks(ctx, userID, scopes, &newer)
}

func userScopes(userID string) []docstore.Query {
	return []docstore.Query{
		{Collection: TasksPath, Filters: []docstore.Filter{
			docstore.Where("createdBy", docstore.OpEqual, userID),
		}},
		{Collection: TasksPath, Filters: []docstore.Filter{
			docstore.Where("userId", docstore.OpEqual, userID),
		}},
	}
}

func familyScope(familyID string) docstore.Query {
	return docstore.Query{Collection: TasksPath, Filters: []docstore.Filter{
		docstore.Where("familyId", docstore.OpEqual, familyID),
		docstore.Where("private", docstore.OpEqual, false),
	}}
}

// queryTasks runs every scope query in parallel and merges the results.
func (g *Gateway) queryTasks(ctx context.Context, viewer string, scopes []docstore.Query, extra *docstore.Filter) ([]model.Task, error) {
	results := make([][]model.Task, len(scopes))
	eg, ctx := errgroup.WithContext(ctx)
	for i, q := range scopes {
		if extra != nil {
			q.Filters = append(append([]docstore.Filter(nil), q.Filters...), *extra)
		}
		eg.Go(func() error {
			docs, err := g.store.Query(ctx, q)
			if err != nil {
				return fmt.Errorf("failed to query tasks: %w", err)
			}
			results[i] = decodeAll(g, docs, setTaskID)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g.mergeTasks(viewer, results...), nil
}

// mergeTasks de-duplicates task sets by id and applies the read filters:
// soft-deleted tasks, tasks completed before the retention cutoff, and
// private tasks not owned by viewer are dropped. An empty viewer drops
// every private task. The result is ordered by id.
func (g *Gateway) mergeTasks(viewer string, sets ...[]model.Task) []model.Task {
	cutoff := g.retentionCutoff()
	seen := make(map[string]bool)
	var out []model.Task
	for _, set := range sets {
		for _, t := range set {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			if t.IsSoftDeleted() {
				continue
			}
			if !cutoff.IsZero() && t.CompletedBefore(cutoff) {
				continue
			}
			if t.Private && !t.OwnedBy(viewer) {
				continue
			}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SubscribeToUserAndFamilyTasks streams the merged task set visible to
// userID: tasks the user created, public tasks assigned to the user, and
// public tasks of familyID. fn receives the full merged set once every
// underlying query has reported, then after each change. Calls to fn are
// sequential and never include another user's private task.
func (g *Gateway) SubscribeToUserAndFamilyTasks(ctx context.Context, userID, familyID string, fn func([]model.Task)) (func(), error) {
	queries := []docstore.Query{
		{Collection: TasksPath, Filters: []docstore.Filter{
			docstore.Where("createdBy", docstore.OpEqual, userID),
		}},
		{Collection: TasksPath, Filters: []docstore.Filter{
			docstore.Where("userId", docstore.OpEqual, userID),
			docstore.Where("private", docstore.OpEqual, false),
		}},
	}
	if familyID != "" {
		queries = append(queries, familyScope(familyID))
	}

	m := &taskMerger{
		gateway: g,
		viewer:  userID,
		sets:    make([][]model.Task, len(queries)),
		ready:   make([]bool, len(queries)),
		fn:      fn,
	}

	var unsubs []func()
	unsubscribeAll := func() {
		for _, u := range unsubs {
			u()
		}
	}
	for i, q := range queries {
		unsub, err := g.store.Subscribe(ctx, q, func(docs []docstore.Document) {
			m.update(i, decodeAll(g, docs, setTaskID))
		})
		if err != nil {
			unsubscribeAll()
			return nil, fmt.Errorf("failed to subscribe to tasks: %w", err)
		}
		unsubs = append(unsubs, unsub)
	}
	return unsubscribeAll, nil
}

// taskMerger combines the result sets of several task subscriptions.
type taskMerger struct {
	gateway *Gateway
	viewer  string

	mu    sync.Mutex
	sets  [][]model.Task
	ready []bool
	fn    func([]model.Task)
}

func (m *taskMerger) update(i int, tasks []model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets[i] = tasks
	m.ready[i] = true
	for _, r := range m.ready {
		if !r {
			return
		}
	}
	m.fn(m.gateway.mergeTasks(m.viewer, m.sets...))
}
