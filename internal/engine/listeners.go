package engine

import (
	"fmt"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// restartListeners replaces the remote task and approval subscriptions.
// It does nothing unless the engine is running.
func (e *Engine) restartListeners() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	ctx := e.ctx
	old := e.listeners
	e.listeners = nil
	e.mu.Unlock()

	for _, unsub := range old {
		unsub()
	}

	var subs []func()
	unsubTasks, err := e.gateway.SubscribeToUserAndFamilyTasks(ctx, e.config.UserID, e.config.FamilyID, e.onRemoteTasks)
	if err != nil {
		return fmt.Errorf("failed to listen to tasks: %w", err)
	}
	subs = append(subs, unsubTasks)

	if familyID := e.config.FamilyID; familyID != "" {
		unsubApprovals, err := e.gateway.SubscribeToFamilyApprovals(ctx, familyID, e.onRemoteApprovals)
		if err != nil {
			unsubTasks()
			return fmt.Errorf("failed to listen to approvals: %w", err)
		}
		subs = append(subs, unsubApprovals)
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		for _, unsub := range subs {
			unsub()
		}
		return nil
	}
	e.listeners = subs
	e.mu.Unlock()
	return nil
}

func (e *Engine) stopListeners() {
	e.mu.Lock()
	old := e.listeners
	e.listeners = nil
	e.mu.Unlock()

	for _, unsub := range old {
		unsub()
	}
}

// onRemoteTasks receives the full merged task set after every remote
// change. Events may interleave with a running cycle; applyRemoteTask is
// idempotent.
func (e *Engine) onRemoteTasks(tasks []model.Task) {
	if n := e.applyRemoteTasks(tasks); n > 0 {
		e.config.Logger.Printf("Applied %d remote task changes", n)
	}
}

func (e *Engine) onRemoteApprovals(approvals []model.Approval) {
	familyID := e.config.FamilyID
	e.store.Update(func(d *model.OfflineData) {
		for id, a := range d.Approvals {
			if a.FamilyID == familyID {
				delete(d.Approvals, id)
			}
		}
		for _, a := range approvals {
			d.Approvals[a.ID] = a
		}
	})
}
