package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/status"
	"github.com/mschirtzinger/famtasks/internal/store"
)

func (e *Engine) runCycle(ctx context.Context, forced bool) (Report, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return e.LastCycle(), nil
	}
	defer e.syncing.Store(false)

	if !e.monitor.IsConnected() {
		return Report{}, fmt.Errorf("failed to sync: %w", model.ErrOffline)
	}

	rep := Report{
		Seq:     int(e.seq.Add(1)),
		Forced:  forced,
		Started: e.config.Clock.Now(),
	}
	e.status.Update(func(s *status.Status) { s.IsSyncing = true })

	err := e.cycle(ctx, &rep)

	rep.Finished = e.config.Clock.Now()
	if err != nil {
		rep.Error = err.Error()
	}
	e.mu.Lock()
	e.last = rep
	e.mu.Unlock()

	pending, failed := e.queue.Counts()
	e.status.Update(func(s *status.Status) {
		s.IsSyncing = false
		s.HasError = err != nil
		s.ErrorMessage = rep.Error
		if err == nil {
			s.LastSync = rep.Started
		}
		s.PendingOperations = pending
		s.FailedOperations = failed
	})
	if e.config.Events != nil {
		e.config.Events.OnCycleComplete(rep)
	}

	e.config.Logger.Printf("Sync cycle %d complete in %v: drained=%d failed=%d dropped=%d downloaded=%d removed=%d",
		rep.Seq, rep.Duration(), rep.Drained, rep.Failed, rep.Dropped, rep.Downloaded, rep.Removed)
	return rep, err
}

// cycle runs the steps in order. A failing download step is logged and
// the remaining steps still run, but the last-sync timestamp is only
// advanced when every step succeeded.
func (e *Engine) cycle(ctx context.Context, rep *Report) error {
	var errs []error

	// 1. Local writes reach the remote store before remote state is pulled.
	e.drain(ctx, rep)

	// 2. Tasks changed since the last successful sync.
	if since := e.store.LastSync(); !since.IsZero() {
		n, err := e.downloadDelta(ctx, since)
		rep.Downloaded += n
		if err != nil {
			e.config.Logger.Printf("Warning: delta download failed: %v", err)
			errs = append(errs, err)
		}
	}

	// 3. Full reconciliation when the cache is cold, forced or due.
	if e.fullSyncDue(rep.Forced, rep.Started.UnixMilli()) {
		rep.FullSync = true
		n, removed, err := e.reconcile(ctx, rep.Started.UnixMilli())
		rep.Downloaded += n
		rep.Removed += removed
		if err != nil {
			e.config.Logger.Printf("Warning: full reconciliation failed: %v", err)
			errs = append(errs, err)
		}
	}

	// 4. Listeners.
	if err := e.restartListeners(); err != nil {
		e.config.Logger.Printf("Warning: failed to establish listeners: %v", err)
		errs = append(errs, err)
	}

	// 5. Bookkeeping and compaction.
	if len(errs) == 0 {
		ts := rep.Started.UnixMilli()
		e.store.Set(store.Patch{LastSync: &ts})
	}
	if e.random() < e.config.CompactionProbability {
		rep.Pruned += e.store.ClearOldCompletedTasks(e.config.RetentionDays)
		rep.Pruned += e.store.ClearOldHistory(e.config.HistoryRetentionDays)
	}
	return errors.Join(errs...)
}

func (e *Engine) fullSyncDue(forced bool, nowMs int64) bool {
	if forced {
		return true
	}
	var last int64
	e.store.View(func(d *model.OfflineData) { last = d.LastFullSync })
	return last == 0 || nowMs-last >= e.config.FullSyncInterval.Milliseconds()
}
