package store

import (
	"encoding/json"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// ClearOldCompletedTasks removes completed tasks whose completion timestamp
// is older than daysToKeep days. Tasks without a completion timestamp,
// incomplete tasks and tasks with queued operations are always kept. It
// returns the number of removed tasks.
func (s *Store) ClearOldCompletedTasks(daysToKeep int) int {
	cutoff := s.config.Clock.Now().AddDate(0, 0, -daysToKeep)

	removed := 0
	s.Update(func(d *model.OfflineData) {
		queued := queuedTaskIDs(d.PendingOperations)
		for id, t := range d.Tasks {
			if t.CompletedBefore(cutoff) && !queued[id] {
				delete(d.Tasks, id)
				removed++
			}
		}
	})
	if removed > 0 {
		s.config.Logger.Printf("Pruned %d completed tasks older than %d days", removed, daysToKeep)
	}
	return removed
}

// ClearOldHistory removes history items whose timestamp is older than
// daysToKeep days. Items without a timestamp are kept. It returns the number
// of removed items.
func (s *Store) ClearOldHistory(daysToKeep int) int {
	cutoff := s.config.Clock.Now().AddDate(0, 0, -daysToKeep)

	removed := 0
	s.Update(func(d *model.OfflineData) {
		for id, h := range d.History {
			if !h.Timestamp.IsZero() && h.Timestamp.Before(cutoff) {
				delete(d.History, id)
				removed++
			}
		}
	})
	if removed > 0 {
		s.config.Logger.Printf("Pruned %d history items older than %d days", removed, daysToKeep)
	}
	return removed
}

// queuedTaskIDs returns the ids of tasks referenced by ops. Every task
// payload, including a delete, carries the task id under "id".
func queuedTaskIDs(ops []model.PendingOperation) map[string]bool {
	ids := make(map[string]bool)
	for _, op := range ops {
		if op.Collection != model.CollectionTasks {
			continue
		}
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(op.Data, &ref); err == nil && ref.ID != "" {
			ids[ref.ID] = true
		}
	}
	return ids
}
