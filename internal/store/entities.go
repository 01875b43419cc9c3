package store

import (
	"sort"
	"time"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// SaveTask upserts a task into the cache.
func (s *Store) SaveTask(task model.Task) {
	task = task.Clone()
	s.Update(func(d *model.OfflineData) {
		d.Tasks[task.ID] = task
	})
}

// SaveTasks upserts several tasks with one scheduled write.
func (s *Store) SaveTasks(tasks []model.Task) {
	if len(tasks) == 0 {
		return
	}
	s.Update(func(d *model.OfflineData) {
		for _, t := range tasks {
			d.Tasks[t.ID] = t.Clone()
		}
	})
}

// GetTask returns a copy of the cached task with id.
func (s *Store) GetTask(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.Tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return t.Clone(), true
}

// GetTasksForScope returns the tasks visible to userID: the tasks the user
// created or is assigned, plus the public tasks of familyID. Soft-deleted
// tasks are excluded. Results are ordered by creation time, then id.
func (s *Store) GetTasksForScope(userID, familyID string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Task
	for _, t := range s.data.Tasks {
		if t.IsSoftDeleted() {
			continue
		}
		visible := t.OwnedBy(userID) || (familyID != "" && t.FamilyID == familyID && !t.Private)
		if !visible {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SaveFamily upserts a family into the cache.
func (s *Store) SaveFamily(family model.Family) {
	family = family.Clone()
	s.Update(func(d *model.OfflineData) {
		d.Families[family.ID] = family
	})
}

// GetFamily returns a copy of the cached family with id.
func (s *Store) GetFamily(id string) (model.Family, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.data.Families[id]
	if !ok {
		return model.Family{}, false
	}
	return f.Clone(), true
}

// SaveUser upserts a user into the cache.
func (s *Store) SaveUser(user model.User) {
	s.Update(func(d *model.OfflineData) {
		d.Users[user.ID] = user
	})
}

// GetUser returns the cached user with id.
func (s *Store) GetUser(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[id]
	return u, ok
}

// SaveApproval upserts an approval into the cache.
func (s *Store) SaveApproval(approval model.Approval) {
	s.Update(func(d *model.OfflineData) {
		d.Approvals[approval.ID] = approval
	})
}

// ApprovalsForFamily returns the cached approvals of familyID, newest first.
func (s *Store) ApprovalsForFamily(familyID string) []model.Approval {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Approval
	for _, a := range s.data.Approvals {
		if a.FamilyID == familyID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out
}

// SaveHistoryItem upserts a history item into the cache.
func (s *Store) SaveHistoryItem(item model.HistoryItem) {
	s.Update(func(d *model.OfflineData) {
		d.History[item.ID] = item
	})
}

// RemoveFromCache deletes the entity id of collection from the cache.
// It reports whether an entry was removed.
func (s *Store) RemoveFromCache(collection model.Collection, id string) bool {
	removed := false
	s.Update(func(d *model.OfflineData) {
		switch collection {
		case model.CollectionTasks:
			_, removed = d.Tasks[id]
			delete(d.Tasks, id)
		case model.CollectionFamilies:
			_, removed = d.Families[id]
			delete(d.Families, id)
		case model.CollectionUsers:
			_, removed = d.Users[id]
			delete(d.Users, id)
		case model.CollectionApprovals:
			_, removed = d.Approvals[id]
			delete(d.Approvals, id)
		case model.CollectionHistory:
			_, removed = d.History[id]
			delete(d.History, id)
		}
	})
	return removed
}

// MarkNotificationRead records that the notification id has been seen.
func (s *Store) MarkNotificationRead(id string) {
	s.Update(func(d *model.OfflineData) {
		d.NotificationReads[id] = true
	})
}

// IsNotificationRead reports whether the notification id has been seen.
func (s *Store) IsNotificationRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.NotificationReads[id]
}

// LastSync returns the time of the last successful sync cycle.
// The zero time means the cache has never been synced.
func (s *Store) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.LastSync == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.data.LastSync)
}

// Stats summarizes the cache contents.
type Stats struct {
	Users             int       `json:"users"`
	Families          int       `json:"families"`
	Tasks             int       `json:"tasks"`
	Approvals         int       `json:"approvals"`
	History           int       `json:"history"`
	PendingOperations int       `json:"pendingOperations"`
	FailedOperations  int       `json:"failedOperations"`
	LastSync          time.Time `json:"lastSync"`
	LastFullSync      time.Time `json:"lastFullSync"`
}

// Stats returns counts per collection and the sync timestamps.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Users:             len(s.data.Users),
		Families:          len(s.data.Families),
		Tasks:             len(s.data.Tasks),
		Approvals:         len(s.data.Approvals),
		History:           len(s.data.History),
		PendingOperations: len(s.data.PendingOperations),
		FailedOperations:  len(s.data.FailedOperations),
	}
	if s.data.LastSync != 0 {
		st.LastSync = time.UnixMilli(s.data.LastSync)
	}
	if s.data.LastFullSync != 0 {
		st.LastFullSync = time.UnixMilli(s.data.LastFullSync)
	}
	return st
}
