// Package model defines the entities exchanged between the local cache and
// the remote document store.
package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending          Status = "pendente"
	StatusAwaitingApproval Status = "pendente_aprovacao"
	StatusCompleted        Status = "concluida"
	StatusDeleted          Status = "excluida"
)

// RepeatType describes how a task recurs.
type RepeatType string

const (
	RepeatNone     RepeatType = "none"
	RepeatDaily    RepeatType = "daily"
	RepeatWeekly   RepeatType = "weekly"
	RepeatMonthly  RepeatType = "monthly"
	RepeatInterval RepeatType = "interval"
	RepeatCustom   RepeatType = "custom"
)

// Repeat configures task recurrence.
type Repeat struct {
	Type           RepeatType `json:"type"`
	Days           []int      `json:"days,omitempty"` // 0=Sunday
	IntervalDays   int        `json:"intervalDays,omitempty"`
	DurationMonths int        `json:"durationMonths,omitempty"`
}

// Subtask is a checklist item embedded in a task.
type Subtask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Task is a unit of work owned by a user and optionally shared with a family.
//
// An empty FamilyID is the null family scope. A private task never carries a
// family id; see NormalizePrivacy and Validate.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	Status      Status `json:"status"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`

	DueDate *time.Time `json:"dueDate,omitempty"`
	DueTime *time.Time `json:"dueTime,omitempty"`
	Repeat  Repeat     `json:"repeat"`

	UserID        string `json:"userId"`
	FamilyID      string `json:"familyId,omitempty"`
	CreatedBy     string `json:"createdBy"`
	CreatedByName string `json:"createdByName"`

	EditedBy     string     `json:"editedBy,omitempty"`
	EditedByName string     `json:"editedByName,omitempty"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`

	Private  bool      `json:"private"`
	Subtasks []Subtask `json:"subtasks"`

	// Deleted is the soft-delete marker. Soft-deleted tasks are filtered
	// out of every read path.
	Deleted bool `json:"deleted,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the write preconditions of a task.
//
// Every remote task write requires a non-empty userId and title, and a
// private task must not carry a family id.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidArgument)
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: task %s: userId is required", ErrInvalidArgument, t.ID)
	}
	if t.Title == "" {
		return fmt.Errorf("%w: task %s: title is required", ErrInvalidArgument, t.ID)
	}
	if t.Private && t.FamilyID != "" {
		return fmt.Errorf("task %s: %w", t.ID, ErrPrivateFamilyMismatch)
	}
	return nil
}

// NormalizePrivacy clears the family id of a private task.
// It reports whether the task was modified.
func (t *Task) NormalizePrivacy() bool {
	if t.Private && t.FamilyID != "" {
		t.FamilyID = ""
		return true
	}
	return false
}

// IsSoftDeleted reports whether the task carries a soft-delete marker.
func (t *Task) IsSoftDeleted() bool {
	return t.Deleted || t.Status == StatusDeleted
}

// IsOwnPrivate reports whether the task is a private task of userID.
func (t *Task) IsOwnPrivate(userID string) bool {
	return t.Private && t.FamilyID == "" && t.OwnedBy(userID)
}

// OwnedBy reports whether userID created or is assigned the task.
func (t *Task) OwnedBy(userID string) bool {
	return userID != "" && (t.CreatedBy == userID || t.UserID == userID)
}

// CompletedBefore reports whether the task was completed before cutoff.
// Tasks without a completion timestamp are never considered old.
func (t *Task) CompletedBefore(cutoff time.Time) bool {
	return t.Completed && t.CompletedAt != nil && t.CompletedAt.Before(cutoff)
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	c.DueDate = cloneTime(t.DueDate)
	c.DueTime = cloneTime(t.DueTime)
	c.EditedAt = cloneTime(t.EditedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	if t.Repeat.Days != nil {
		c.Repeat.Days = append([]int(nil), t.Repeat.Days...)
	}
	if t.Subtasks != nil {
		c.Subtasks = make([]Subtask, len(t.Subtasks))
		for i, s := range t.Subtasks {
			s.CompletedAt = cloneTime(s.CompletedAt)
			c.Subtasks[i] = s
		}
	}
	return c
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults(now time.Time) {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Repeat.Type == "" {
		t.Repeat.Type = RepeatNone
	}
	if t.Subtasks == nil {
		t.Subtasks = []Subtask{}
	}
	if t.CreatedBy == "" {
		t.CreatedBy = t.UserID
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
