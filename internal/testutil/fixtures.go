package testutil

import (
	"time"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// Now is the fixed instant fixtures are stamped with.
var Now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// Task returns a valid public task owned by userID.
func Task(id, title, userID string) model.Task {
	t := model.Task{
		ID:        id,
		Title:     title,
		UserID:    userID,
		CreatedBy: userID,
		Status:    model.StatusPending,
		Repeat:    model.Repeat{Type: model.RepeatNone},
		Subtasks:  []model.Subtask{},
		CreatedAt: Now,
		UpdatedAt: Now,
	}
	return t
}

// FamilyTask returns a valid public task of familyID.
func FamilyTask(id, title, userID, familyID string) model.Task {
	t := Task(id, title, userID)
	t.FamilyID = familyID
	return t
}

// PrivateTask returns a valid private task owned by userID.
func PrivateTask(id, title, userID string) model.Task {
	t := Task(id, title, userID)
	t.Private = true
	return t
}

// CompletedTask returns a task completed at completedAt.
func CompletedTask(id, userID string, completedAt time.Time) model.Task {
	t := Task(id, id, userID)
	t.Completed = true
	t.Status = model.StatusCompleted
	t.CompletedAt = &completedAt
	return t
}
