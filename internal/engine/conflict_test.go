package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/testutil"
)

func TestParseConflictPolicy(t *testing.T) {
	for _, name := range []string{"local_wins", "remote_wins", "merge"} {
		if _, err := ParseConflictPolicy(name); err != nil {
			t.Errorf("ParseConflictPolicy(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseConflictPolicy("last_writer"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestHasRealChanges(t *testing.T) {
	base := testutil.Task("t1", "Buy milk", "u1")

	tests := []struct {
		name   string
		mutate func(*model.Task)
		want   bool
	}{
		{"identical", func(*model.Task) {}, false},
		{"same instant other zone", func(t *model.Task) {
			t.UpdatedAt = t.UpdatedAt.In(time.FixedZone("BRT", -3*3600))
		}, false},
		{"subtasks only", func(t *model.Task) {
			t.Subtasks = []model.Subtask{{ID: "s1", Title: "Oat milk"}}
		}, false},
		{"title", func(t *model.Task) { t.Title = "Buy bread" }, true},
		{"completed", func(t *model.Task) { t.Completed = true }, true},
		{"updatedAt", func(t *model.Task) { t.UpdatedAt = t.UpdatedAt.Add(time.Second) }, true},
		{"due date", func(t *model.Task) { d := testutil.Now; t.DueDate = &d }, true},
		{"editedBy", func(t *model.Task) { t.EditedBy = "u2" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base.Clone()
			tt.mutate(&other)
			if got := hasRealChanges(base, other); got != tt.want {
				t.Errorf("hasRealChanges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConflictPolicies(t *testing.T) {
	t1 := testutil.Now
	t2 := t1.Add(time.Minute)

	local := testutil.Task("t1", "Local title", "u1")
	local.UpdatedAt = t1

	newer := testutil.Task("t1", "Remote title", "u1")
	newer.UpdatedAt = t2
	newer.Description = "added remotely"

	older := newer.Clone()
	older.UpdatedAt = t1.Add(-time.Minute)

	tests := []struct {
		name      string
		policy    ConflictPolicy
		remote    model.Task
		wantTitle string
		wantDesc  string
	}{
		{"local wins discards newer remote", LocalWins, newer, "Local title", ""},
		{"remote wins accepts newer remote", RemoteWins, newer, "Remote title", "added remotely"},
		{"remote wins keeps local over older remote", RemoteWins, older, "Local title", ""},
		{"merge keeps set local fields", Merge, newer, "Local title", "added remotely"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true, func(c *Config) { c.ConflictPolicy = tt.policy })
			h.store.SaveTask(local)

			h.engine.applyRemoteTask(tt.remote, nil)

			got, _ := h.store.GetTask("t1")
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", got.Description, tt.wantDesc)
			}
		})
	}
}

func TestMergeTaskFillsZeroFields(t *testing.T) {
	due := testutil.Now.Add(24 * time.Hour)
	local := model.Task{ID: "t1", Title: "Local", UserID: "u1", Completed: false}
	remote := model.Task{ID: "t1", Title: "Remote", UserID: "u2", Category: "home", DueDate: &due, Completed: true}

	got := mergeTask(local, remote)
	want := model.Task{ID: "t1", Title: "Local", UserID: "u1", Category: "home", DueDate: &due, Completed: false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeTask() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyRemoteTaskIsIdempotent(t *testing.T) {
	h := newHarness(t, true, func(c *Config) { c.ConflictPolicy = RemoteWins })

	local := testutil.Task("t1", "Buy milk", "u1")
	h.store.SaveTask(local)

	snapshot := local.Clone()
	snapshot.Title = "Buy oat milk"
	snapshot.UpdatedAt = local.UpdatedAt.Add(time.Minute)

	if !h.engine.applyRemoteTask(snapshot, nil) {
		t.Fatal("first application did not change the cache")
	}
	first, _ := h.store.GetTask("t1")
	firstJSON, _ := json.Marshal(first)

	if h.engine.applyRemoteTask(snapshot, nil) {
		t.Error("second application reported a change")
	}
	second, _ := h.store.GetTask("t1")
	secondJSON, _ := json.Marshal(second)

	if string(firstJSON) != string(secondJSON) {
		t.Errorf("cache entry changed on re-application:\n%s\n%s", firstJSON, secondJSON)
	}
}
