package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/testutil"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, backend Backend) (*Store, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(testNow)
	s, err := New(context.Background(), backend, &Config{
		Key:              DefaultKey,
		DebounceInterval: 500 * time.Millisecond,
		Clock:            clk,
		Logger:           testutil.Logger(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s, clk
}

func task(id, title string) model.Task {
	return model.Task{ID: id, Title: title, UserID: "u1", CreatedAt: testNow, UpdatedAt: testNow}
}

func TestNew_RequiresBackend(t *testing.T) {
	if _, err := New(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestReadAfterWrite(t *testing.T) {
	backend := NewMemoryBackend()
	s, _ := newTestStore(t, backend)

	s.SaveTask(task("t1", "Buy milk"))

	got, ok := s.GetTask("t1")
	if !ok {
		t.Fatal("task not visible immediately after write")
	}
	if got.Title != "Buy milk" {
		t.Errorf("Title = %q, want Buy milk", got.Title)
	}
	if backend.Writes() != 0 {
		t.Errorf("Writes() = %d before debounce window elapsed, want 0", backend.Writes())
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	backend := NewMemoryBackend()
	s, clk := newTestStore(t, backend)

	for i := 0; i < 10; i++ {
		s.SaveTask(task("t1", "rev"))
		clk.Add(100 * time.Millisecond)
	}
	if backend.Writes() != 0 {
		t.Fatalf("Writes() = %d during burst, want 0", backend.Writes())
	}

	clk.Add(500 * time.Millisecond)
	testutil.WaitFor(t, time.Second, func() bool { return backend.Writes() == 1 })

	// No further writes once idle.
	clk.Add(time.Second)
	time.Sleep(20 * time.Millisecond)
	if backend.Writes() != 1 {
		t.Errorf("Writes() = %d, want exactly 1", backend.Writes())
	}
}

func TestFlushWritesSynchronously(t *testing.T) {
	backend := NewMemoryBackend()
	s, _ := newTestStore(t, backend)

	s.SaveTask(task("t1", "Buy milk"))
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if backend.Writes() != 1 {
		t.Fatalf("Writes() = %d after Flush, want 1", backend.Writes())
	}

	// A clean store does not rewrite.
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() failed: %v", err)
	}
	if backend.Writes() != 1 {
		t.Errorf("Writes() = %d after clean Flush, want 1", backend.Writes())
	}

	reloaded, _ := newTestStore(t, backend)
	if _, ok := reloaded.GetTask("t1"); !ok {
		t.Error("flushed task missing after reload")
	}
}

func TestFlushReportsWriteError(t *testing.T) {
	backend := NewMemoryBackend()
	s, _ := newTestStore(t, backend)
	boom := errors.New("disk full")
	backend.FailSaves(boom)

	s.SaveTask(task("t1", "Buy milk"))
	if err := s.Flush(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Flush() error = %v, want %v", err, boom)
	}

	// The store stays dirty and a later flush succeeds.
	backend.FailSaves(nil)
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() after recovery failed: %v", err)
	}
	if backend.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", backend.Writes())
	}
}

func TestCorruptDocumentYieldsEmptyCache(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Put(DefaultKey, []byte("{not json"))

	s, _ := newTestStore(t, backend)
	data := s.Get()
	if len(data.Tasks) != 0 || len(data.PendingOperations) != 0 {
		t.Errorf("expected empty cache, got %d tasks", len(data.Tasks))
	}
	if data.Tasks == nil || data.NotificationReads == nil {
		t.Error("default maps must be allocated")
	}
}

func TestPartialDocumentAllocatesMaps(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Put(DefaultKey, []byte(`{"lastSync": 42}`))

	s, _ := newTestStore(t, backend)
	data := s.Get()
	if data.LastSync != 42 {
		t.Errorf("LastSync = %d, want 42", data.LastSync)
	}
	if data.Tasks == nil || data.Families == nil {
		t.Error("maps must be allocated after partial decode")
	}
}

func TestSetMergePatch(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())
	s.SaveTask(task("t1", "Buy milk"))
	s.SaveUser(model.User{ID: "u1", Name: "Ana"})

	last := testNow.UnixMilli()
	s.Set(Patch{LastSync: &last})

	data := s.Get()
	if data.LastSync != last {
		t.Errorf("LastSync = %d, want %d", data.LastSync, last)
	}
	if _, ok := data.Tasks["t1"]; !ok {
		t.Error("unpatched tasks must be preserved")
	}
	if _, ok := data.Users["u1"]; !ok {
		t.Error("unpatched users must be preserved")
	}

	s.Set(Patch{Tasks: map[string]model.Task{}})
	if got := len(s.Get().Tasks); got != 0 {
		t.Errorf("len(Tasks) = %d after replacing with empty map, want 0", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())
	s.SaveTask(task("t1", "Buy milk"))

	data := s.Get()
	tk := data.Tasks["t1"]
	tk.Title = "mutated"
	data.Tasks["t1"] = tk
	delete(data.Tasks, "t1")

	got, ok := s.GetTask("t1")
	if !ok || got.Title != "Buy milk" {
		t.Errorf("cache was mutated through Get(): %+v", got)
	}
}

func TestRemoveFromCache(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())
	s.SaveTask(task("t1", "Buy milk"))
	s.SaveApproval(model.Approval{ID: "a1", TaskID: "t1", FamilyID: "f1"})

	if !s.RemoveFromCache(model.CollectionTasks, "t1") {
		t.Error("expected task removal to report true")
	}
	if s.RemoveFromCache(model.CollectionTasks, "t1") {
		t.Error("second removal must report false")
	}
	if !s.RemoveFromCache(model.CollectionApprovals, "a1") {
		t.Error("expected approval removal to report true")
	}
	if _, ok := s.GetTask("t1"); ok {
		t.Error("task still cached")
	}
}

func TestGetTasksForScope(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())

	own := task("own", "mine")
	ownPrivate := task("own-private", "diary")
	ownPrivate.Private = true
	family := model.Task{ID: "fam", Title: "dishes", UserID: "u2", FamilyID: "f1", CreatedAt: testNow.Add(time.Minute)}
	otherPrivate := model.Task{ID: "other-private", Title: "secret", UserID: "u2", Private: true}
	deleted := task("deleted", "gone")
	deleted.Deleted = true
	otherFamily := model.Task{ID: "other-fam", Title: "x", UserID: "u3", FamilyID: "f2"}

	s.SaveTasks([]model.Task{own, ownPrivate, family, otherPrivate, deleted, otherFamily})

	var ids []string
	for _, tk := range s.GetTasksForScope("u1", "f1") {
		ids = append(ids, tk.ID)
	}
	want := []string{"own", "own-private", "fam"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("GetTasksForScope() mismatch (-want +got):\n%s", diff)
	}
}

func TestClearOldCompletedTasks(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())

	old := testNow.AddDate(0, 0, -8)
	recent := testNow.AddDate(0, 0, -6)
	ancient := testNow.AddDate(-1, 0, 0)

	oldDone := task("old", "old")
	oldDone.Completed = true
	oldDone.CompletedAt = &old

	recentDone := task("recent", "recent")
	recentDone.Completed = true
	recentDone.CompletedAt = &recent

	noTimestamp := task("no-ts", "ambiguous")
	noTimestamp.Completed = true

	incomplete := task("incomplete", "todo")
	incomplete.CreatedAt = ancient

	s.SaveTasks([]model.Task{oldDone, recentDone, noTimestamp, incomplete})

	if removed := s.ClearOldCompletedTasks(7); removed != 1 {
		t.Errorf("ClearOldCompletedTasks(7) = %d, want 1", removed)
	}

	tests := []struct {
		id   string
		kept bool
	}{
		{"old", false},
		{"recent", true},
		{"no-ts", true},
		{"incomplete", true},
	}
	for _, tt := range tests {
		if _, ok := s.GetTask(tt.id); ok != tt.kept {
			t.Errorf("task %s kept = %v, want %v", tt.id, ok, tt.kept)
		}
	}
}

func TestClearOldCompletedTasksKeepsQueuedTasks(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())

	old := testNow.AddDate(0, 0, -8)
	for _, id := range []string{"queued", "idle"} {
		done := task(id, id)
		done.Completed = true
		done.CompletedAt = &old
		s.SaveTask(done)
	}
	s.Update(func(d *model.OfflineData) {
		d.PendingOperations = append(d.PendingOperations, model.PendingOperation{
			ID:         "op1",
			Type:       model.OpUpdate,
			Collection: model.CollectionTasks,
			Data:       json.RawMessage(`{"id":"queued","title":"queued"}`),
		})
	})

	if removed := s.ClearOldCompletedTasks(7); removed != 1 {
		t.Errorf("ClearOldCompletedTasks(7) = %d, want 1", removed)
	}
	if _, ok := s.GetTask("queued"); !ok {
		t.Error("task with a queued operation was pruned")
	}
	if _, ok := s.GetTask("idle"); ok {
		t.Error("idle completed task survived")
	}
}

func TestClearOldHistory(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())
	s.SaveHistoryItem(model.HistoryItem{ID: "h-old", Timestamp: testNow.AddDate(0, 0, -31)})
	s.SaveHistoryItem(model.HistoryItem{ID: "h-new", Timestamp: testNow.AddDate(0, 0, -1)})
	s.SaveHistoryItem(model.HistoryItem{ID: "h-zero"})

	if removed := s.ClearOldHistory(30); removed != 1 {
		t.Errorf("ClearOldHistory(30) = %d, want 1", removed)
	}
	history := s.Get().History
	if _, ok := history["h-old"]; ok {
		t.Error("old history item kept")
	}
	if len(history) != 2 {
		t.Errorf("len(History) = %d, want 2", len(history))
	}
}

func TestNotificationReads(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())
	if s.IsNotificationRead("n1") {
		t.Fatal("unread notification reported read")
	}
	s.MarkNotificationRead("n1")
	if !s.IsNotificationRead("n1") {
		t.Error("notification not marked read")
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryBackend())
	s.SaveTask(task("t1", "a"))
	s.SaveTask(task("t2", "b"))
	s.SaveFamily(model.Family{ID: "f1", Name: "Silva"})
	s.Update(func(d *model.OfflineData) {
		d.PendingOperations = append(d.PendingOperations, model.PendingOperation{ID: "op1"})
		d.LastSync = testNow.UnixMilli()
	})

	st := s.Stats()
	if st.Tasks != 2 || st.Families != 1 || st.PendingOperations != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if !st.LastSync.Equal(testNow) {
		t.Errorf("LastSync = %v, want %v", st.LastSync, testNow)
	}
	if !s.LastSync().Equal(testNow) {
		t.Errorf("Store.LastSync() = %v, want %v", s.LastSync(), testNow)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	backend, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	s, _ := newTestStore(t, backend)
	s.SaveTask(task("t1", "Buy milk"))
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	backend, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	s, _ = newTestStore(t, backend)
	defer s.Close(context.Background())

	got, ok := s.GetTask("t1")
	if !ok {
		t.Fatal("task missing after reopen")
	}
	want := task("t1", "Buy milk")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("task mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteBackendMissingKey(t *testing.T) {
	backend, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer backend.Close()

	data, err := backend.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if data != nil {
		t.Errorf("Load() = %q, want nil", data)
	}
}
