package queue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mschirtzinger/famtasks/internal/model"
)

func entry(id string, op Operation) Entry {
	return Entry{Pending: model.PendingOperation{ID: id, Type: op.Kind(), Collection: op.Collection()}, Op: op}
}

func taskOp(id string) model.Task {
	return model.Task{ID: id, Title: id, UserID: "u1"}
}

func ids(entries []Entry) []string {
	out := []string{}
	for _, e := range entries {
		out = append(out, e.Pending.ID)
	}
	return out
}

func TestPartition(t *testing.T) {
	entries := []Entry{
		entry("1", CreateTask(taskOp("a"))),
		entry("2", DeleteTask("b")),
		entry("3", UpdateTask(taskOp("c"))),
		entry("4", CreateTask(taskOp("b"))), // re-create after delete
		entry("5", SaveApproval(model.Approval{ID: "x"})),
		entry("6", DeleteApproval("x")),
	}

	batchable, sequential := Partition(entries)
	if diff := cmp.Diff([]string{"1", "3", "5"}, ids(batchable)); diff != "" {
		t.Errorf("batchable mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2", "4", "6"}, ids(sequential)); diff != "" {
		t.Errorf("sequential mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupBatchable(t *testing.T) {
	entries := []Entry{
		entry("1", CreateTask(taskOp("a"))),
		entry("2", SaveUser(model.User{ID: "u1"})),
		entry("3", CreateTask(taskOp("b"))),
		entry("4", UpdateTask(taskOp("c"))),
		entry("5", SaveUser(model.User{ID: "u2"})),
	}

	groups := GroupBatchable(entries)
	type summary struct {
		Collection model.Collection
		Kind       model.OpType
		IDs        []string
	}
	var got []summary
	for _, g := range groups {
		got = append(got, summary{g.Collection, g.Kind, ids(g.Entries)})
	}
	want := []summary{
		{model.CollectionTasks, model.OpCreate, []string{"1", "3"}},
		{model.CollectionUsers, model.OpCreate, []string{"2", "5"}},
		{model.CollectionTasks, model.OpUpdate, []string{"4"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupBatchablePreservesEntityOrder(t *testing.T) {
	entries := []Entry{
		entry("1", UpdateTask(taskOp("a"))),
		entry("2", CreateTask(taskOp("b"))),
		entry("3", UpdateTask(taskOp("b"))), // must not join group of "1", which runs first
	}

	groups := GroupBatchable(entries)
	var order []string
	for _, g := range groups {
		order = append(order, ids(g.Entries)...)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, order); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
	if len(groups) != 3 {
		t.Errorf("len(groups) = %d, want 3", len(groups))
	}
}

func TestDecoded(t *testing.T) {
	good, _ := Encode(DeleteTask("t1"))
	ops := []model.PendingOperation{
		{ID: "ok", Type: model.OpDelete, Collection: model.CollectionTasks, Data: good},
		{ID: "bad", Type: model.OpDelete, Collection: model.CollectionHistory, Data: good},
	}
	entries, invalid := Decoded(ops)
	if len(entries) != 1 || entries[0].Pending.ID != "ok" {
		t.Errorf("entries = %+v", entries)
	}
	if _, ok := invalid["bad"]; !ok || len(invalid) != 1 {
		t.Errorf("invalid = %v", invalid)
	}
}
