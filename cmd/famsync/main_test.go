package main

import (
	"errors"
	"testing"
	"time"

	"github.com/mschirtzinger/famtasks/internal/config"
	"github.com/mschirtzinger/famtasks/internal/model"
)

func TestParseDue(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-11-02", time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)},
		{"2026-11-02 17:30", time.Date(2026, 11, 2, 17, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDue(tt.in, now)
		if err != nil {
			t.Fatalf("parseDue(%q) failed: %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	got, err := parseDue("tomorrow", now)
	if err != nil {
		t.Fatalf("parseDue(tomorrow) failed: %v", err)
	}
	if got.YearDay() != now.YearDay()+1 {
		t.Errorf("parseDue(tomorrow) = %v", got)
	}

	if got, err := parseDue("  ", now); err != nil || got != nil {
		t.Errorf("parseDue(blank) = %v, %v", got, err)
	}
	if _, err := parseDue("zzzz", now); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("parseDue(zzzz) error = %v, want ErrInvalidArgument", err)
	}
}

func TestFindTask(t *testing.T) {
	tasks := []model.Task{{ID: "abc123"}, {ID: "abd456"}, {ID: "xyz"}}

	if got, err := findTask(tasks, "xyz"); err != nil || got.ID != "xyz" {
		t.Errorf("exact match = %v, %v", got.ID, err)
	}
	if got, err := findTask(tasks, "abc"); err != nil || got.ID != "abc123" {
		t.Errorf("prefix match = %v, %v", got.ID, err)
	}
	if _, err := findTask(tasks, "ab"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("ambiguous prefix error = %v", err)
	}
	if _, err := findTask(tasks, "q"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing error = %v", err)
	}
}

func TestFilterTasksOrdersByDue(t *testing.T) {
	d1 := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "none", Title: "b"},
		{ID: "late", Title: "a", DueDate: &d2},
		{ID: "done", Title: "c", Completed: true},
		{ID: "soon", Title: "z", DueDate: &d1},
		{ID: "none2", Title: "a"},
	}

	var ids []string
	for _, t := range filterTasks(tasks, false) {
		ids = append(ids, t.ID)
	}
	want := []string{"soon", "late", "none2", "none"}
	if len(ids) != len(want) {
		t.Fatalf("filterTasks() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("filterTasks() = %v, want %v", ids, want)
			break
		}
	}
	if n := len(filterTasks(tasks, true)); n != 5 {
		t.Errorf("filterTasks(all) kept %d tasks, want 5", n)
	}
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		url, probe, want string
	}{
		{"http://localhost:8090", "", "localhost:8090"},
		{"https://sync.example.com", "", "sync.example.com:443"},
		{"http://sync.example.com/base", "", "sync.example.com:80"},
		{"http://localhost:8090", "10.0.0.1:53", "10.0.0.1:53"},
		{"", "", ""},
	}
	for _, tt := range tests {
		cfg := config.DefaultConfig()
		cfg.Remote.URL = tt.url
		cfg.Connectivity.ProbeAddr = tt.probe
		if got := probeAddr(cfg); got != tt.want {
			t.Errorf("probeAddr(%q, %q) = %q, want %q", tt.url, tt.probe, got, tt.want)
		}
	}
}

func TestConnectivitySource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Remote.URL = ""
	if src := connectivitySource(cfg); src != nil {
		t.Errorf("expected no source without remote or marker, got %T", src)
	}
	cfg.Connectivity.MarkerFile = "offline"
	if src := connectivitySource(cfg); src == nil {
		t.Error("expected marker source")
	}
}
