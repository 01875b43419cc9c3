package status

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeDeliversCurrentStatus(t *testing.T) {
	p := NewPublisher(Status{IsOnline: true, PendingOperations: 2})

	var got []Status
	unsub := p.Subscribe(func(s Status) { got = append(got, s) })
	defer unsub()

	if len(got) != 1 {
		t.Fatalf("expected immediate delivery, got %d calls", len(got))
	}
	if !got[0].IsOnline || got[0].PendingOperations != 2 {
		t.Errorf("unexpected initial status: %+v", got[0])
	}
}

func TestUpdateNotifiesSynchronously(t *testing.T) {
	p := NewPublisher(Status{})

	var a, b []Status
	unsubA := p.Subscribe(func(s Status) { a = append(a, s) })
	defer unsubA()
	unsubB := p.Subscribe(func(s Status) { b = append(b, s) })
	defer unsubB()

	last := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	p.Update(func(s *Status) {
		s.IsSyncing = true
		s.LastSync = last
	})
	// Identical updates still notify.
	p.Update(func(s *Status) { s.IsSyncing = true })

	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 deliveries each, got %d and %d", len(a), len(b))
	}
	if !a[1].IsSyncing || !a[1].LastSync.Equal(last) {
		t.Errorf("update not delivered: %+v", a[1])
	}
	if got := p.Status(); !got.IsSyncing || !got.LastSync.Equal(last) {
		t.Errorf("snapshot not updated: %+v", got)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	p := NewPublisher(Status{IsOnline: true, PendingOperations: 4})
	p.Update(func(s *Status) { s.HasError = true; s.ErrorMessage = "boom" })

	got := p.Status()
	if !got.IsOnline || got.PendingOperations != 4 {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if !got.HasError || got.ErrorMessage != "boom" {
		t.Errorf("patched fields missing: %+v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	p := NewPublisher(Status{})

	calls := 0
	unsub := p.Subscribe(func(Status) { calls++ })
	unsub()
	unsub()

	p.Update(func(s *Status) { s.IsOnline = true })
	if calls != 1 {
		t.Errorf("expected only the initial delivery, got %d", calls)
	}
	if n := p.SubscriberCount(); n != 0 {
		t.Errorf("expected no subscribers, got %d", n)
	}
}

func TestSubscriberMayUpdateFromCallback(t *testing.T) {
	p := NewPublisher(Status{})

	var unsub func()
	unsub = p.Subscribe(func(s Status) {
		if s.IsOnline && s.PendingOperations == 0 {
			p.Update(func(s *Status) { s.PendingOperations = 1 })
		}
	})
	defer unsub()

	p.Update(func(s *Status) { s.IsOnline = true })
	if got := p.Status().PendingOperations; got != 1 {
		t.Errorf("expected nested update to apply, got %d", got)
	}
}

func TestConcurrentUpdatesDeliverInOrder(t *testing.T) {
	p := NewPublisher(Status{})

	entered := make(chan struct{})
	release := make(chan struct{})
	var blockOnce sync.Once
	unsubA := p.Subscribe(func(s Status) {
		if s.PendingOperations == 1 {
			blockOnce.Do(func() {
				close(entered)
				<-release
			})
		}
	})
	defer unsubA()

	var mu sync.Mutex
	var seen []int
	unsubB := p.Subscribe(func(s Status) {
		mu.Lock()
		seen = append(seen, s.PendingOperations)
		mu.Unlock()
	})
	defer unsubB()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Update(func(s *Status) { s.PendingOperations = 1 })
	}()
	<-entered

	// The second update queues behind the first, still being delivered.
	p.Update(func(s *Status) { s.PendingOperations = 2 })
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []int{0, 1, 2}
	if len(seen) != len(want) {
		t.Fatalf("deliveries = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("deliveries = %v, want %v", seen, want)
		}
	}
	if got := p.Status().PendingOperations; got != 2 {
		t.Errorf("snapshot pending = %d, want 2", got)
	}
}

func TestLateSubscriberNeverSeesOlderStatus(t *testing.T) {
	p := NewPublisher(Status{})

	var late []int
	var unsubLate func()
	unsubEarly := p.Subscribe(func(s Status) {
		if s.PendingOperations == 1 && unsubLate == nil {
			// Subscribing while pending=1 is being delivered.
			unsubLate = p.Subscribe(func(s Status) { late = append(late, s.PendingOperations) })
		}
	})
	defer unsubEarly()

	p.Update(func(s *Status) { s.PendingOperations = 1 })
	defer unsubLate()
	p.Update(func(s *Status) { s.PendingOperations = 2 })

	if len(late) != 2 || late[0] != 1 || late[1] != 2 {
		t.Errorf("late subscriber saw %v, want [1 2]", late)
	}
}
