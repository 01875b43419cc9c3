package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mschirtzinger/famtasks/internal/model"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{"first attempt, no jitter", 0, 0.5, time.Second},
		{"second attempt, no jitter", 1, 0.5, 2 * time.Second},
		{"third attempt, no jitter", 2, 0.5, 4 * time.Second},
		{"low jitter halves", 0, 0, 500 * time.Millisecond},
		{"capped at max", 10, 0.5, 30 * time.Second},
		{"capped with high jitter", 10, 1.0, 45 * time.Second},
		{"negative attempt treated as zero", -3, 0.5, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			p.Rand = Fixed(tt.jitter)
			if got := p.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestDelayDefaultJitterBounds(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		if d < time.Second || d >= 3*time.Second {
			t.Fatalf("Delay(1) = %v, want within [1s, 3s)", d)
		}
	}
}

func TestExhausted(t *testing.T) {
	p := DefaultPolicy()
	for n, want := range map[int]bool{0: false, 2: false, 3: true, 4: true} {
		if got := p.Exhausted(n); got != want {
			t.Errorf("Exhausted(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), clock.New(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return model.ErrUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsOnFatal(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), clock.New(), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("save: %w", model.ErrPermissionDenied)
	})
	if !errors.Is(err, model.ErrPermissionDenied) {
		t.Fatalf("Do() error = %v, want permission denied", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_Exhausts(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), clock.New(), func(ctx context.Context) error {
		calls++
		return model.ErrUnavailable
	})
	if !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, clock.New(), func(ctx context.Context) error {
		return model.ErrUnavailable
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}
