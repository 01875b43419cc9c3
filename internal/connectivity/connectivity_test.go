package connectivity

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mschirtzinger/famtasks/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) add(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) last() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return State{}, false
	}
	return r.states[len(r.states)-1], true
}

func newMonitor(source Source) *Monitor {
	return NewMonitor(source, &Config{Logger: testutil.Logger()})
}

func TestMonitorDefaultsOffline(t *testing.T) {
	m := newMonitor(nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer m.Close()

	if m.IsConnected() {
		t.Error("expected offline without a source")
	}
	if got := m.CurrentState(); got != Offline {
		t.Errorf("expected default state, got %+v", got)
	}
}

func TestMonitorInitializeFetchesCurrentState(t *testing.T) {
	src := NewManualSource(Online())
	m := newMonitor(src)
	if m.IsConnected() {
		t.Fatal("expected offline before Initialize")
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer m.Close()

	if !m.IsConnected() {
		t.Error("expected connected after Initialize")
	}
	if err := m.Initialize(context.Background()); err == nil {
		t.Error("expected error on second Initialize")
	}
}

func TestMonitorListenersSeeEveryRawChange(t *testing.T) {
	src := NewManualSource(Online())
	m := newMonitor(src)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer m.Close()

	var rec recorder
	remove := m.AddListener(rec.add)

	src.Set(State{Connected: true, Type: "wifi"})
	src.Set(State{Connected: true, Type: "cellular"})
	src.SetConnected(false)

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("expected 3 raw changes, got %d: %+v", len(got), got)
	}
	if got[1].Type != "cellular" || got[2].Connected {
		t.Errorf("unexpected states: %+v", got)
	}
	if m.IsConnected() {
		t.Error("expected monitor to follow the source")
	}

	remove()
	src.SetConnected(true)
	if n := len(rec.all()); n != 3 {
		t.Errorf("removed listener still called, got %d states", n)
	}
}

func TestMonitorCloseStopsWatching(t *testing.T) {
	src := NewManualSource(State{})
	m := newMonitor(src)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	m.Close()

	src.SetConnected(true)
	if m.IsConnected() {
		t.Error("closed monitor followed the source")
	}
}

type brokenSource struct{}

func (brokenSource) Current(ctx context.Context) (State, error) {
	return State{}, errors.New("no network api")
}

func (brokenSource) Watch(ctx context.Context, fn func(State)) (func(), error) {
	return nil, errors.New("no network api")
}

func TestMonitorToleratesFailingSource(t *testing.T) {
	m := newMonitor(brokenSource{})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize should not fail: %v", err)
	}
	defer m.Close()

	if m.IsConnected() {
		t.Error("expected default offline state")
	}
}

type fakeDialer struct {
	up    atomic.Bool
	calls atomic.Int32
}

func (d *fakeDialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d.calls.Add(1)
	if !d.up.Load() {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func TestProbeSourceReportsChanges(t *testing.T) {
	clk := clock.NewMock()
	d := &fakeDialer{}
	d.up.Store(true)
	p := &ProbeSource{Addr: "remote:8090", Interval: 5 * time.Second, Clock: clk, Dial: d.dial}

	st, err := p.Current(context.Background())
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !st.Connected {
		t.Errorf("expected connected, got %+v", st)
	}

	var rec recorder
	stop, err := p.Watch(context.Background(), rec.add)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer stop()

	clk.Add(5 * time.Second)
	testutil.WaitFor(t, time.Second, func() bool { return len(rec.all()) == 1 })

	before := d.calls.Load()
	clk.Add(5 * time.Second)
	testutil.WaitFor(t, time.Second, func() bool { return d.calls.Load() > before })
	if n := len(rec.all()); n != 1 {
		t.Errorf("unchanged probe reported, got %d states", n)
	}

	d.up.Store(false)
	clk.Add(5 * time.Second)
	testutil.WaitFor(t, time.Second, func() bool {
		st, ok := rec.last()
		return ok && !st.Connected
	})
}

func TestProbeSourceRequiresAddr(t *testing.T) {
	p := &ProbeSource{}
	if _, err := p.Current(context.Background()); err == nil {
		t.Error("expected error without address")
	}
	if _, err := p.Watch(context.Background(), func(State) {}); err == nil {
		t.Error("expected error without address")
	}
}

func TestProbeSourceAgainstListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	p := NewProbeSource(ln.Addr().String(), time.Second)

	st, err := p.Current(context.Background())
	if err != nil || !st.Connected {
		t.Fatalf("expected reachable listener, got %+v, %v", st, err)
	}

	ln.Close()
	st, err = p.Current(context.Background())
	if err != nil || st.Connected {
		t.Errorf("expected unreachable after close, got %+v, %v", st, err)
	}
}

func TestMarkerSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline")
	src := NewMarkerSource(path)

	st, err := src.Current(context.Background())
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !st.Connected {
		t.Errorf("expected connected without marker, got %+v", st)
	}

	var rec recorder
	stop, err := src.Watch(context.Background(), rec.add)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("failed to create marker: %v", err)
	}
	testutil.WaitFor(t, 2*time.Second, func() bool {
		st, ok := rec.last()
		return ok && !st.Connected
	})

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove marker: %v", err)
	}
	testutil.WaitFor(t, 2*time.Second, func() bool {
		st, ok := rec.last()
		return ok && st.Connected
	})

	// Unrelated files are ignored.
	n := len(rec.all())
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other"), nil, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(rec.all()); got != n {
		t.Errorf("unrelated file produced %d states", got-n)
	}
}

func TestAllRequiresEverySource(t *testing.T) {
	a := NewManualSource(State{Connected: true, Type: "tcp"})
	b := NewManualSource(State{Connected: true, Type: "marker"})
	src := All(a, b)

	st, err := src.Current(context.Background())
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !st.Connected || st.Type != "tcp" {
		t.Errorf("expected first connected source, got %+v", st)
	}

	var rec recorder
	stop, err := src.Watch(context.Background(), rec.add)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer stop()

	b.Set(State{Type: "marker", Detail: "forced"})
	st, _ = rec.last()
	if st.Connected || st.Detail != "forced" {
		t.Errorf("expected marker to force offline, got %+v", st)
	}

	a.SetConnected(true)
	st, _ = rec.last()
	if st.Connected {
		t.Errorf("expected offline while marker holds, got %+v", st)
	}

	b.Set(State{Connected: true, Type: "marker"})
	st, _ = rec.last()
	if !st.Connected {
		t.Errorf("expected connected, got %+v", st)
	}
}

func TestAllSingleSource(t *testing.T) {
	a := NewManualSource(Online())
	if All(a) != Source(a) {
		t.Error("expected single source to be returned as is")
	}
}
