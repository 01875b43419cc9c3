package connectivity

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DialFunc opens a connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ProbeSource polls a TCP address. The network is considered connected
// while the address accepts connections.
type ProbeSource struct {
	Addr     string
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
	Dial     DialFunc
}

// NewProbeSource creates a probe of addr every interval.
func NewProbeSource(addr string, interval time.Duration) *ProbeSource {
	return &ProbeSource{
		Addr:     addr,
		Interval: interval,
		Timeout:  2 * time.Second,
		Clock:    clock.New(),
		Dial:     (&net.Dialer{}).DialContext,
	}
}

func (p *ProbeSource) defaults() {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}
	if p.Timeout <= 0 {
		p.Timeout = 2 * time.Second
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Dial == nil {
		p.Dial = (&net.Dialer{}).DialContext
	}
}

// Current implements Source. An unreachable address is reported as a
// disconnected state, not an error.
func (p *ProbeSource) Current(ctx context.Context) (State, error) {
	p.defaults()
	if p.Addr == "" {
		return State{}, fmt.Errorf("probe address is required")
	}
	return p.probe(ctx), nil
}

func (p *ProbeSource) probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.Dial(ctx, "tcp", p.Addr)
	if err != nil {
		return State{Type: "tcp", Detail: p.Addr + " unreachable"}
	}
	conn.Close()
	return State{Connected: true, Type: "tcp", Detail: p.Addr}
}

// Watch implements Source. It probes every Interval and reports states
// that differ from the previous probe.
func (p *ProbeSource) Watch(ctx context.Context, fn func(State)) (func(), error) {
	p.defaults()
	if p.Addr == "" {
		return nil, fmt.Errorf("probe address is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	ticker := p.Clock.Ticker(p.Interval)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()

		var last State
		first := true
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := p.probe(ctx)
				if ctx.Err() != nil {
					return
				}
				if first || st != last {
					fn(st)
				}
				last, first = st, false
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}
