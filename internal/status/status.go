// Package status publishes the sync status to in-process observers.
package status

import (
	"sort"
	"sync"
	"time"
)

// Status is the published sync state.
type Status struct {
	IsOnline          bool      `json:"isOnline"`
	IsSyncing         bool      `json:"isSyncing"`
	LastSync          time.Time `json:"lastSync"`
	PendingOperations int       `json:"pendingOperations"`
	FailedOperations  int       `json:"failedOperations"`
	HasError          bool      `json:"hasError"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
}

// Publisher holds the current Status and notifies subscribers of every
// update. Notifications are never coalesced, and every subscriber sees
// them in the order the updates were applied.
//
// Delivery is serialized: while one goroutine is notifying subscribers,
// an Update from another goroutine (or from inside a callback) queues its
// notification behind the ones in flight and returns; the delivering
// goroutine hands it out before it returns. An uncontended Update
// notifies every subscriber before returning.
type Publisher struct {
	mu          sync.Mutex
	status      Status
	subscribers map[int]*subscriber
	nextID      int

	pending    []delivery
	delivering bool
}

type subscriber struct {
	fn      func(Status)
	removed bool
}

// delivery is one queued notification. Its recipients are fixed when it is
// queued, so a later subscriber never sees a status older than its first.
type delivery struct {
	status Status
	to     []*subscriber
}

// NewPublisher creates a publisher with the given initial status.
func NewPublisher(initial Status) *Publisher {
	return &Publisher{
		status:      initial,
		subscribers: make(map[int]*subscriber),
	}
}

// Subscribe delivers the current status to fn and every update afterwards.
// The returned function removes the subscription.
func (p *Publisher) Subscribe(fn func(Status)) (unsubscribe func()) {
	sub := &subscriber{fn: fn}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = sub
	p.pending = append(p.pending, delivery{status: p.status, to: []*subscriber{sub}})
	p.dispatchLocked()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			sub.removed = true
			delete(p.subscribers, id)
			p.mu.Unlock()
		})
	}
}

// Status returns a snapshot of the current status.
func (p *Publisher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Update applies fn to the status and queues a notification of the result
// for every current subscriber, in subscription order.
func (p *Publisher) Update(fn func(s *Status)) {
	p.mu.Lock()
	fn(&p.status)
	p.pending = append(p.pending, delivery{status: p.status, to: p.snapshotLocked()})
	p.dispatchLocked()
}

// dispatchLocked is called with p.mu held and releases it. The first
// caller to find no delivery in flight drains the queue in order; every
// other caller leaves its delivery to that goroutine.
func (p *Publisher) dispatchLocked() {
	if p.delivering {
		p.mu.Unlock()
		return
	}
	p.delivering = true
	for len(p.pending) > 0 {
		d := p.pending[0]
		p.pending = p.pending[1:]
		for _, sub := range d.to {
			if sub.removed {
				continue
			}
			p.mu.Unlock()
			sub.fn(d.status)
			p.mu.Lock()
		}
	}
	p.pending = nil
	p.delivering = false
	p.mu.Unlock()
}

// SubscriberCount returns the number of active subscriptions.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

func (p *Publisher) snapshotLocked() []*subscriber {
	ids := make([]int, 0, len(p.subscribers))
	for id := range p.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]*subscriber, len(ids))
	for i, id := range ids {
		subs[i] = p.subscribers[id]
	}
	return subs
}
