package docstore

import (
	"context"
	"log"
	"sync"
)

// hub fans collection changes out to query subscriptions.
//
// Each subscription owns one goroutine and a single-slot notify channel:
// bursts of changes coalesce into one re-query, and every delivery is the
// latest full result set.
type hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	logger *log.Logger
}

type subscription struct {
	query  Query
	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func newHub(logger *log.Logger) *hub {
	return &hub{subs: make(map[*subscription]struct{}), logger: logger}
}

// subscribe registers q and starts delivering to fn. initial is delivered
// first; fetch recomputes the result set after each change.
func (h *hub) subscribe(ctx context.Context, q Query, initial []Document, fetch func(context.Context) ([]Document, error), fn func([]Document)) func() {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		query:  q,
		notify: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer h.remove(sub)

		fn(initial)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
			}
			docs, err := fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Printf("Warning: subscription on %s failed to refresh: %v", q.Collection, err)
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			fn(docs)
		}
	}()

	return func() {
		cancel()
		<-sub.done
	}
}

// changed wakes every subscription on collection.
func (h *hub) changed(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.query.Collection != collection {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

func (h *hub) remove(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// closeAll ends every subscription and waits for their goroutines.
func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
}
