package connectivity

import (
	"context"
	"sync"
)

type combined struct {
	sources []Source
}

// All combines sources: the result is connected only while every source
// is connected. The type and detail come from the first disconnected
// source, or the first source when all are connected.
func All(sources ...Source) Source {
	if len(sources) == 1 {
		return sources[0]
	}
	return &combined{sources: sources}
}

func merge(states []State) State {
	if len(states) == 0 {
		return Offline
	}
	for _, st := range states {
		if !st.Connected {
			return st
		}
	}
	return states[0]
}

func (c *combined) Current(ctx context.Context) (State, error) {
	states := make([]State, len(c.sources))
	for i, s := range c.sources {
		st, err := s.Current(ctx)
		if err != nil {
			return State{}, err
		}
		states[i] = st
	}
	return merge(states), nil
}

func (c *combined) Watch(ctx context.Context, fn func(State)) (func(), error) {
	var mu sync.Mutex
	states := make([]State, len(c.sources))
	for i, s := range c.sources {
		if st, err := s.Current(ctx); err == nil {
			states[i] = st
		} else {
			states[i] = Offline
		}
	}

	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}
	for i, s := range c.sources {
		stop, err := s.Watch(ctx, func(st State) {
			mu.Lock()
			defer mu.Unlock()
			states[i] = st
			fn(merge(states))
		})
		if err != nil {
			stopAll()
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}
