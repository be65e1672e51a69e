// Package stream defines the long-lived snapshot subscription contract shared
// by the remote listeners, the planner and the aggregator.
package stream

import (
	"context"
	"sync"
)

// Subscription is a handle to a running listener. Unsubscribe stops it and
// waits for the listener goroutine to exit. Calling it more than once is safe.
type Subscription interface {
	Unsubscribe()
}

// Listener delivers whole snapshots of a collection. Each call to onSnapshot
// carries the full current contents; it never receives deltas.
type Listener[T any] interface {
	Listen(ctx context.Context, onSnapshot func([]T)) (Subscription, error)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc[T any] func(ctx context.Context, onSnapshot func([]T)) (Subscription, error)

// Listen calls fn.
func (fn ListenerFunc[T]) Listen(ctx context.Context, onSnapshot func([]T)) (Subscription, error) {
	return fn(ctx, onSnapshot)
}

// Handle is a Subscription backed by a context cancel and a done channel the
// listener goroutine closes on exit.
type Handle struct {
	once   sync.Once
	cancel context.CancelFunc
	done   <-chan struct{}
}

// NewHandle returns a handle that cancels with cancel and waits on done. A nil
// done channel means there is nothing to wait for.
func NewHandle(cancel context.CancelFunc, done <-chan struct{}) *Handle {
	return &Handle{cancel: cancel, done: done}
}

// Go starts run in a goroutine under a child of ctx and returns its handle.
func Go(ctx context.Context, run func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return NewHandle(cancel, done)
}

// Unsubscribe cancels the listener exactly once and waits for it to finish.
func (h *Handle) Unsubscribe() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
	if h.done != nil {
		<-h.done
	}
}

// Done is closed when the listener goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }
