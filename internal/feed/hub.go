// Package feed implements an in-process change feed. Each subscriber gets its
// own delivery goroutine, so a slow callback only delays its own queue.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

var _ domain.Feed[domain.Report] = (*Hub[domain.Report])(nil)

// ErrClosed is returned when publishing to or subscribing on a closed hub.
var ErrClosed = errors.New("feed closed")

// Hub fans published values out to every live subscription in publish order.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[*subscription[T]]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*subscription[T]]struct{})}
}

// Publish enqueues v for every current subscriber. It never blocks on
// subscriber callbacks.
func (h *Hub[T]) Publish(ctx context.Context, v T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.subs {
		s.enqueue(v)
	}
	return nil
}

// Subscribe registers fn. Values published before Subscribe returns are not
// replayed.
func (h *Hub[T]) Subscribe(fn func(T)) (domain.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := &subscription[T]{
		fn:     fn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.cancel = func() { h.remove(s) }
	h.subs[s] = struct{}{}
	go s.run()
	return s, nil
}

// Len returns the number of live subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close cancels every subscription. Further Publish and Subscribe calls fail.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscription[T]]struct{})
	h.closed = true
	h.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (h *Hub[T]) remove(s *subscription[T]) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.stop()
}

type subscription[T any] struct {
	fn     func(T)
	cancel func()

	mu     sync.Mutex
	queue  []T
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Cancel stops delivery. It may be called from inside the callback and more
// than once. It does not wait for an in-flight callback to return.
func (s *subscription[T]) Cancel() {
	s.cancel()
}

func (s *subscription[T]) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription[T]) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			v := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(v)
		}
	}
}
