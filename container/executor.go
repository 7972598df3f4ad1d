package container

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// executor decides where capacity eviction runs once a put has pushed a
// stripe over its capacity. overflow is called with the stripe lock held.
type executor[K comparable, V any] interface {
	start(ctx context.Context, g *errgroup.Group)
	overflow(s *stripe[K, V])
}

func newExecutor[K comparable, V any](c *container[K, V], p ThreadPolicy) executor[K, V] {
	if p == Thread && c.evictCapacity {
		// Each stripe is queued at most once while pending, so the queue
		// never fills.
		return &threaded[K, V]{queue: make(chan *stripe[K, V], len(c.stripes))}
	}
	return piggyback[K, V]{}
}

// piggyback evicts inline on the writing goroutine, before the put returns.
type piggyback[K comparable, V any] struct{}

func (piggyback[K, V]) start(context.Context, *errgroup.Group) {}

func (piggyback[K, V]) overflow(s *stripe[K, V]) { s.evictOverflowLocked() }

// threaded hands overflowing stripes to a single background worker.
type threaded[K comparable, V any] struct {
	queue chan *stripe[K, V]
}

func (t *threaded[K, V]) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-t.queue:
				s.pending.Store(false)
				s.mu.Lock()
				s.evictOverflowLocked()
				s.mu.Unlock()
			}
		}
	})
}

func (t *threaded[K, V]) overflow(s *stripe[K, V]) {
	if !s.pending.CompareAndSwap(false, true) {
		return
	}
	select {
	case t.queue <- s:
	default:
		s.pending.Store(false)
	}
}
