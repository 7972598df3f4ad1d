// Package fifo implements insertion-order eviction.
package fifo

import "github.com/IvanBrykalov/guardcache/policy"

type fifo[K comparable, V any] struct {
	h policy.Hooks[K, V]
}

type fifoPolicy[K comparable, V any] struct{}

// New returns a Policy that evicts the oldest inserted entry regardless of
// access. Updates do not change an entry's position.
func New[K comparable, V any]() policy.Policy[K, V] { return fifoPolicy[K, V]{} }

func (fifoPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	return &fifo[K, V]{h: h}
}

func (p *fifo[K, V]) OnAdd(n policy.Node[K, V]) { p.h.PushFront(n) }

func (p *fifo[K, V]) OnGet(policy.Node[K, V]) {}

func (p *fifo[K, V]) OnUpdate(policy.Node[K, V]) {}

func (p *fifo[K, V]) OnRemove(policy.Node[K, V]) {}

// Victim is the oldest inserted entry.
func (p *fifo[K, V]) Victim() policy.Node[K, V] { return p.h.Back() }
