// Package lfu implements Least-Frequently-Used eviction with O(1)
// admission, promotion and victim selection.
package lfu

import (
	"container/list"

	"github.com/IvanBrykalov/guardcache/policy"
)

// bucket groups nodes with the same use count. Within a bucket, nodes are
// kept oldest-at-back so ties are broken by age.
type bucket[K comparable, V any] struct {
	freq  uint64
	nodes *list.List // element.Value is policy.Node[K,V]
}

type entry struct {
	bucket *list.Element // element in lfu.buckets
	elem   *list.Element // element in bucket.nodes
}

// lfu keeps buckets in ascending frequency order: the front bucket always
// holds the least frequently used nodes.
type lfu[K comparable, V any] struct {
	h       policy.Hooks[K, V]
	buckets *list.List // element.Value is *bucket[K,V]
	idx     map[policy.Node[K, V]]*entry
}

type lfuPolicy[K comparable, V any] struct{}

// New returns a Policy factory that constructs per-stripe LFU instances.
func New[K comparable, V any]() policy.Policy[K, V] { return lfuPolicy[K, V]{} }

func (lfuPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	return &lfu[K, V]{
		h:       h,
		buckets: list.New(),
		idx:     make(map[policy.Node[K, V]]*entry),
	}
}

// OnAdd admits n with a use count of 1.
func (p *lfu[K, V]) OnAdd(n policy.Node[K, V]) {
	p.h.PushFront(n)

	front := p.buckets.Front()
	if front == nil || front.Value.(*bucket[K, V]).freq != 1 {
		front = p.buckets.PushFront(&bucket[K, V]{freq: 1, nodes: list.New()})
	}
	b := front.Value.(*bucket[K, V])
	p.idx[n] = &entry{bucket: front, elem: b.nodes.PushFront(n)}
}

// OnGet bumps n's use count by one.
func (p *lfu[K, V]) OnGet(n policy.Node[K, V]) {
	e, ok := p.idx[n]
	if !ok {
		return
	}
	cur := e.bucket.Value.(*bucket[K, V])

	nextEl := e.bucket.Next()
	if nextEl == nil || nextEl.Value.(*bucket[K, V]).freq != cur.freq+1 {
		nextEl = p.buckets.InsertAfter(&bucket[K, V]{freq: cur.freq + 1, nodes: list.New()}, e.bucket)
	}
	next := nextEl.Value.(*bucket[K, V])

	cur.nodes.Remove(e.elem)
	if cur.nodes.Len() == 0 {
		p.buckets.Remove(e.bucket)
	}
	e.bucket = nextEl
	e.elem = next.nodes.PushFront(n)
	p.h.MoveToFront(n)
}

// OnUpdate counts as a use.
func (p *lfu[K, V]) OnUpdate(n policy.Node[K, V]) { p.OnGet(n) }

// OnRemove forgets n.
func (p *lfu[K, V]) OnRemove(n policy.Node[K, V]) {
	e, ok := p.idx[n]
	if !ok {
		return
	}
	b := e.bucket.Value.(*bucket[K, V])
	b.nodes.Remove(e.elem)
	if b.nodes.Len() == 0 {
		p.buckets.Remove(e.bucket)
	}
	delete(p.idx, n)
}

// Victim is the oldest node among those with the lowest use count.
func (p *lfu[K, V]) Victim() policy.Node[K, V] {
	front := p.buckets.Front()
	if front == nil {
		return nil
	}
	back := front.Value.(*bucket[K, V]).nodes.Back()
	if back == nil {
		return nil
	}
	return back.Value.(policy.Node[K, V])
}
