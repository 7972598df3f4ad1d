// Package twoq implements the scan-resistant 2Q eviction policy.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/guardcache/policy"
)

// Queue sizes used when the stripe is unbounded and no explicit size was given.
const (
	defaultCapIn    = 256
	defaultCapGhost = 512
)

// twoQ implements the 2Q eviction policy.
//
// Resident queues:
//   - A1in (younger queue): admits first-time entries.
//   - Am   (mature queue):  entries that were hit while in A1in, or re-admitted
//     from ghosts.
//
// Ghost A1out: keys only (no values), tracks recently removed A1in keys to give
// them a second chance (bypass A1in on re-admission).
//
// Concurrency: all methods are called under the stripe lock.
type twoQ[K comparable, V any] struct {
	h policy.Hooks[K, V]

	capIn    int // A1in capacity (per-stripe)
	capGhost int // A1out (ghost) capacity (per-stripe)

	// A1in: MRU at Front() -> LRU at Back()
	inList *list.List
	inIdx  map[policy.Node[K, V]]*list.Element

	// Am: MRU at Front() -> LRU at Back()
	amList *list.List
	amIdx  map[policy.Node[K, V]]*list.Element

	// A1out (ghosts): keys only, MRU at Front() -> LRU at Back()
	ghostList *list.List
	ghostIdx  map[K]*list.Element
}

// New constructs a 2Q policy factory.
// Common choices: capIn ≈ 25% of stripe capacity; capGhost ≈ 50–100%.
// A non-positive size is derived from the stripe capacity (25% / 50%).
func New[K comparable, V any](capIn, capGhost int) policy.Policy[K, V] {
	return twoQPolicy[K, V]{capIn: capIn, capGhost: capGhost}
}

type twoQPolicy[K comparable, V any] struct {
	capIn    int
	capGhost int
}

func (p twoQPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	capIn, capGhost := p.capIn, p.capGhost
	if c := h.Cap(); c >= 0 {
		if capIn <= 0 {
			capIn = c / 4
		}
		if capGhost <= 0 {
			capGhost = c / 2
		}
	} else {
		if capIn <= 0 {
			capIn = defaultCapIn
		}
		if capGhost <= 0 {
			capGhost = defaultCapGhost
		}
	}
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return &twoQ[K, V]{
		h:         h,
		capIn:     capIn,
		capGhost:  capGhost,
		inList:    list.New(),
		inIdx:     make(map[policy.Node[K, V]]*list.Element),
		amList:    list.New(),
		amIdx:     make(map[policy.Node[K, V]]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
	}
}

// OnAdd admission rules:
//   - If the key is a ghost (A1out), bypass A1in and admit directly to Am.
//   - Otherwise admit into A1in.
func (q *twoQ[K, V]) OnAdd(n policy.Node[K, V]) {
	q.h.PushFront(n)

	k := n.Key()
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		q.amIdx[n] = q.amList.PushFront(n)
		return
	}
	q.inIdx[n] = q.inList.PushFront(n)
}

// OnGet promotes an A1in node to Am, or refreshes an Am node.
func (q *twoQ[K, V]) OnGet(n policy.Node[K, V]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
		q.amIdx[n] = q.amList.PushFront(n)
	} else if el, ok := q.amIdx[n]; ok {
		q.amList.MoveToFront(el)
	}
	q.h.MoveToFront(n)
}

// OnUpdate follows OnGet semantics (updates count as recent use).
func (q *twoQ[K, V]) OnUpdate(n policy.Node[K, V]) { q.OnGet(n) }

// OnRemove:
//   - A1in nodes leave a ghost key behind, respecting capGhost.
//   - Am nodes are simply forgotten.
func (q *twoQ[K, V]) OnRemove(n policy.Node[K, V]) {
	if el, ok := q.amIdx[n]; ok {
		q.amList.Remove(el)
		delete(q.amIdx, n)
		return
	}
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old := q.ghostIdx[k]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(K))
		q.ghostList.Remove(tail)
	}
}

// Victim prefers the LRU of A1in while A1in is over its share (or Am is
// empty); otherwise the LRU of Am.
func (q *twoQ[K, V]) Victim() policy.Node[K, V] {
	if q.inList.Len() > q.capIn || q.amList.Len() == 0 {
		if el := q.inList.Back(); el != nil {
			return el.Value.(policy.Node[K, V])
		}
	}
	if el := q.amList.Back(); el != nil {
		return el.Value.(policy.Node[K, V])
	}
	return nil
}
