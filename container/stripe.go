package container

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/guardcache/notify"
	"github.com/IvanBrykalov/guardcache/policy"
)

// stripe is an independent partition of the container with its own lock,
// map, and an intrusive doubly linked list ordered by the policy.
type stripe[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	m    map[K]*node[K, V]
	head *node[K, V]
	tail *node[K, V]
	len  int // resident entries
	cap  int // per-stripe capacity, -1 = no capacity eviction

	pol policy.ShardPolicy[K, V]
	c   *container[K, V]
	idx int

	// pending is set while the stripe sits in the Thread executor queue.
	pending atomic.Bool
}

func newStripe[K comparable, V any](c *container[K, V], idx, capacity int) *stripe[K, V] {
	hint := capacity
	if hint < 0 {
		hint = 0
	}
	s := &stripe[K, V]{
		m:   make(map[K]*node[K, V], hint),
		cap: capacity,
		c:   c,
		idx: idx,
	}
	s.pol = c.pol.New(stripeHooks[K, V]{s: s})
	return s
}

// put inserts or updates k. With ifAbsent a live entry is left untouched
// and false is returned.
func (s *stripe[K, V]) put(k K, v V, md Metadata, ifAbsent bool) bool {
	lifespan, maxIdle := s.c.expiry(md)
	now := s.c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[k]; ok {
		if !n.expired(now) {
			if ifAbsent {
				return false
			}
			n.val = v
			n.created, n.lastUsed = now, now
			n.lifespan, n.maxIdle = lifespan, maxIdle
			s.pol.OnUpdate(n)
			return true
		}
		s.expireLocked(n)
	}

	n := &node[K, V]{
		key:      k,
		val:      v,
		created:  now,
		lastUsed: now,
		lifespan: lifespan,
		maxIdle:  maxIdle,
	}
	s.m[k] = n
	s.pol.OnAdd(n)

	if s.cap >= 0 && s.len > s.cap {
		s.c.exec.overflow(s)
	}
	return true
}

// get returns the value and records the use with the policy.
// An expired entry is removed and reported as a miss.
func (s *stripe[K, V]) get(k K) (V, bool) {
	now := s.c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if ok && n.expired(now) {
		s.expireLocked(n)
		ok = false
	}
	if !ok {
		s.c.metrics.Miss()
		var zero V
		return zero, false
	}
	n.lastUsed = now
	s.pol.OnGet(n)
	s.c.metrics.Hit()
	return n.val, true
}

func (s *stripe[K, V]) peek(k K) (V, bool) {
	now := s.c.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.m[k]
	if !ok || n.expired(now) {
		var zero V
		return zero, false
	}
	return n.val, true
}

// remove deletes k. An entry that already expired is dropped but reported
// as absent.
func (s *stripe[K, V]) remove(k K) (V, bool) {
	now := s.c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		var zero V
		return zero, false
	}
	if n.expired(now) {
		s.expireLocked(n)
		var zero V
		return zero, false
	}
	s.pol.OnRemove(n)
	s.unlink(n)
	delete(s.m, k)
	return n.val, true
}

func (s *stripe[K, V]) appendKeys(dst []K, now int64) []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for n := s.head; n != nil; n = n.next {
		if !n.expired(now) {
			dst = append(dst, n.key)
		}
	}
	return dst
}

// clear drops all entries and starts the policy from scratch.
func (s *stripe[K, V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.size.Add(-int64(s.len))
	s.m = make(map[K]*node[K, V])
	s.head, s.tail = nil, nil
	s.len = 0
	s.pol = s.c.pol.New(stripeHooks[K, V]{s: s})
}

func (s *stripe[K, V]) purgeExpired(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for n := s.tail; n != nil; {
		prev := n.prev
		if n.expired(now) {
			s.expireLocked(n)
			purged++
		}
		n = prev
	}
	return purged
}

// evictVictims removes up to limit policy victims and returns how many
// were removed.
func (s *stripe[K, V]) evictVictims(limit int, cause notify.Cause) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for evicted < limit {
		v := s.pol.Victim()
		if v == nil {
			break
		}
		s.evictLocked(v.(*node[K, V]), cause)
		evicted++
	}
	return evicted
}

// -------------------- internals (mu held) --------------------

// evictOverflowLocked brings the stripe back within its capacity.
func (s *stripe[K, V]) evictOverflowLocked() {
	for s.cap >= 0 && s.len > s.cap {
		v := s.pol.Victim()
		if v == nil {
			return
		}
		s.evictLocked(v.(*node[K, V]), notify.Capacity)
	}
}

// evictLocked runs the PRE → unlink → POST sequence for one entry. Both
// halves go to the listeners captured before PRE so a listener subscribed
// mid-removal never sees an unpaired POST.
func (s *stripe[K, V]) evictLocked(n *node[K, V], cause notify.Cause) {
	dl := s.c.events.Deliver(cause)
	ev := notify.Event[K]{Key: n.key, Cache: s.c, Pre: true, Cause: cause}
	dl.Send(ev)

	s.pol.OnRemove(n)
	s.unlink(n)
	delete(s.m, n.key)

	if cause == notify.MemoryGuard {
		s.c.guardEvictions.Add(1)
		s.c.metrics.Evict(EvictMemoryGuard)
	} else {
		s.c.metrics.Evict(EvictCapacity)
	}

	ev.Pre = false
	dl.Send(ev)
}

// expireLocked removes an expired entry. Expiry is not an eviction, so no
// events are emitted.
func (s *stripe[K, V]) expireLocked(n *node[K, V]) {
	s.pol.OnRemove(n)
	s.unlink(n)
	delete(s.m, n.key)
	s.c.metrics.Evict(EvictExpired)
}

// insertFront links n at the head in O(1).
func (s *stripe[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.c.size.Add(1)
}

// moveToFront promotes n to the head in O(1).
func (s *stripe[K, V]) moveToFront(n *node[K, V]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// unlink detaches n from the list and updates counters in O(1).
func (s *stripe[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.c.size.Add(-1)
}

// -------------------- policy hooks --------------------

// stripeHooks adapts the stripe's list operations to policy.Hooks.
type stripeHooks[K comparable, V any] struct{ s *stripe[K, V] }

func (h stripeHooks[K, V]) MoveToFront(x policy.Node[K, V]) { h.s.moveToFront(x.(*node[K, V])) }

func (h stripeHooks[K, V]) PushFront(x policy.Node[K, V]) { h.s.insertFront(x.(*node[K, V])) }

// Remove only unlinks; the stripe owns the map.
func (h stripeHooks[K, V]) Remove(x policy.Node[K, V]) { h.s.unlink(x.(*node[K, V])) }

func (h stripeHooks[K, V]) Back() policy.Node[K, V] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}

func (h stripeHooks[K, V]) Len() int { return h.s.len }

func (h stripeHooks[K, V]) Cap() int { return h.s.cap }
