// Package container provides the storage layer of a cache: a generic,
// lock-striped in-memory key/value store with pluggable capacity eviction,
// per-entry expiry and memory-pressure ("memory guard") eviction.
//
// Design
//
//   - Concurrency: entries are spread over stripes, each protected by an
//     RWMutex. The stripe count is a power of two derived from
//     Options.ConcurrencyLevel (1 means a single global lock). A bounded
//     container splits MaxEntries exactly across its stripes.
//
//   - Storage: each stripe keeps a map[K]*node for lookups and an intrusive
//     doubly linked list that the policy orders. All operations are O(1)
//     expected.
//
//   - Capacity eviction: the policy package supplies the strategy (FIFO,
//     LRU, LFU, 2Q). A nil Policy disables capacity eviction. Eviction is
//     local to the stripe that overflowed and runs either inline on the
//     writer (Piggyback) or on a background worker (Thread), in which case
//     a stripe may briefly exceed its capacity.
//
//   - Memory guard: with Options.MemoryGuard set, Put, PutIfAbsent and Get
//     check the pressure gauge after releasing the stripe lock. A cycle
//     runs at most once per published gauge version while the threshold is
//     crossed, removes at most EvictionsPerCycle victims spread over the
//     stripes, and is guarded by a container-wide token that losers never
//     wait for.
//
//   - Events: every eviction fires a PRE event, unlinks the entry and fires
//     a POST event, all under the stripe lock, through the notify
//     dispatcher returned by Events. Expiry and explicit Remove are silent.
//
//   - Expiry: Metadata.Lifespan and Metadata.MaxIdle are enforced lazily on
//     access and by PurgeExpired, optionally driven by a background reaper.
//
// Basic usage
//
//	c, _ := container.NewBounded(container.Options[string, []byte]{
//	    MaxEntries: 10_000,
//	    Policy:     lru.New[string, []byte](),
//	})
//	c.Put("a", []byte("1"), container.Metadata{})
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//
// With the memory guard
//
//	mon, _ := monitor.GetOrCreate(80, 200*time.Millisecond)
//	c, _ := container.NewUnbounded(container.Options[string, []byte]{
//	    MemoryGuard: &container.GuardOptions{Gauge: mon, EvictionsPerCycle: 250},
//	})
//	c.Events().Subscribe(notify.MemoryGuard, notify.ListenerFunc[string](
//	    func(e notify.Event[string]) error {
//	        log.Println(e.Key, e.Pre)
//	        return nil
//	    }))
//
// Most callers build containers through the factory package from a
// config.Configuration rather than filling Options by hand.
package container
