package container

import (
	"time"

	"github.com/IvanBrykalov/guardcache/notify"
)

// Metadata carries per-entry expiry settings.
// Zero means "use the container default"; a negative value means "never".
type Metadata struct {
	Lifespan time.Duration
	MaxIdle  time.Duration
}

// DataContainer is a striped, in-memory key/value store used as the storage
// layer of a cache. All methods are safe for concurrent use.
//
// Lookup and mutation are amortized O(1): a map access plus constant-time
// list adjustments under a stripe lock.
type DataContainer[K comparable, V any] interface {
	// Put inserts or updates k→v. On a bounded container an insertion that
	// overflows the written stripe triggers capacity eviction in that stripe.
	Put(k K, v V, md Metadata)

	// PutIfAbsent inserts k→v only if k is absent (or expired).
	PutIfAbsent(k K, v V, md Metadata) bool

	// Get returns the value for k and records the access with the policy.
	// Expired entries are removed and reported as a miss.
	Get(k K) (V, bool)

	// Peek returns the value for k without touching recency or idle time.
	Peek(k K) (V, bool)

	// ContainsKey reports whether a live entry exists for k.
	ContainsKey(k K) bool

	// Remove deletes k and returns the removed value.
	// Explicit removal never emits eviction events.
	Remove(k K) (V, bool)

	// Len returns the number of resident entries, expired ones included
	// until they are touched or purged.
	Len() int

	// Keys returns a snapshot of the live keys.
	Keys() []K

	// Clear drops every entry without eviction events.
	Clear()

	// PurgeExpired removes every expired entry and returns how many.
	PurgeExpired() int

	// MemoryGuardEvictions is the cumulative number of entries removed by
	// memory-guard cycles.
	MemoryGuardEvictions() uint64

	// Events returns the dispatcher eviction observers subscribe to.
	// Listeners run under the stripe lock and must not call back into the
	// container.
	Events() *notify.Dispatcher[K]

	// Name and ID identify the container in events and metrics.
	Name() string
	ID() string

	// Close stops background workers (THREAD eviction, expiry reaper).
	// Data operations after Close are ignored: reads miss, writes and
	// Clear do nothing, Keys is nil and PurgeExpired returns 0. Len,
	// MemoryGuardEvictions, Events, Name and ID stay readable.
	Close() error
}
