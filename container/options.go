package container

import (
	"log/slog"
	"time"

	"github.com/IvanBrykalov/guardcache/notify"
	"github.com/IvanBrykalov/guardcache/policy"
)

// EvictReason explains why an entry was removed without an explicit Remove.
type EvictReason int

const (
	// EvictCapacity: chosen by the policy to keep a stripe within capacity.
	EvictCapacity EvictReason = iota
	// EvictMemoryGuard: removed by a memory-guard cycle.
	EvictMemoryGuard
	// EvictExpired: lifespan or max-idle elapsed (no eviction events).
	EvictExpired
)

// Metrics exposes container-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	GuardCycle(evicted int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// ThreadPolicy selects where capacity eviction runs.
type ThreadPolicy int

const (
	// Piggyback evicts inline on the goroutine performing the put.
	Piggyback ThreadPolicy = iota
	// Thread defers eviction to a background worker; a stripe may briefly
	// exceed its capacity.
	Thread
)

func (p ThreadPolicy) String() string {
	if p == Thread {
		return "THREAD"
	}
	return "PIGGYBACK"
}

// PressureGauge is the memory-pressure signal a container polls.
// *monitor.Monitor implements it.
type PressureGauge interface {
	IsThresholdCrossed() bool
	Version() uint64
}

// GuardOptions enables memory-guard eviction.
type GuardOptions struct {
	Gauge PressureGauge
	// EvictionsPerCycle bounds the removals of one cycle (must be > 0).
	EvictionsPerCycle int
}

// Options configures a container. Zero values are safe; defaults applied
// by the constructors:
//   - nil Policy         => no capacity eviction, insertion-order victims
//     for the memory guard
//   - ConcurrencyLevel<=0 => auto (rounded up to power of two)
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => discard
type Options[K comparable, V any] struct {
	// Name labels the container in events and logs.
	Name string

	// MaxEntries is the capacity of a bounded container. Ignored by
	// NewUnbounded and when Policy is nil.
	MaxEntries int

	// ConcurrencyLevel is the number of lock stripes (rounded up to a power
	// of two). Use 1 for a single global lock.
	ConcurrencyLevel int

	// Policy selects capacity-eviction victims; nil disables capacity eviction.
	Policy policy.Policy[K, V]

	// ThreadPolicy selects inline or background capacity eviction.
	ThreadPolicy ThreadPolicy

	// MemoryGuard enables memory-pressure eviction when non-nil.
	MemoryGuard *GuardOptions

	// Expiry defaults for entries whose Metadata leaves them zero.
	DefaultLifespan time.Duration
	DefaultMaxIdle  time.Duration

	// ReaperInterval > 0 runs PurgeExpired periodically in the background.
	ReaperInterval time.Duration

	// Hasher overrides the default key hash used for stripe selection.
	Hasher func(K) uint64

	// Events receives eviction events; nil creates a private dispatcher.
	Events *notify.Dispatcher[K]

	Metrics Metrics
	Logger  *slog.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
