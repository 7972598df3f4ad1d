package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/guardcache/internal/util"
	"github.com/IvanBrykalov/guardcache/notify"
	"github.com/IvanBrykalov/guardcache/policy"
	"github.com/IvanBrykalov/guardcache/policy/fifo"
)

// ErrClosed is returned by Close when the container was already closed.
var ErrClosed = errors.New("container: closed")

// container is a striped in-memory KV store. The bounded and unbounded
// variants share this type and differ only in stripe capacities.
type container[K comparable, V any] struct {
	name string
	id   string

	stripes []*stripe[K, V]
	hash    func(K) uint64
	pol     policy.Policy[K, V]

	bounded       bool
	maxEntries    int
	evictCapacity bool
	exec          executor[K, V]
	guard         *memoryGuard

	lifespan int64
	maxIdle  int64

	events  *notify.Dispatcher[K]
	metrics Metrics
	log     *slog.Logger
	clock   Clock

	// ---- hot counters ----
	_              util.CacheLinePad
	size           util.PaddedAtomicInt64
	guardEvictions util.PaddedAtomicUint64
	closed         util.PaddedAtomicInt64

	cancel context.CancelFunc
	bg     *errgroup.Group
}

// NewUnbounded builds a container without capacity eviction.
// Memory-guard eviction still applies when opt.MemoryGuard is set.
func NewUnbounded[K comparable, V any](opt Options[K, V]) (DataContainer[K, V], error) {
	c, err := build(opt, false)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewBounded builds a container holding at most opt.MaxEntries entries
// (plus a transient overshoot under the Thread policy). A nil opt.Policy
// keeps the bound informational: nothing is evicted for capacity.
func NewBounded[K comparable, V any](opt Options[K, V]) (DataContainer[K, V], error) {
	if opt.MaxEntries < 0 {
		return nil, fmt.Errorf("container: bounded container needs MaxEntries >= 0, got %d", opt.MaxEntries)
	}
	c, err := build(opt, true)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func build[K comparable, V any](opt Options[K, V], bounded bool) (*container[K, V], error) {
	if g := opt.MemoryGuard; g != nil {
		if g.Gauge == nil {
			return nil, errors.New("container: memory guard enabled without a gauge")
		}
		if g.EvictionsPerCycle <= 0 {
			return nil, fmt.Errorf("container: memory guard evictions per cycle must be > 0, got %d", g.EvictionsPerCycle)
		}
	}

	c := &container[K, V]{
		name:          opt.Name,
		id:            uuid.NewString(),
		hash:          opt.Hasher,
		pol:           opt.Policy,
		bounded:       bounded,
		maxEntries:    -1,
		evictCapacity: bounded && opt.Policy != nil,
		lifespan:      int64(opt.DefaultLifespan),
		maxIdle:       int64(opt.DefaultMaxIdle),
		events:        opt.Events,
		metrics:       opt.Metrics,
		log:           opt.Logger,
		clock:         opt.Clock,
	}
	if bounded {
		c.maxEntries = opt.MaxEntries
	}
	if c.name == "" {
		c.name = c.id
	}
	if c.hash == nil {
		c.hash = util.Hash64[K]
	}
	if c.pol == nil {
		// Without a strategy entries still need an order for the memory guard.
		c.pol = fifo.New[K, V]()
	}
	if c.metrics == nil {
		c.metrics = NoopMetrics{}
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.events == nil {
		c.events = notify.NewDispatcher[K](notify.WithLogger[K](c.log))
	}
	if g := opt.MemoryGuard; g != nil {
		c.guard = &memoryGuard{gauge: g.Gauge, perCycle: g.EvictionsPerCycle}
	}

	limit := 0
	if c.evictCapacity {
		limit = c.maxEntries
	}
	n := util.StripeCount(opt.ConcurrencyLevel, limit)
	c.stripes = make([]*stripe[K, V], n)
	for i := range c.stripes {
		capacity := -1
		if c.evictCapacity {
			capacity = util.SplitCapacity(c.maxEntries, n, i)
		}
		c.stripes[i] = newStripe(c, i, capacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.bg, ctx = errgroup.WithContext(ctx)

	c.exec = newExecutor(c, opt.ThreadPolicy)
	c.exec.start(ctx, c.bg)

	if opt.ReaperInterval > 0 {
		c.bg.Go(func() error {
			c.reap(ctx, opt.ReaperInterval)
			return nil
		})
	}

	c.log.Debug("data container started",
		slog.String("name", c.name),
		slog.String("id", c.id),
		slog.Bool("bounded", bounded),
		slog.Int("max_entries", c.maxEntries),
		slog.Int("stripes", n),
		slog.String("thread_policy", opt.ThreadPolicy.String()),
		slog.Bool("memory_guard", c.guard != nil))
	return c, nil
}

// ---- DataContainer[K,V] implementation ----

// Put inserts or updates k→v and then gives the memory guard a chance to run.
func (c *container[K, V]) Put(k K, v V, md Metadata) {
	if c.isClosed() {
		return
	}
	c.stripeFor(k).put(k, v, md, false)
	c.checkMemoryGuard()
}

// PutIfAbsent inserts k→v only if k is absent or expired.
func (c *container[K, V]) PutIfAbsent(k K, v V, md Metadata) bool {
	if c.isClosed() {
		return false
	}
	ok := c.stripeFor(k).put(k, v, md, true)
	c.checkMemoryGuard()
	return ok
}

// Get returns the value for k and a presence flag.
func (c *container[K, V]) Get(k K) (V, bool) {
	if c.isClosed() {
		var zero V
		return zero, false
	}
	v, ok := c.stripeFor(k).get(k)
	c.checkMemoryGuard()
	return v, ok
}

// Peek returns the value for k without recording an access.
func (c *container[K, V]) Peek(k K) (V, bool) {
	if c.isClosed() {
		var zero V
		return zero, false
	}
	return c.stripeFor(k).peek(k)
}

// ContainsKey reports whether a live entry exists for k.
func (c *container[K, V]) ContainsKey(k K) bool {
	_, ok := c.Peek(k)
	return ok
}

// Remove deletes k if present.
func (c *container[K, V]) Remove(k K) (V, bool) {
	if c.isClosed() {
		var zero V
		return zero, false
	}
	return c.stripeFor(k).remove(k)
}

// Len returns the total number of resident entries across all stripes.
func (c *container[K, V]) Len() int { return int(c.size.Load()) }

// Keys returns the live keys, stripe by stripe.
func (c *container[K, V]) Keys() []K {
	if c.isClosed() {
		return nil
	}
	keys := make([]K, 0, c.Len())
	now := c.now()
	for _, s := range c.stripes {
		keys = s.appendKeys(keys, now)
	}
	return keys
}

// Clear drops every entry.
func (c *container[K, V]) Clear() {
	if c.isClosed() {
		return
	}
	for _, s := range c.stripes {
		s.clear()
	}
}

// PurgeExpired removes expired entries from every stripe.
func (c *container[K, V]) PurgeExpired() int {
	if c.isClosed() {
		return 0
	}
	now := c.now()
	total := 0
	for _, s := range c.stripes {
		total += s.purgeExpired(now)
	}
	return total
}

// MemoryGuardEvictions returns the cumulative memory-guard removal count.
func (c *container[K, V]) MemoryGuardEvictions() uint64 { return c.guardEvictions.Load() }

// Events returns the eviction event dispatcher.
func (c *container[K, V]) Events() *notify.Dispatcher[K] { return c.events }

// Name returns the configured name (the ID when none was given).
func (c *container[K, V]) Name() string { return c.name }

// ID returns the instance ID generated at construction.
func (c *container[K, V]) ID() string { return c.id }

// Close stops background workers and marks the container closed.
// Pending Thread-policy evictions that have not run yet are dropped.
func (c *container[K, V]) Close() error {
	if !c.closed.CompareAndSwap(0, 1) {
		return ErrClosed
	}
	c.cancel()
	return c.bg.Wait()
}

// ---- helpers ----

func (c *container[K, V]) isClosed() bool { return c.closed.Load() != 0 }

// stripeFor picks a stripe by hashing the key.
func (c *container[K, V]) stripeFor(k K) *stripe[K, V] {
	return c.stripes[util.StripeIndex(c.hash(k), len(c.stripes))]
}

func (c *container[K, V]) now() int64 {
	if c.clock != nil {
		return c.clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// expiry resolves per-entry metadata against the container defaults.
func (c *container[K, V]) expiry(md Metadata) (lifespan, maxIdle int64) {
	lifespan, maxIdle = int64(md.Lifespan), int64(md.MaxIdle)
	if lifespan == 0 {
		lifespan = c.lifespan
	}
	if maxIdle == 0 {
		maxIdle = c.maxIdle
	}
	if lifespan < 0 {
		lifespan = 0
	}
	if maxIdle < 0 {
		maxIdle = 0
	}
	return lifespan, maxIdle
}

func (c *container[K, V]) reap(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.PurgeExpired(); n > 0 {
				c.log.Debug("purged expired entries", slog.String("name", c.name), slog.Int("count", n))
			}
		}
	}
}
