package container

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/guardcache/notify"
	"github.com/IvanBrykalov/guardcache/policy/lru"
)

// fakeGauge stands in for the memory monitor: tests publish a new
// "snapshot" with bump and flip the threshold with cross.
type fakeGauge struct {
	version atomic.Uint64
	crossed atomic.Bool
}

func (g *fakeGauge) IsThresholdCrossed() bool { return g.crossed.Load() }
func (g *fakeGauge) Version() uint64          { return g.version.Load() }
func (g *fakeGauge) bump()                    { g.version.Add(1) }
func (g *fakeGauge) cross(v bool)             { g.crossed.Store(v) }

type cycleMetrics struct {
	NoopMetrics
	cycles  atomic.Int64
	evicted atomic.Int64
}

func (m *cycleMetrics) GuardCycle(n int) {
	m.cycles.Add(1)
	m.evicted.Add(int64(n))
}

func newGuarded(t *testing.T, g *fakeGauge, perCycle int, opt Options[string, int]) DataContainer[string, int] {
	t.Helper()
	opt.MemoryGuard = &GuardOptions{Gauge: g, EvictionsPerCycle: perCycle}
	var (
		c   DataContainer[string, int]
		err error
	)
	if opt.MaxEntries < 0 {
		c, err = NewUnbounded(opt)
	} else {
		c, err = NewBounded(opt)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGuard_CycleBoundedByEvictionsPerCycle(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	m := &cycleMetrics{}
	c := newGuarded(t, g, 10, Options[string, int]{MaxEntries: -1, ConcurrencyLevel: 4, Metrics: m})

	for i := 0; i < 100; i++ {
		c.Put(keyOf(i), i, Metadata{})
	}
	require.Equal(t, 100, c.Len(), "no pressure, no evictions")

	g.cross(true)
	g.bump()
	c.Put("trigger", 0, Metadata{})

	assert.Equal(t, uint64(10), c.MemoryGuardEvictions())
	assert.Equal(t, 91, c.Len())
	assert.Equal(t, int64(1), m.cycles.Load())
	assert.Equal(t, int64(10), m.evicted.Load())

	// Same snapshot: no second cycle.
	c.Put("again", 0, Metadata{})
	c.Get("again")
	assert.Equal(t, uint64(10), c.MemoryGuardEvictions())
	assert.Equal(t, 92, c.Len())

	// New snapshot still above threshold: one more cycle, triggered by a read.
	g.bump()
	c.Get("again")
	assert.Equal(t, uint64(20), c.MemoryGuardEvictions())
	assert.Equal(t, 82, c.Len())
}

func TestGuard_BelowThresholdNeverEvicts(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	c := newGuarded(t, g, 10, Options[string, int]{MaxEntries: -1})

	for i := 0; i < 50; i++ {
		g.bump()
		c.Put(keyOf(i), i, Metadata{})
	}
	assert.Equal(t, uint64(0), c.MemoryGuardEvictions())
	assert.Equal(t, 50, c.Len())
}

func TestGuard_CycleStopsWhenEmpty(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	c := newGuarded(t, g, 1_000, Options[string, int]{MaxEntries: -1, ConcurrencyLevel: 8})

	for i := 0; i < 5; i++ {
		c.Put(keyOf(i), i, Metadata{})
	}
	g.cross(true)
	g.bump()
	c.Get("missing")

	assert.Equal(t, uint64(5), c.MemoryGuardEvictions())
	assert.Equal(t, 0, c.Len())
}

// Without a strategy the guard removes entries in insertion order and
// reports them with the MEMORY_GUARD cause.
func TestGuard_NoStrategyEvictsOldestWithEvents(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	c := newGuarded(t, g, 2, Options[string, int]{MaxEntries: 128, ConcurrencyLevel: 1})

	var guardLog, capLog eventLog
	_, err := c.Events().Subscribe(notify.MemoryGuard, &guardLog)
	require.NoError(t, err)
	_, err = c.Events().Subscribe(notify.Capacity, &capLog)
	require.NoError(t, err)

	c.Put("a", 1, Metadata{})
	c.Put("b", 2, Metadata{})
	c.Get("a")
	g.cross(true)
	g.bump()
	c.Put("c", 3, Metadata{})

	assert.False(t, c.ContainsKey("a"))
	assert.False(t, c.ContainsKey("b"))
	assert.True(t, c.ContainsKey("c"))

	got := guardLog.snapshot()
	require.Len(t, got, 4)
	want := []struct {
		key string
		pre bool
	}{{"a", true}, {"a", false}, {"b", true}, {"b", false}}
	for i, w := range want {
		assert.Equal(t, w.key, got[i].Key)
		assert.Equal(t, w.pre, got[i].Pre)
		assert.Equal(t, notify.MemoryGuard, got[i].Cause)
	}
	assert.Empty(t, capLog.snapshot())
}

// The guard uses the configured strategy to pick victims.
func TestGuard_UsesStrategyVictims(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	c := newGuarded(t, g, 1, Options[string, int]{
		MaxEntries:       10,
		ConcurrencyLevel: 1,
		Policy:           lru.New[string, int](),
	})

	c.Put("a", 1, Metadata{})
	c.Put("b", 2, Metadata{})
	c.Get("a") // b is now LRU
	g.cross(true)
	g.bump()
	c.Get("a")

	assert.True(t, c.ContainsKey("a"))
	assert.False(t, c.ContainsKey("b"))
}

// While one cycle holds the token, other callers return without evicting.
func TestGuard_AtMostOneConcurrentCycle(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	c := newGuarded(t, g, 1, Options[string, int]{MaxEntries: -1, ConcurrencyLevel: 8})
	impl := c.(*container[string, int])

	for i := 0; i < 100; i++ {
		c.Put(keyOf(i), i, Metadata{})
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	_, err := c.Events().Subscribe(notify.MemoryGuard, notify.ListenerFunc[string](func(e notify.Event[string]) error {
		if e.Pre && first.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
		return nil
	}))
	require.NoError(t, err)

	g.cross(true)
	g.bump()
	done := make(chan struct{})
	go func() {
		defer close(done)
		impl.checkMemoryGuard()
	}()
	<-entered

	g.bump()
	for i := 0; i < 50; i++ {
		impl.checkMemoryGuard() // token is taken: must not block or evict
	}
	close(release)
	<-done
	assert.Equal(t, uint64(1), c.MemoryGuardEvictions())

	// The version published during the blocked cycle is still pending.
	impl.checkMemoryGuard()
	assert.Equal(t, uint64(2), c.MemoryGuardEvictions())
}

// Scenario A: all eviction is memory-driven when the strategy is NONE.
func TestGuard_ScenarioNoStrategy(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	g.cross(true)
	c := newGuarded(t, g, 250, Options[string, int]{MaxEntries: 128})

	for i := 0; i < 512; i++ {
		if i%100 == 0 {
			g.bump()
		}
		c.Put(keyOf(i), i, Metadata{})
	}

	ev := c.MemoryGuardEvictions()
	assert.Positive(t, ev)
	assert.Equal(t, 512-int(ev), c.Len())
}

// Scenario B: concurrent writers, pressure published in the background.
func TestGuard_ScenarioConcurrentWriters(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	g.cross(true)
	c := newGuarded(t, g, 250, Options[string, int]{MaxEntries: -1})

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	poller := make(chan struct{})
	go func() {
		defer close(poller)
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				g.bump()
			}
		}
	}()

	const writers = 20
	var written atomic.Int64
	var eg errgroup.Group
	for w := 0; w < writers; w++ {
		eg.Go(func() error {
			for i := 0; ctx.Err() == nil; i++ {
				c.Put("w"+keyOf(w)+":"+keyOf(i), i, Metadata{})
				written.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	<-poller

	ev := c.MemoryGuardEvictions()
	assert.Positive(t, ev)
	assert.Equal(t, int(written.Load())-int(ev), c.Len())

	keys := c.Keys()
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	assert.Len(t, seen, len(keys), "duplicate keys")
	assert.Len(t, keys, c.Len())
}

// Scenario C: an unbounded container is still shrunk by the guard.
func TestGuard_ScenarioUnbounded(t *testing.T) {
	t.Parallel()

	g := &fakeGauge{}
	c := newGuarded(t, g, 100, Options[string, int]{MaxEntries: -1})

	for i := 0; i < 1_000; i++ {
		c.Put(keyOf(i), i, Metadata{})
	}
	require.Equal(t, 1_000, c.Len())

	g.cross(true)
	for i := 0; i < 3; i++ {
		g.bump()
		c.Get("probe")
	}
	assert.Equal(t, uint64(300), c.MemoryGuardEvictions())
	assert.Equal(t, 700, c.Len())
}
