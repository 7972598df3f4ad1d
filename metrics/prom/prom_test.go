package prom

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/guardcache/container"
	"github.com/IvanBrykalov/guardcache/monitor"
	"github.com/IvanBrykalov/guardcache/policy/lru"
)

func TestAdapter_CountsContainerActivity(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "guard", "test", nil)

	c, err := container.NewBounded(container.Options[string, int]{
		MaxEntries:       1,
		ConcurrencyLevel: 1,
		Policy:           lru.New[string, int](),
		Metrics:          a,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	c.Put("a", 1, container.Metadata{})
	c.Get("a")
	c.Get("missing")
	c.Put("b", 2, container.Metadata{}) // evicts a

	assert.Equal(t, 1.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("capacity")))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.evicts.WithLabelValues("memory_guard")))
}

func TestAdapter_GuardCycle(t *testing.T) {
	t.Parallel()

	a := New(prometheus.NewRegistry(), "guard", "test", nil)
	a.GuardCycle(3)
	a.GuardCycle(0)
	a.Evict(container.EvictMemoryGuard)
	a.Evict(container.EvictExpired)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.guardCycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("memory_guard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("expired")))
	assert.Equal(t, 1, testutil.CollectAndCount(a.guardEvicted))
}

type sized struct{}

func (sized) Name() string                 { return "orders" }
func (sized) Len() int                     { return 42 }
func (sized) MemoryGuardEvictions() uint64 { return 7 }

func TestContainerCollector(t *testing.T) {
	t.Parallel()

	cc := NewContainerCollector(sized{}, "guard", "")
	expected := `
# HELP guard_memory_guard_evictions_total Entries removed by memory-guard cycles
# TYPE guard_memory_guard_evictions_total counter
guard_memory_guard_evictions_total{container="orders"} 7
# HELP guard_size_entries Number of resident entries
# TYPE guard_size_entries gauge
guard_size_entries{container="orders"} 42
`
	require.NoError(t, testutil.CollectAndCompare(cc, strings.NewReader(expected)))
}

func TestMonitorCollector(t *testing.T) {
	t.Parallel()

	m, err := monitor.New(75, time.Hour)
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	mc := NewMonitorCollector(m, "guard")
	assert.Equal(t, 6, testutil.CollectAndCount(mc))

	expected := `
# HELP guard_memory_monitor_threshold_percentage Percentage above which memory-guard cycles run
# TYPE guard_memory_monitor_threshold_percentage gauge
guard_memory_monitor_threshold_percentage 75
`
	require.NoError(t, testutil.CollectAndCompare(mc, strings.NewReader(expected),
		"guard_memory_monitor_threshold_percentage"))
}
