package container

import (
	"log/slog"
	"sync/atomic"

	"github.com/IvanBrykalov/guardcache/notify"
)

// memoryGuard holds the container-wide state of memory-pressure eviction.
type memoryGuard struct {
	gauge    PressureGauge
	perCycle int

	// running is the cycle token: taken with CAS, never waited for.
	running atomic.Bool
	// lastVersion is the gauge version the latest cycle ran for.
	lastVersion atomic.Uint64
	// cursor rotates the first stripe visited; only touched by the token holder.
	cursor int
}

// checkMemoryGuard runs at most one guard cycle per published gauge
// version while the threshold is crossed. It must be called without any
// stripe lock held. Callers that lose the token race return immediately.
func (c *container[K, V]) checkMemoryGuard() {
	g := c.guard
	if g == nil {
		return
	}
	v := g.gauge.Version()
	if v == g.lastVersion.Load() || !g.gauge.IsThresholdCrossed() {
		return
	}
	if !g.running.CompareAndSwap(false, true) {
		return
	}
	defer g.running.Store(false)

	if g.lastVersion.Load() == v {
		return
	}
	g.lastVersion.Store(v)

	n := c.runGuardCycle()
	c.metrics.GuardCycle(n)
	c.log.Debug("memory guard cycle",
		slog.String("name", c.name),
		slog.Uint64("version", v),
		slog.Int("evicted", n),
		slog.Int("size", c.Len()))
}

// runGuardCycle removes up to perCycle victims, spreading the budget over
// the stripes round-robin. It stops early once a full pass finds nothing
// to evict.
func (c *container[K, V]) runGuardCycle() int {
	g := c.guard
	n := len(c.stripes)
	start := g.cursor
	g.cursor = (start + 1) % n

	remaining := g.perCycle
	for remaining > 0 {
		share := remaining / n
		if share < 1 {
			share = 1
		}
		progress := false
		for i := 0; i < n && remaining > 0; i++ {
			s := c.stripes[(start+i)%n]
			got := s.evictVictims(min(share, remaining), notify.MemoryGuard)
			if got > 0 {
				remaining -= got
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return g.perCycle - remaining
}
