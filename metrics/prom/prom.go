// Package prom exports container and memory monitor metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/guardcache/container"
)

// Adapter implements container.Metrics and exports Prometheus counters.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	evicts       *prometheus.CounterVec
	guardCycles  prometheus.Counter
	guardEvicted prometheus.Histogram
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Container hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Container misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entries removed without an explicit Remove, by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		guardCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "memory_guard_cycles_total",
			Help:        "Memory-guard eviction cycles run",
			ConstLabels: constLabels,
		}),
		guardEvicted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "memory_guard_cycle_evictions",
			Help:        "Entries removed per memory-guard cycle",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.guardCycles, a.guardEvicted)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r container.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// GuardCycle records one memory-guard cycle and how many entries it removed.
func (a *Adapter) GuardCycle(evicted int) {
	a.guardCycles.Inc()
	a.guardEvicted.Observe(float64(evicted))
}

// reason maps EvictReason to a stable label value.
func reason(r container.EvictReason) string {
	switch r {
	case container.EvictMemoryGuard:
		return "memory_guard"
	case container.EvictExpired:
		return "expired"
	default:
		return "capacity"
	}
}

// Compile-time check: ensure Adapter implements container.Metrics.
var _ container.Metrics = (*Adapter)(nil)
