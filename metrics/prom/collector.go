package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/guardcache/monitor"
)

// Sized is the read side of a container the collector samples on scrape.
// container.DataContainer satisfies it.
type Sized interface {
	Name() string
	Len() int
	MemoryGuardEvictions() uint64
}

// ContainerCollector reports container size and the cumulative
// memory-guard eviction count at scrape time.
type ContainerCollector struct {
	c           Sized
	size        *prometheus.Desc
	guardEvicts *prometheus.Desc
}

// NewContainerCollector builds a collector for c. Register it with the
// registry used by /metrics.
func NewContainerCollector(c Sized, ns, sub string) *ContainerCollector {
	labels := prometheus.Labels{"container": c.Name()}
	return &ContainerCollector{
		c: c,
		size: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "size_entries"),
			"Number of resident entries", nil, labels),
		guardEvicts: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "memory_guard_evictions_total"),
			"Entries removed by memory-guard cycles", nil, labels),
	}
}

func (cc *ContainerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cc.size
	ch <- cc.guardEvicts
}

func (cc *ContainerCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(cc.size, prometheus.GaugeValue, float64(cc.c.Len()))
	ch <- prometheus.MustNewConstMetric(cc.guardEvicts, prometheus.CounterValue, float64(cc.c.MemoryGuardEvictions()))
}

// MonitorCollector reports the last published memory monitor snapshot.
type MonitorCollector struct {
	m         *monitor.Monitor
	used      *prometheus.Desc
	committed *prometheus.Desc
	percent   *prometheus.Desc
	threshold *prometheus.Desc
	version   *prometheus.Desc
	failures  *prometheus.Desc
}

// NewMonitorCollector builds a collector for m.
func NewMonitorCollector(m *monitor.Monitor, ns string) *MonitorCollector {
	d := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(ns, "memory_monitor", name), help, nil, nil)
	}
	return &MonitorCollector{
		m:         m,
		used:      d("used_bytes", "Used memory at the last successful sample"),
		committed: d("committed_bytes", "Committed memory at the last successful sample"),
		percent:   d("used_percentage", "Used memory as a percentage of committed memory"),
		threshold: d("threshold_percentage", "Percentage above which memory-guard cycles run"),
		version:   d("samples_total", "Successful samples (snapshot version)"),
		failures:  d("failed_samples_total", "Samples dropped because the memory source failed"),
	}
}

func (mc *MonitorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.used
	ch <- mc.committed
	ch <- mc.percent
	ch <- mc.threshold
	ch <- mc.version
	ch <- mc.failures
}

func (mc *MonitorCollector) Collect(ch chan<- prometheus.Metric) {
	s := mc.m.Snapshot()
	ch <- prometheus.MustNewConstMetric(mc.used, prometheus.GaugeValue, float64(s.UsedBytes))
	ch <- prometheus.MustNewConstMetric(mc.committed, prometheus.GaugeValue, float64(s.CommittedBytes))
	ch <- prometheus.MustNewConstMetric(mc.percent, prometheus.GaugeValue, s.UsedPercentage)
	ch <- prometheus.MustNewConstMetric(mc.threshold, prometheus.GaugeValue, mc.m.Threshold())
	ch <- prometheus.MustNewConstMetric(mc.version, prometheus.CounterValue, float64(s.Version))
	ch <- prometheus.MustNewConstMetric(mc.failures, prometheus.CounterValue, float64(mc.m.Failures()))
}
