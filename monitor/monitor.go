// Package monitor samples memory usage in the background and publishes a
// versioned snapshot that containers read without locking to decide
// whether a memory-guard eviction cycle is due.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is one published sample. Version increases by exactly one per
// successful poll; the zero Snapshot (Version 0) means "not sampled yet".
type Snapshot struct {
	UsedBytes      uint64
	CommittedBytes uint64
	UsedPercentage float64
	Version        uint64
	Taken          time.Time
}

// Monitor polls a Source every PollInterval on a single goroutine.
// Accessors are lock-free reads of the last published Snapshot.
// Calling any accessor after Stop is a caller error.
type Monitor struct {
	threshold float64
	interval  time.Duration
	src       Source
	kind      SourceKind
	log       *slog.Logger

	snap     atomic.Pointer[Snapshot]
	failures atomic.Uint64
	lastErr  atomic.Pointer[error]

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithSource replaces the default RuntimeSource.
func WithSource(s Source) Option {
	return func(m *Monitor) {
		if s != nil {
			m.src, m.kind = s, SourceCustom
		}
	}
}

// WithSourceKind selects a built-in Source. It is only built when New
// actually starts a monitor.
func WithSourceKind(k SourceKind) Option {
	return func(m *Monitor) {
		m.src, m.kind = nil, k
	}
}

// WithLogger sets the logger used for per-sample diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// New starts a monitor. threshold is a percentage of committed memory in
// [0, 100]; the first sample is taken one pollInterval after New returns.
func New(threshold float64, pollInterval time.Duration, opts ...Option) (*Monitor, error) {
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("monitor: threshold %.2f out of range [0,100]", threshold)
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("monitor: poll interval must be > 0, got %v", pollInterval)
	}

	m := &Monitor{
		threshold: threshold,
		interval:  pollInterval,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.src == nil {
		src, err := NewSource(m.kind)
		if err != nil {
			return nil, err
		}
		m.src = src
		if m.kind == "" {
			m.kind = SourceRuntime
		}
	}
	m.snap.Store(&Snapshot{})

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
	return m, nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.poll(ctx)
		}
	}
}

// poll takes one sample. A failed read is dropped: the previous snapshot
// and version stay published and the error is kept for diagnostics.
func (m *Monitor) poll(ctx context.Context) {
	u, err := m.src.Read(ctx)
	if err == nil && u.Committed == 0 {
		err = errors.New("monitor: committed memory reported as zero")
	}
	if err != nil {
		m.failures.Add(1)
		m.lastErr.Store(&err)
		m.log.Warn("memory sample dropped", slog.Any("error", err))
		return
	}

	prev := m.snap.Load()
	next := &Snapshot{
		UsedBytes:      u.Used,
		CommittedBytes: u.Committed,
		UsedPercentage: float64(u.Used) / float64(u.Committed) * 100.0,
		Version:        prev.Version + 1,
		Taken:          time.Now(),
	}
	m.snap.Store(next)

	m.log.Debug("memory sample",
		slog.Uint64("used", next.UsedBytes),
		slog.Uint64("committed", next.CommittedBytes),
		slog.Float64("used_pct", next.UsedPercentage),
		slog.Uint64("version", next.Version))
}

// Snapshot returns the last published sample.
func (m *Monitor) Snapshot() Snapshot { return *m.snap.Load() }

// IsThresholdCrossed reports whether the last sample's used percentage is
// strictly above the threshold. It never blocks; staleness is bounded by
// one poll interval.
func (m *Monitor) IsThresholdCrossed() bool {
	return m.snap.Load().UsedPercentage > m.threshold
}

// UsedBytes returns the used bytes of the last sample.
func (m *Monitor) UsedBytes() uint64 { return m.snap.Load().UsedBytes }

// UsedPercentage returns used/committed*100 of the last sample.
func (m *Monitor) UsedPercentage() float64 { return m.snap.Load().UsedPercentage }

// Version returns the number of successful polls so far.
func (m *Monitor) Version() uint64 { return m.snap.Load().Version }

// Threshold returns the configured threshold percentage.
func (m *Monitor) Threshold() float64 { return m.threshold }

// SourceKind reports which Source the monitor samples.
func (m *Monitor) SourceKind() SourceKind { return m.kind }

// PollInterval returns the configured poll interval.
func (m *Monitor) PollInterval() time.Duration { return m.interval }

// Failures returns the number of dropped samples.
func (m *Monitor) Failures() uint64 { return m.failures.Load() }

// LastError returns the error of the most recent dropped sample, if any.
func (m *Monitor) LastError() error {
	if p := m.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Stop cancels polling, waits for the poll goroutine to exit and closes
// the Source. It is terminal.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		<-m.done
		if err := m.src.Close(); err != nil {
			m.log.Warn("memory source close failed", slog.Any("error", err))
		}
	})
}
