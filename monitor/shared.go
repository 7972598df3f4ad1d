package monitor

import (
	"log/slog"
	"sync"
	"time"
)

var shared struct {
	mu sync.Mutex
	m  *Monitor
}

// GetOrCreate returns the process-wide monitor, creating it on first use.
//
// The first successful call fixes threshold, pollInterval and the source.
// Later calls with different values get the running instance unchanged;
// the mismatch is logged on the instance's logger but not applied. Pass
// WithSourceKind rather than WithSource so no Source is built for a call
// that ends up reusing the running instance.
func GetOrCreate(threshold float64, pollInterval time.Duration, opts ...Option) (*Monitor, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if m := shared.m; m != nil {
		req := Monitor{threshold: threshold, interval: pollInterval}
		for _, o := range opts {
			o(&req)
		}
		sourceDiffers := req.kind != "" && req.kind != m.kind
		if m.threshold != threshold || m.interval != pollInterval || sourceDiffers {
			m.log.Info("memory monitor already running; keeping first configuration",
				slog.Float64("threshold", m.threshold),
				slog.Duration("poll_interval", m.interval),
				slog.String("source", string(m.kind)),
				slog.Float64("requested_threshold", threshold),
				slog.Duration("requested_poll_interval", pollInterval),
				slog.String("requested_source", string(req.kind)))
		}
		return m, nil
	}

	m, err := New(threshold, pollInterval, opts...)
	if err != nil {
		return nil, err
	}
	shared.m = m
	return m, nil
}

// StopShared stops the process-wide monitor, if any. A later GetOrCreate
// starts a fresh instance; holders of the stopped one must drop it.
func StopShared() {
	shared.mu.Lock()
	m := shared.m
	shared.m = nil
	shared.mu.Unlock()

	if m != nil {
		m.Stop()
	}
}
