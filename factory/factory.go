// Package factory builds DataContainers from a config.Configuration: it
// validates the eviction options, picks the bounded or unbounded variant
// and wires in the strategy, thread policy, stripes and memory guard.
package factory

import (
	"fmt"
	"io"
	"log/slog"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/guardcache/config"
	"github.com/IvanBrykalov/guardcache/container"
	"github.com/IvanBrykalov/guardcache/monitor"
	"github.com/IvanBrykalov/guardcache/policy"
	"github.com/IvanBrykalov/guardcache/policy/fifo"
	"github.com/IvanBrykalov/guardcache/policy/lfu"
	"github.com/IvanBrykalov/guardcache/policy/lru"
	"github.com/IvanBrykalov/guardcache/policy/twoq"
)

type settings struct {
	gauge   container.PressureGauge
	log     *slog.Logger
	metrics container.Metrics
	clock   container.Clock
	hasher  any
}

// Option customizes Construct.
type Option func(*settings)

// WithGauge injects the memory-pressure gauge instead of the process-wide
// monitor. Useful for tests and for callers that own their monitor.
func WithGauge(g container.PressureGauge) Option {
	return func(s *settings) { s.gauge = g }
}

// WithLogger sets the logger handed to the container and the monitor.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithMetrics sets the container metrics sink.
func WithMetrics(m container.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithClock overrides the container time source.
func WithClock(c container.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithHasher sets the key hash used to pick a stripe. K must match the key
// type passed to Construct. Without it keys are hashed by util.Hash64.
func WithHasher[K comparable](h func(K) uint64) Option {
	return func(s *settings) { s.hasher = h }
}

// Construct validates cfg and builds the matching container. An unknown
// eviction strategy or thread policy is an INVALID_CONFIGURATION error.
func Construct[K comparable, V any](cfg config.Configuration, opts ...Option) (container.DataContainer[K, V], error) {
	st := settings{}
	for _, o := range opts {
		o(&st)
	}
	if st.log == nil {
		st.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	strategy, err := config.ParseEvictionStrategy(cfg.EvictionStrategy)
	if err != nil {
		return nil, invalid(err, "unrecognized eviction strategy", "evictionStrategy", cfg.EvictionStrategy)
	}
	threads, err := config.ParseThreadPolicy(cfg.EvictionThreadPolicy)
	if err != nil {
		return nil, invalid(err, "unrecognized eviction thread policy", "evictionThreadPolicy", cfg.EvictionThreadPolicy)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opt := container.Options[K, V]{
		Name:             cfg.Name,
		MaxEntries:       cfg.EvictionMaxEntries,
		ConcurrencyLevel: cfg.ConcurrencyLevel,
		Policy:           policyFor[K, V](strategy),
		ThreadPolicy:     container.Piggyback,
		DefaultLifespan:  cfg.ExpirationLifespan,
		DefaultMaxIdle:   cfg.ExpirationMaxIdle,
		ReaperInterval:   cfg.ExpirationWakeUpInterval,
		Metrics:          st.metrics,
		Logger:           st.log,
		Clock:            st.clock,
	}
	if threads == config.ThreadPolicyThread {
		opt.ThreadPolicy = container.Thread
	}
	if st.hasher != nil {
		h, ok := st.hasher.(func(K) uint64)
		if !ok {
			return nil, platformerrors.New(platformerrors.CodeInvalidConfig,
				fmt.Sprintf("hasher %T does not match key type %T", st.hasher, *new(K)))
		}
		opt.Hasher = h
	}
	if !cfg.UseLockStriping {
		opt.ConcurrencyLevel = 1
	}

	if mg := cfg.MemoryGuard; mg.Enabled {
		gauge := st.gauge
		if gauge == nil {
			m, err := monitor.GetOrCreate(mg.Threshold, mg.PollDuration(),
				monitor.WithSourceKind(mg.Source), monitor.WithLogger(st.log))
			if err != nil {
				return nil, invalid(err, "memory monitor", "memoryGuardSource", mg.Source)
			}
			gauge = m
		}
		opt.MemoryGuard = &container.GuardOptions{Gauge: gauge, EvictionsPerCycle: mg.EvictionsPerCycle}
	}

	var c container.DataContainer[K, V]
	if cfg.EvictionMaxEntries < 0 {
		c, err = container.NewUnbounded(opt)
	} else {
		c, err = container.NewBounded(opt)
	}
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "container construction failed")
	}

	st.log.Info("data container built",
		slog.String("name", c.Name()),
		slog.Bool("bounded", cfg.EvictionMaxEntries >= 0),
		slog.Int("max_entries", cfg.EvictionMaxEntries),
		slog.String("strategy", string(strategy)),
		slog.String("thread_policy", string(threads)),
		slog.Int("concurrency_level", opt.ConcurrencyLevel),
		slog.Bool("memory_guard", opt.MemoryGuard != nil))
	return c, nil
}

// policyFor maps a validated strategy onto its policy. NONE has no policy.
func policyFor[K comparable, V any](s config.EvictionStrategy) policy.Policy[K, V] {
	switch s {
	case config.StrategyFIFO:
		return fifo.New[K, V]()
	case config.StrategyLRU:
		return lru.New[K, V]()
	case config.StrategyLFU:
		return lfu.New[K, V]()
	case config.Strategy2Q:
		return twoq.New[K, V](0, 0)
	case config.StrategyNone:
		return nil
	default:
		panic("factory: unhandled eviction strategy " + string(s))
	}
}

func invalid(err error, msg, option string, value any) error {
	return platformerrors.WithContextMap(
		platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, msg),
		map[string]interface{}{"option": option, "value": value})
}
