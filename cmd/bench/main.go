// Command bench runs a synthetic workload against a data container built
// from configuration and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/guardcache/config"
	"github.com/IvanBrykalov/guardcache/container"
	"github.com/IvanBrykalov/guardcache/factory"
	pmet "github.com/IvanBrykalov/guardcache/metrics/prom"
	"github.com/IvanBrykalov/guardcache/monitor"
	"github.com/IvanBrykalov/guardcache/notify"
)

func main() {
	// ---- Flags ----
	var (
		cfgPath  = flag.String("config", "", "YAML configuration file; flags below override it")
		strategy = flag.String("strategy", "", "eviction strategy: NONE | FIFO | LRU | LFU | 2Q")
		maxEnt   = flag.Int("max-entries", 0, "capacity (entries); negative = unbounded; 0 = keep config")
		threads  = flag.String("thread-policy", "", "PIGGYBACK | THREAD")
		level    = flag.Int("concurrency", 0, "lock stripes (0 = keep config)")

		guard     = flag.Bool("guard", false, "enable the memory guard")
		threshold = flag.Float64("threshold", 0, "memory guard threshold, percent of committed memory (0 = keep config)")
		perCycle  = flag.Int("evictions-per-cycle", 0, "memory guard evictions per cycle (0 = keep config)")

		mode     = flag.String("mode", "mixed", "workload: mixed (zipf reads/writes) | fill (unique inserts)")
		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100] (mixed mode)")
		valBytes = flag.Int("value-bytes", 64, "bytes per value")

		keys  = flag.Int("keys", 1_000_000, "keyspace size (mixed mode)")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	// ---- Configuration ----
	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			logger.Error("load configuration", slog.Any("error", err))
			os.Exit(1)
		}
		cfg = *loaded
	}
	if cfg.Name == "" {
		cfg.Name = "bench"
	}
	if *strategy != "" {
		cfg.EvictionStrategy = *strategy
	}
	if *maxEnt != 0 {
		cfg.EvictionMaxEntries = *maxEnt
	}
	if *threads != "" {
		cfg.EvictionThreadPolicy = *threads
	}
	if *level > 0 {
		cfg.ConcurrencyLevel = *level
	}
	if *guard {
		cfg.MemoryGuard.Enabled = true
	}
	if *threshold > 0 {
		cfg.MemoryGuard.Threshold = *threshold
	}
	if *perCycle > 0 {
		cfg.MemoryGuard.EvictionsPerCycle = *perCycle
	}

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			logger.Info("pprof: serving", slog.String("addr", *pprofAddr))
			logger.Error("pprof server stopped", slog.Any("error", http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Build container ----
	reg := prometheus.NewRegistry()
	metrics := pmet.New(reg, "guardcache", "bench", nil)
	c, err := factory.Construct[string, []byte](cfg, factory.WithLogger(logger), factory.WithMetrics(metrics))
	if err != nil {
		logger.Error("build container", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()
	defer monitor.StopShared()

	reg.MustRegister(pmet.NewContainerCollector(c, "guardcache", "bench"))
	if cfg.MemoryGuard.Enabled {
		if m, err := monitor.GetOrCreate(cfg.MemoryGuard.Threshold, cfg.MemoryGuard.PollDuration()); err == nil {
			reg.MustRegister(pmet.NewMonitorCollector(m, "guardcache"))
		}
	}

	var guardEvents atomic.Uint64
	_, _ = c.Events().Subscribe(notify.MemoryGuard, notify.ListenerFunc[string](func(e notify.Event[string]) error {
		if !e.IsPre() {
			guardEvents.Add(1)
		}
		return nil
	}))

	// ---- Prometheus metrics ----
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logger.Info("metrics: serving", slog.String("addr", *metricsAddr))
		logger.Error("metrics server stopped", slog.Any("error", http.ListenAndServe(*metricsAddr, mux)))
	}()

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	value := make([]byte, *valBytes)

	// ---- Load generation ----
	var reads, writes, hits, misses, total atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)
			prefix := "w" + strconv.Itoa(id) + ":"

			for i := 0; ctx.Err() == nil; i++ {
				total.Add(1)
				if *mode == "fill" {
					c.Put(prefix+strconv.Itoa(i), append([]byte(nil), value...), container.Metadata{})
					writes.Add(1)
					continue
				}
				k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
				if int(localR.Int31n(100)) < readPctVal {
					reads.Add(1)
					if _, ok := c.Get(k); ok {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
				} else {
					writes.Add(1)
					c.Put(k, append([]byte(nil), value...), container.Metadata{})
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := total.Load()
	readsN := reads.Load()
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hits.Load()) / float64(readsN) * 100
	}

	fmt.Printf("strategy=%s max=%d threads=%s guard=%v mode=%s workers=%d dur=%v seed=%d\n",
		cfg.EvictionStrategy, cfg.EvictionMaxEntries, cfg.EvictionThreadPolicy,
		cfg.MemoryGuard.Enabled, *mode, workersN, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writes.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hits.Load(), misses.Load(), hitRate)
	fmt.Printf("Len()=%d  memoryGuardEvictions=%d  guardEvents=%d\n",
		c.Len(), c.MemoryGuardEvictions(), guardEvents.Load())
}
