package container

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/guardcache/policy/lru"
)

// benchmarkMix exercises a read/write mix against a warm container.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
func benchmarkMix(b *testing.B, readsPct int, tp ThreadPolicy) {
	c, err := NewBounded(Options[string, string]{
		MaxEntries:   100_000,
		Policy:       lru.New[string, string](),
		ThreadPolicy: tp,
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })

	// Preload half the capacity to get a realistic hit-rate.
	for i := 0; i < 50_000; i++ {
		c.Put("k:"+strconv.Itoa(i), "v", Metadata{})
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 17) - 1 // keyspace above capacity keeps eviction busy

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				c.Get(k)
			} else {
				c.Put(k, "v", Metadata{})
			}
			i++
		}
	})
}

func BenchmarkContainer_90r10w(b *testing.B)        { benchmarkMix(b, 90, Piggyback) }
func BenchmarkContainer_50r50w(b *testing.B)        { benchmarkMix(b, 50, Piggyback) }
func BenchmarkContainer_50r50w_Thread(b *testing.B) { benchmarkMix(b, 50, Thread) }

// benchmarkGuard measures the put path while memory-guard cycles run.
func BenchmarkContainer_GuardPressure(b *testing.B) {
	g := &fakeGauge{}
	g.cross(true)
	c, err := NewUnbounded(Options[int, int]{
		MemoryGuard: &GuardOptions{Gauge: g, EvictionsPerCycle: 256},
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })

	b.ReportAllocs()
	b.ResetTimer()

	var n atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := int(n.Add(1))
			if i%1_000 == 0 {
				g.bump()
			}
			c.Put(i, i, Metadata{})
		}
	})
}
