package util

import "runtime"

// MaxStripes caps the number of lock stripes per container.
const MaxStripes = 1 << 16

// ReasonableStripeCount picks a default stripe count based on CPU
// parallelism: nextPow2(2*GOMAXPROCS), clamped to [1..256].
func ReasonableStripeCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n > 256 {
		n = 256
	}
	return n
}

// StripeCount turns a requested concurrency level into a stripe count.
// level <= 0 selects ReasonableStripeCount; the result is a power of two
// in [1..MaxStripes]. When limit > 0 the count never exceeds it, so a
// bounded container never has stripes with zero capacity.
func StripeCount(level, limit int) int {
	n := level
	if n <= 0 {
		n = ReasonableStripeCount()
	}
	if n > MaxStripes {
		n = MaxStripes
	}
	n = int(NextPow2(uint64(n)))
	if limit > 0 && n > limit {
		n = int(PrevPow2(uint64(limit)))
	}
	return n
}

// StripeIndex maps a 64-bit hash to a stripe index.
// Uses a mask for power-of-two counts and modulo otherwise.
func StripeIndex(hash uint64, stripes int) int {
	if stripes <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(stripes)) {
		return int(hash & uint64(stripes-1))
	}
	return int(hash % uint64(stripes))
}

// SplitCapacity distributes total across n stripes so that the parts sum
// to total exactly: the first total%n stripes get one extra slot.
func SplitCapacity(total, n, i int) int {
	if n <= 0 {
		return total
	}
	c := total / n
	if i < total%n {
		c++
	}
	return c
}
