package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/metrics"

	"github.com/shirou/gopsutil/v4/mem"
)

// Usage is a raw memory sample: Used bytes out of Committed bytes.
type Usage struct {
	Used      uint64
	Committed uint64
}

// Source reads memory usage. Read is only ever called from the monitor's
// poll goroutine; Close releases the underlying handle on Stop.
type Source interface {
	Read(ctx context.Context) (Usage, error)
	Close() error
}

// Runtime metric names that make up the Go heap. Committed memory is the
// heap memory the runtime holds and has not returned to the OS.
const (
	heapObjects = "/memory/classes/heap/objects:bytes"
	heapUnused  = "/memory/classes/heap/unused:bytes"
	heapFree    = "/memory/classes/heap/free:bytes"
	heapStacks  = "/memory/classes/heap/stacks:bytes"
)

// RuntimeSource samples the Go heap via runtime/metrics, which unlike
// runtime.ReadMemStats does not stop the world.
type RuntimeSource struct {
	samples []metrics.Sample
}

// NewRuntimeSource returns a Source over the current process heap.
func NewRuntimeSource() *RuntimeSource {
	return &RuntimeSource{samples: []metrics.Sample{
		{Name: heapObjects},
		{Name: heapUnused},
		{Name: heapFree},
		{Name: heapStacks},
	}}
}

// Read implements Source.
func (s *RuntimeSource) Read(context.Context) (Usage, error) {
	if s.samples == nil {
		return Usage{}, errors.New("monitor: runtime source closed")
	}
	metrics.Read(s.samples)

	var vals [4]uint64
	for i, smp := range s.samples {
		if smp.Value.Kind() != metrics.KindUint64 {
			return Usage{}, fmt.Errorf("monitor: runtime metric %s unavailable", smp.Name)
		}
		vals[i] = smp.Value.Uint64()
	}
	return Usage{
		Used:      vals[0],
		Committed: vals[0] + vals[1] + vals[2] + vals[3],
	}, nil
}

// Close implements Source.
func (s *RuntimeSource) Close() error {
	s.samples = nil
	return nil
}

// SystemSource samples host memory through gopsutil. Use it when the guard
// should react to machine-wide pressure rather than this process's heap.
type SystemSource struct{}

// NewSystemSource returns a host-memory Source.
func NewSystemSource() *SystemSource { return &SystemSource{} }

// Read implements Source.
func (SystemSource) Read(ctx context.Context) (Usage, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("monitor: read host memory: %w", err)
	}
	return Usage{Used: vm.Used, Committed: vm.Total}, nil
}

// Close implements Source.
func (SystemSource) Close() error { return nil }

// SourceKind names a built-in Source.
type SourceKind string

const (
	// SourceRuntime samples the Go heap of this process (default).
	SourceRuntime SourceKind = "runtime"
	// SourceSystem samples host memory.
	SourceSystem SourceKind = "system"
	// SourceCustom marks a Source passed in with WithSource.
	SourceCustom SourceKind = "custom"
)

// NewSource builds the Source for kind; an empty kind means SourceRuntime.
func NewSource(kind SourceKind) (Source, error) {
	switch kind {
	case "", SourceRuntime:
		return NewRuntimeSource(), nil
	case SourceSystem:
		return NewSystemSource(), nil
	default:
		return nil, fmt.Errorf("monitor: unknown memory source %q", kind)
	}
}
