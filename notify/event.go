// Package notify delivers eviction events to observers, one subscription
// channel per eviction cause.
package notify

import "fmt"

// Cause tells observers why an entry was evicted.
type Cause uint8

const (
	// Capacity means the entry was chosen to keep a bounded container
	// within its maxEntries limit.
	Capacity Cause = iota
	// MemoryGuard means the entry was removed by a memory-pressure cycle.
	MemoryGuard

	numCauses
)

// Causes lists every known cause.
func Causes() []Cause { return []Cause{Capacity, MemoryGuard} }

// Valid reports whether c is a known cause.
func (c Cause) Valid() bool { return c < numCauses }

func (c Cause) String() string {
	switch c {
	case Capacity:
		return "CAPACITY"
	case MemoryGuard:
		return "MEMORY_GUARD"
	default:
		return fmt.Sprintf("Cause(%d)", uint8(c))
	}
}

// Cache identifies the container an event originated from.
type Cache interface {
	Name() string
	ID() string
}

// Event describes one half of a physical removal. Every removal produces
// exactly one Pre event followed by exactly one post event (Pre == false)
// for the same key and cause.
type Event[K comparable] struct {
	Key   K
	Cache Cache
	Pre   bool
	Cause Cause
}

// IsPre reports whether the event was fired before the entry was unlinked.
func (e Event[K]) IsPre() bool { return e.Pre }
