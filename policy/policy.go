// Package policy defines the victim-selection capability shared by every
// eviction strategy. Concrete strategies live in sub-packages.
package policy

// Node is the minimal contract a container entry must satisfy for a policy.
// It provides read-only access to the key and a pointer to the value.
type Node[K comparable, V any] interface {
	Key() K
	Value() *V
}

// Hooks expose O(1) list operations that a policy can use to manipulate
// the stripe's intrusive ordering list. Implementations are provided by
// the stripe.
//
// Concurrency: all hook calls happen under the stripe lock.
// Hooks manage only the list; the stripe owns the key->node map.
type Hooks[K comparable, V any] interface {
	// MoveToFront promotes the node to the head of the list.
	MoveToFront(Node[K, V])
	// PushFront inserts the node at the head (used on admission).
	PushFront(Node[K, V])
	// Remove detaches the node from the list.
	Remove(Node[K, V])
	// Back returns the tail node (or nil if empty).
	Back() Node[K, V]
	// Len returns the number of resident nodes in the stripe.
	Len() int
	// Cap returns the stripe capacity, or -1 when the stripe is unbounded.
	Cap() int
}

// ShardPolicy is a per-stripe policy instance bound to stripe hooks.
// All methods are invoked under the stripe lock.
//
// Semantics:
//   - OnAdd admits a new node (it must place it in the list via hooks).
//   - OnGet/OnUpdate record a use (e.g., move to MRU).
//   - OnRemove lets the policy drop internal state for a node the stripe
//     is unlinking; the stripe performs the actual deletion.
//   - Victim names the node to evict next, or nil when the stripe is empty.
//     It must not mutate policy state; the stripe calls OnRemove for the
//     node it actually evicts.
type ShardPolicy[K comparable, V any] interface {
	OnAdd(Node[K, V])
	OnGet(Node[K, V])
	OnUpdate(Node[K, V])
	OnRemove(Node[K, V])
	Victim() Node[K, V]
}

// Policy is a factory that creates stripe-local policy instances
// bound to a particular stripe's hooks.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) ShardPolicy[K, V]
}
