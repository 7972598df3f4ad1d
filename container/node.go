package container

// node is an intrusive doubly linked list element owned by a stripe.
// It stores the key/value alongside list links and expiry bookkeeping.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is the most recently admitted/promoted.
	prev *node[K, V]
	next *node[K, V]

	// UnixNano timestamps.
	created  int64
	lastUsed int64

	// Expiry in nanoseconds; zero means "never".
	lifespan int64
	maxIdle  int64
}

// Key returns the node key (part of policy.Node interface).
func (n *node[K, V]) Key() K { return n.key }

// Value returns a pointer to the stored value (part of policy.Node interface).
// NOTE: callers must only read/write through this pointer while holding the
// stripe lock; otherwise data races may occur.
func (n *node[K, V]) Value() *V { return &n.val }

func (n *node[K, V]) expired(now int64) bool {
	if n.lifespan > 0 && now-n.created > n.lifespan {
		return true
	}
	return n.maxIdle > 0 && now-n.lastUsed > n.maxIdle
}
