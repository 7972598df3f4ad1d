package notify

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCache struct{}

func (testCache) Name() string { return "test" }
func (testCache) ID() string   { return "id-1" }

type recorder struct {
	mu     sync.Mutex
	events []Event[string]
}

func (r *recorder) OnEviction(e Event[string]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestDispatcher_ExactCauseMatch(t *testing.T) {
	t.Parallel()

	d := NewDispatcher[string]()
	capacity, guard := &recorder{}, &recorder{}

	_, err := d.Subscribe(Capacity, capacity)
	require.NoError(t, err)
	_, err = d.Subscribe(MemoryGuard, guard)
	require.NoError(t, err)

	d.Dispatch(Event[string]{Key: "a", Cache: testCache{}, Pre: true, Cause: Capacity})
	d.Dispatch(Event[string]{Key: "a", Cache: testCache{}, Pre: false, Cause: Capacity})
	d.Dispatch(Event[string]{Key: "b", Cache: testCache{}, Pre: true, Cause: MemoryGuard})

	require.Len(t, capacity.events, 2)
	require.Len(t, guard.events, 1)
	for _, e := range capacity.events {
		assert.Equal(t, Capacity, e.Cause)
		assert.Equal(t, "a", e.Key)
	}
	assert.Equal(t, MemoryGuard, guard.events[0].Cause)
	assert.True(t, guard.events[0].IsPre())
	assert.Equal(t, "test", guard.events[0].Cache.Name())
}

func TestDispatcher_UnknownCause(t *testing.T) {
	t.Parallel()

	d := NewDispatcher[string]()
	_, err := d.Subscribe(Cause(42), &recorder{})
	require.ErrorIs(t, err, ErrUnknownCause)
	assert.False(t, d.HasListeners(Cause(42)))
}

// A failing or panicking listener must not stop later listeners.
func TestDispatcher_ListenerFailureIsolated(t *testing.T) {
	t.Parallel()

	var reported []error
	d := NewDispatcher[string](WithErrorHandler(func(_ Event[string], err error) {
		reported = append(reported, err)
	}))

	_, err := d.Subscribe(Capacity, ListenerFunc[string](func(Event[string]) error {
		return errors.New("boom")
	}))
	require.NoError(t, err)
	_, err = d.Subscribe(Capacity, ListenerFunc[string](func(Event[string]) error {
		panic("kaboom")
	}))
	require.NoError(t, err)
	last := &recorder{}
	_, err = d.Subscribe(Capacity, last)
	require.NoError(t, err)

	d.Dispatch(Event[string]{Key: "k", Cause: Capacity, Pre: true})

	assert.Len(t, last.events, 1)
	assert.Equal(t, uint64(2), d.Failures())
	require.Len(t, reported, 2)
	assert.Contains(t, reported[1].Error(), "kaboom")
}

func TestDispatcher_Cancel(t *testing.T) {
	t.Parallel()

	d := NewDispatcher[string]()
	r := &recorder{}
	cancel, err := d.Subscribe(MemoryGuard, r)
	require.NoError(t, err)
	require.True(t, d.HasListeners(MemoryGuard))

	cancel()
	cancel()
	assert.False(t, d.HasListeners(MemoryGuard))

	d.Dispatch(Event[string]{Key: "k", Cause: MemoryGuard})
	assert.Empty(t, r.events)
}

func TestCause_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CAPACITY", Capacity.String())
	assert.Equal(t, "MEMORY_GUARD", MemoryGuard.String())
	assert.Equal(t, []Cause{Capacity, MemoryGuard}, Causes())
}

// A listener subscribed between PRE and POST of one removal sees neither half.
func TestDelivery_SnapshotKeepsPairs(t *testing.T) {
	t.Parallel()

	d := NewDispatcher[string]()
	early := &recorder{}
	_, err := d.Subscribe(Capacity, early)
	require.NoError(t, err)

	dl := d.Deliver(Capacity)
	require.False(t, dl.Empty())
	dl.Send(Event[string]{Key: "k", Cause: Capacity, Pre: true})

	late := &recorder{}
	_, err = d.Subscribe(Capacity, late)
	require.NoError(t, err)

	dl.Send(Event[string]{Key: "k", Cause: Capacity, Pre: false})

	assert.Len(t, early.events, 2)
	assert.Empty(t, late.events)
	assert.True(t, d.Deliver(Cause(9)).Empty())
}
