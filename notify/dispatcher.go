package notify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrUnknownCause is returned by Subscribe for a cause outside the known set.
var ErrUnknownCause = errors.New("notify: unknown eviction cause")

// Listener observes eviction events of a single cause.
// Listeners run synchronously on the evicting goroutine while the entry's
// stripe is locked: they must not call back into the container.
type Listener[K comparable] interface {
	OnEviction(Event[K]) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc[K comparable] func(Event[K]) error

// OnEviction calls f(e).
func (f ListenerFunc[K]) OnEviction(e Event[K]) error { return f(e) }

type subscriber[K comparable] struct {
	id uint64
	l  Listener[K]
}

// Dispatcher fans events out to the listeners registered for the event's
// exact cause. Subscriber lists are copy-on-write: Dispatch never locks.
type Dispatcher[K comparable] struct {
	mu     sync.Mutex // serializes Subscribe/cancel
	subs   [numCauses]atomic.Pointer[[]subscriber[K]]
	nextID uint64

	failures atomic.Uint64
	log      *slog.Logger
	onError  func(Event[K], error)
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption[K comparable] func(*Dispatcher[K])

// WithLogger sets the logger used to report listener failures.
func WithLogger[K comparable](l *slog.Logger) DispatcherOption[K] {
	return func(d *Dispatcher[K]) {
		if l != nil {
			d.log = l
		}
	}
}

// WithErrorHandler registers a hook invoked for every failed listener call.
func WithErrorHandler[K comparable](fn func(Event[K], error)) DispatcherOption[K] {
	return func(d *Dispatcher[K]) { d.onError = fn }
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher[K comparable](opts ...DispatcherOption[K]) *Dispatcher[K] {
	d := &Dispatcher[K]{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Subscribe registers l for events of cause c only. The returned function
// removes the subscription; it is safe to call more than once.
func (d *Dispatcher[K]) Subscribe(c Cause, l Listener[K]) (cancel func(), err error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCause, uint8(c))
	}
	if l == nil {
		return nil, errors.New("notify: nil listener")
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	var next []subscriber[K]
	if cur := d.subs[c].Load(); cur != nil {
		next = append(next, (*cur)...)
	}
	next = append(next, subscriber[K]{id: id, l: l})
	d.subs[c].Store(&next)
	d.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { d.unsubscribe(c, id) }) }, nil
}

func (d *Dispatcher[K]) unsubscribe(c Cause, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.subs[c].Load()
	if cur == nil {
		return
	}
	next := make([]subscriber[K], 0, len(*cur))
	for _, s := range *cur {
		if s.id != id {
			next = append(next, s)
		}
	}
	d.subs[c].Store(&next)
}

// HasListeners reports whether any listener is subscribed to c.
func (d *Dispatcher[K]) HasListeners(c Cause) bool {
	return !d.Deliver(c).Empty()
}

// Delivery is the set of listeners subscribed to one cause at the moment
// Deliver was called. Sending PRE and POST through the same Delivery
// guarantees every listener sees both halves of a removal or neither.
type Delivery[K comparable] struct {
	d    *Dispatcher[K]
	subs []subscriber[K]
}

// Deliver captures the current listeners of cause c.
func (d *Dispatcher[K]) Deliver(c Cause) Delivery[K] {
	if !c.Valid() {
		return Delivery[K]{d: d}
	}
	cur := d.subs[c].Load()
	if cur == nil {
		return Delivery[K]{d: d}
	}
	return Delivery[K]{d: d, subs: *cur}
}

// Empty reports whether nobody is listening.
func (dl Delivery[K]) Empty() bool { return len(dl.subs) == 0 }

// Send delivers e to the captured listeners in subscription order.
// A listener that returns an error or panics is reported and skipped;
// the remaining listeners still run.
func (dl Delivery[K]) Send(e Event[K]) {
	for _, s := range dl.subs {
		if err := dl.d.invoke(s.l, e); err != nil {
			dl.d.report(e, err)
		}
	}
}

// Dispatch delivers e to every listener currently subscribed to e.Cause.
func (d *Dispatcher[K]) Dispatch(e Event[K]) {
	d.Deliver(e.Cause).Send(e)
}

func (d *Dispatcher[K]) report(e Event[K], err error) {
	d.failures.Add(1)
	d.log.Warn("eviction listener failed",
		slog.String("cause", e.Cause.String()),
		slog.Bool("pre", e.Pre),
		slog.Any("key", e.Key),
		slog.Any("error", err))
	if d.onError != nil {
		d.onError(e, err)
	}
}

// Failures returns the number of listener invocations that failed.
func (d *Dispatcher[K]) Failures() uint64 { return d.failures.Load() }

func (d *Dispatcher[K]) invoke(l Listener[K], e Event[K]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: listener panic: %v", r)
		}
	}()
	return l.OnEviction(e)
}
