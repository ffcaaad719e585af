package cell

import "encoding/json"

// subscriber is one registered callback, keyed for removal and coalescing.
type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Cell is the base observable: a value, a subscriber list, and change
// detection against the last broadcast value. It is embedded by Writable
// and Computed and is not constructed on its own.
type Cell[T any] struct {
	id   uint64
	eng  *Engine
	name string

	value   T
	initial T

	// lastBroadcast is the value as of the last notification. It only
	// moves when a notification actually fires, or when the subscriber
	// count transitions 0→1 (baselining, so the first subscriber does not
	// see a spurious change for writes that happened while unobserved).
	lastBroadcast T

	subs   []subscriber[T]
	equals func(old, new T) bool

	// self is the outermost value implementing source. Set by the
	// embedding constructor so dependency edges dispatch to its overrides
	// (a computed dependency must be peeked through its cache).
	self source

	// Subscriber-count transition hooks, used by Computed to materialize
	// and prune dependency edges.
	onFirstSubscriber func()
	onLastUnsubscribe func()
}

// ID returns the cell's unique identifier.
func (c *Cell[T]) ID() uint64 {
	return c.id
}

// Name returns the diagnostic name, or "" if none was set.
func (c *Cell[T]) Name() string {
	return c.name
}

// Engine returns the engine this cell belongs to.
func (c *Cell[T]) Engine() *Engine {
	return c.eng
}

// Get returns the current value. If a computed cell or watcher is currently
// evaluating, the read registers this cell as one of its dependencies. Use
// Peek for reads that must stay out of the graph.
func (c *Cell[T]) Get() T {
	c.eng.collect(c.self)
	return c.value
}

// Peek returns the current value without registering a dependency.
func (c *Cell[T]) Peek() T {
	return c.value
}

// Subscribe registers fn, invokes it immediately with the current value,
// and returns an idempotent disposer.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	id := c.addSub(fn)
	fn(c.value)
	return func() { c.removeSub(id) }
}

// Observe registers fn without an immediate call and returns an idempotent
// disposer.
func (c *Cell[T]) Observe(fn func(T)) func() {
	id := c.addSub(fn)
	return func() { c.removeSub(id) }
}

// MarshalJSON serializes the current value, so a cell embeds transparently
// in a larger serialized structure.
func (c *Cell[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.value)
}

// addSub appends a subscriber. On the 0→1 transition it first runs the
// transition hook (a computed cell refreshes and materializes its edges
// there), then baselines lastBroadcast on the refreshed value.
func (c *Cell[T]) addSub(fn func(T)) uint64 {
	id := nextID()
	first := len(c.subs) == 0
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})
	if first {
		if c.onFirstSubscriber != nil {
			c.onFirstSubscriber()
		}
		c.lastBroadcast = c.value
	}
	return id
}

// removeSub removes the subscriber with the given id, preserving order.
// Unknown ids are ignored, which makes disposers idempotent.
func (c *Cell[T]) removeSub(id uint64) {
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			if len(c.subs) == 0 && c.onLastUnsubscribe != nil {
				c.onLastUnsubscribe()
			}
			return
		}
	}
}

// updateCheck is the cell's notification pass: compare the current value
// against lastBroadcast and, if changed, invoke every current subscriber.
// lastBroadcast moves before the callbacks run so reentrant writes compare
// against the value being broadcast.
func (c *Cell[T]) updateCheck() {
	if len(c.subs) == 0 {
		return
	}
	v := c.value
	if c.changed(c.lastBroadcast, v) {
		c.lastBroadcast = v
		if c.eng.hooks.OnNotify != nil {
			c.eng.hooks.OnNotify(c.name, len(c.subs))
		}
		// Copy before notifying: callbacks may subscribe or unsubscribe.
		subs := make([]subscriber[T], len(c.subs))
		copy(subs, c.subs)
		for _, s := range subs {
			s.fn(v)
		}
	}
}

// changed reports whether old → new counts as a change under the cell's
// equality function.
func (c *Cell[T]) changed(old, new T) bool {
	if c.equals != nil {
		return !c.equals(old, new)
	}
	return !defaultEquals(old, new)
}

// peekAny implements source for dependency snapshots. Computed shadows it
// so its dependencies are peeked through the cache.
func (c *Cell[T]) peekAny() any {
	return c.value
}

// attach implements source: register an update-check callback for a
// dependent, keyed by the dependent's id. Duplicate attaches are ignored.
func (c *Cell[T]) attach(owner uint64, check func()) {
	for _, s := range c.subs {
		if s.id == owner {
			return
		}
	}
	first := len(c.subs) == 0
	c.subs = append(c.subs, subscriber[T]{id: owner, fn: func(T) { check() }})
	if first {
		if c.onFirstSubscriber != nil {
			c.onFirstSubscriber()
		}
		c.lastBroadcast = c.value
	}
}

// detach implements source.
func (c *Cell[T]) detach(owner uint64) {
	c.removeSub(owner)
}
