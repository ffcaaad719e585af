package cell

import (
	"encoding/json"
	"fmt"
)

// depRecord is one dependency observation inside a cache frame: the cell
// that was read and its value at computation time.
type depRecord struct {
	src source
	val any
}

// frame is one memoized result: the computed value together with the
// snapshot of every dependency value it was derived from. A frame matches
// when each recorded dependency still peeks equal to its recorded value.
type frame[T any] struct {
	value T
	deps  []depRecord
}

// Computed is a cell derived from other cells. The getter's dependencies
// are whatever it read during its last run; they are discovered by the
// engine's collector, not declared.
//
// Reads are pull-evaluated through a bounded MRU cache of (snapshot, value)
// frames; writes to dependencies only push a lazy update check. Dependency
// edges exist only while the cell has at least one subscriber: the first
// subscriber forces an evaluation to materialize them, the last unsubscribe
// prunes them and keeps the cache.
type Computed[T any] struct {
	Cell[T]

	getter    func() T
	cacheSize int
	cache     []*frame[T] // most recently used first
	live      map[uint64]source

	// computing guards against a getter that transitively reads its own
	// cell. Reentrant evaluation has no meaningful result; it panics.
	computing bool

	// notifyEdge is the callback attached to every live dependency. It
	// routes through the engine so a diamond graph checks this cell once
	// per batch.
	notifyEdge func()
}

// NewComputed creates a computed cell on the default engine. The getter is
// not run until the first read or subscription. The snapshot cache holds
// one frame by default; see WithCacheSize.
func NewComputed[T any](getter func() T) *Computed[T] {
	return NewComputedIn(defaultEngine, getter)
}

// NewComputedIn creates a computed cell on eng.
func NewComputedIn[T any](eng *Engine, getter func() T) *Computed[T] {
	m := &Computed[T]{
		Cell: Cell[T]{
			id:  nextID(),
			eng: eng,
		},
		getter:    getter,
		cacheSize: 1,
		live:      make(map[uint64]source),
	}
	m.self = m
	m.notifyEdge = func() { m.eng.request(m.id, m.check) }
	m.onFirstSubscriber = func() { m.Peek() }
	m.onLastUnsubscribe = m.teardown
	return m
}

// WithCacheSize bounds the snapshot cache to n frames and returns the cell
// for chaining. n = 0 disables memoization: every read runs the getter.
func (m *Computed[T]) WithCacheSize(n int) *Computed[T] {
	if n < 0 {
		panic(fmt.Sprintf("cell: negative cache size %d for computed %q", n, m.name))
	}
	m.cacheSize = n
	if len(m.cache) > n {
		m.cache = m.cache[:n]
	}
	return m
}

// WithEquals sets the equality function used for change detection and
// returns the cell for chaining.
func (m *Computed[T]) WithEquals(fn func(old, new T) bool) *Computed[T] {
	m.equals = fn
	return m
}

// WithName sets a diagnostic name and returns the cell for chaining.
func (m *Computed[T]) WithName(name string) *Computed[T] {
	m.name = name
	return m
}

// Get returns the value, registering this cell as a dependency of whatever
// evaluation is in flight, then reading through the cache like Peek.
func (m *Computed[T]) Get() T {
	m.eng.collect(m.self)
	return m.Peek()
}

// Peek returns the value without registering a dependency. The cache is
// scanned most-recently-used first; a frame whose recorded dependencies all
// still peek equal is adopted without invoking the getter. Only when no
// frame matches does the getter run.
func (m *Computed[T]) Peek() T {
	if m.computing {
		panic(fmt.Sprintf("cell: cyclic dependency detected in computed %q", m.name))
	}
	for i := 0; i < len(m.cache); i++ {
		f := m.cache[i]
		if !frameMatches(f) {
			continue
		}
		if i > 0 {
			copy(m.cache[1:i+1], m.cache[0:i])
			m.cache[0] = f
		}
		m.adopt(f)
		if m.eng.hooks.OnCacheHit != nil {
			m.eng.hooks.OnCacheHit(m.name)
		}
		return f.value
	}
	return m.recompute()
}

// Subscribe registers fn and invokes it immediately with a fresh value.
// The first subscriber forces an evaluation so dependency edges exist from
// that point on.
func (m *Computed[T]) Subscribe(fn func(T)) func() {
	id := m.addSub(fn)
	fn(m.Peek())
	return func() { m.removeSub(id) }
}

// MarshalJSON serializes the current value, evaluating if needed.
func (m *Computed[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Peek())
}

// peekAny implements source: dependents snapshot this cell through its
// cache semantics.
func (m *Computed[T]) peekAny() any {
	return m.Peek()
}

// check is the update check attached to dependencies and enqueued in
// batches: refresh lazily, then run base change detection so subscribers
// are notified only if the derived value actually changed.
func (m *Computed[T]) check() {
	m.Peek()
	m.updateCheck()
}

// frameMatches reports whether every dependency recorded in f still peeks
// equal to its snapshot value. A frame with no recorded dependencies (a
// constant getter) always matches.
func frameMatches[T any](f *frame[T]) bool {
	for _, r := range f.deps {
		if !equalAny(r.src.peekAny(), r.val) {
			return false
		}
	}
	return true
}

// adopt makes f the current result. While subscribed, live edges are
// realigned to f's dependency set: newly relevant dependencies are attached
// and no-longer-relevant ones detached, so live tracking always matches the
// frame that produced the current value.
func (m *Computed[T]) adopt(f *frame[T]) {
	if len(m.subs) > 0 {
		seen := make(map[uint64]struct{}, len(f.deps))
		for _, r := range f.deps {
			id := r.src.ID()
			seen[id] = struct{}{}
			if _, ok := m.live[id]; !ok {
				r.src.attach(m.id, m.notifyEdge)
				m.live[id] = r.src
			}
		}
		for id, s := range m.live {
			if _, ok := seen[id]; !ok {
				s.detach(m.id)
				delete(m.live, id)
			}
		}
	}
	m.value = f.value
}

// recompute runs the getter under a fresh collector and installs the result
// as a new MRU cache frame.
//
// If the getter panics, the pushed frame is rolled back, the live set is
// restored, and the collector is popped before the panic escapes; the
// cell's value and remaining cache are left untouched.
func (m *Computed[T]) recompute() T {
	if m.eng.hooks.OnCacheMiss != nil && m.cacheSize > 0 {
		m.eng.hooks.OnCacheMiss(m.name)
	}
	if m.eng.hooks.OnRecompute != nil {
		m.eng.hooks.OnRecompute(m.name)
	}

	m.computing = true
	prev := m.live
	m.live = make(map[uint64]source)

	var fr *frame[T]
	if m.cacheSize > 0 {
		fr = &frame[T]{value: m.value}
		m.cache = append([]*frame[T]{fr}, m.cache...)
		if len(m.cache) > m.cacheSize {
			m.cache = m.cache[:m.cacheSize]
		}
	}

	m.eng.pushCollector(func(src source) {
		id := src.ID()
		if len(m.subs) > 0 {
			if _, ok := m.live[id]; !ok {
				src.attach(m.id, m.notifyEdge)
				m.live[id] = src
			}
		}
		// Record into the snapshot regardless of subscriber count, so
		// cache matching works while untracked.
		if fr != nil {
			for _, r := range fr.deps {
				if r.src.ID() == id {
					return
				}
			}
			fr.deps = append(fr.deps, depRecord{src: src, val: src.peekAny()})
		}
	})

	completed := false
	defer func() {
		m.computing = false
		m.eng.popCollector()
		if !completed {
			if fr != nil {
				m.cache = m.cache[1:]
			}
			for id, s := range m.live {
				if _, ok := prev[id]; !ok {
					s.detach(m.id)
				}
			}
			m.live = prev
		}
	}()

	v := m.getter()
	completed = true

	if fr != nil {
		fr.value = v
	}
	m.value = v

	// Prune edges to dependencies not read on this evaluation path.
	for id, s := range prev {
		if _, ok := m.live[id]; !ok {
			s.detach(m.id)
		}
	}
	return v
}

// teardown detaches every live dependency edge. The cache is retained so a
// later resubscribe can hit it without recomputing.
func (m *Computed[T]) teardown() {
	for _, s := range m.live {
		s.detach(m.id)
	}
	clear(m.live)
}
