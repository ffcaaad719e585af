// Package store provides a reactive key/value store: one writable cell per
// named field, allocated lazily on first use, plus derived views over them.
//
// It is the explicit-schema counterpart to wrapping an object in a dynamic
// proxy: every field is addressed by name and exposes the same read, write,
// and subscribe contract as the underlying cells. Like the cells themselves,
// a store must be driven from a single goroutine; pkg/live shows how to
// funnel concurrent callers through one loop.
package store

import (
	"encoding/json"
	"sort"

	"github.com/cellflow-dev/cellflow/pkg/cell"
)

// Store is a set of named writable cells on a shared engine.
type Store struct {
	eng   *cell.Engine
	cells map[string]*cell.Writable[any]
	views map[string]*cell.Computed[any]

	// observers receive every change on every key, including keys created
	// after registration. disposers tracks, per observer, the per-cell
	// subscriptions to undo on removal.
	observers map[uint64]func(key string, v any)
	nextObs   uint64
	disposers map[uint64][]func()
}

// New creates a store on its own engine.
func New() *Store {
	return NewWith(cell.NewEngine())
}

// NewWith creates a store whose cells live on eng.
func NewWith(eng *cell.Engine) *Store {
	return &Store{
		eng:       eng,
		cells:     make(map[string]*cell.Writable[any]),
		views:     make(map[string]*cell.Computed[any]),
		observers: make(map[uint64]func(string, any)),
		disposers: make(map[uint64][]func()),
	}
}

// Engine returns the engine the store's cells belong to.
func (s *Store) Engine() *cell.Engine {
	return s.eng
}

// Cell returns the writable cell for key, allocating it (with a nil value)
// on first use.
func (s *Store) Cell(key string) *cell.Writable[any] {
	if c, ok := s.cells[key]; ok {
		return c
	}
	c := cell.NewIn[any](s.eng, nil).WithName(key)
	s.cells[key] = c
	for id := range s.observers {
		s.attachObserver(key, c, id)
	}
	return c
}

// Get returns the value for key, registering a dependency if read inside a
// derivation.
func (s *Store) Get(key string) any {
	return s.Cell(key).Get()
}

// Peek returns the value for key without registering a dependency. Unknown
// keys return nil without allocating a cell.
func (s *Store) Peek(key string) any {
	if c, ok := s.cells[key]; ok {
		return c.Peek()
	}
	return nil
}

// Has reports whether a cell exists for key.
func (s *Store) Has(key string) bool {
	_, ok := s.cells[key]
	return ok
}

// Set stores v under key.
func (s *Store) Set(key string, v any) {
	s.Cell(key).Set(v)
}

// Update replaces the value under key using fn.
func (s *Store) Update(key string, fn func(any) any) {
	s.Cell(key).Update(fn)
}

// SetMany stores every entry of values in one batch, so each affected key
// notifies at most once and watchers spanning several keys run once. Keys
// are applied in sorted order for deterministic notification order.
func (s *Store) SetMany(values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.eng.Batch(func() {
		for _, k := range keys {
			s.Set(k, values[k])
		}
	})
}

// Subscribe registers fn for key with an immediate call; returns a disposer.
func (s *Store) Subscribe(key string, fn func(any)) func() {
	return s.Cell(key).Subscribe(fn)
}

// Observe registers fn for key without an immediate call; returns a
// disposer.
func (s *Store) Observe(key string, fn func(any)) func() {
	return s.Cell(key).Observe(fn)
}

// ObserveAll registers fn for changes on every key, present and future.
// Returns a disposer.
func (s *Store) ObserveAll(fn func(key string, v any)) func() {
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	for key, c := range s.cells {
		s.attachObserver(key, c, id)
	}
	return func() {
		delete(s.observers, id)
		for _, dispose := range s.disposers[id] {
			dispose()
		}
		delete(s.disposers, id)
	}
}

func (s *Store) attachObserver(key string, c *cell.Writable[any], id uint64) {
	dispose := c.Observe(func(v any) {
		if fn, ok := s.observers[id]; ok {
			fn(key, v)
		}
	})
	s.disposers[id] = append(s.disposers[id], dispose)
}

// View returns a named derived handle over the store's cells. The first
// call for a name creates the computed cell from getter; later calls with
// the same name return the existing handle and ignore getter, so callers
// can re-request a memoized derivation without keeping the pointer around.
func (s *Store) View(name string, getter func() any) *cell.Computed[any] {
	if v, ok := s.views[name]; ok {
		return v
	}
	v := cell.NewComputedIn(s.eng, getter).WithName(name)
	s.views[name] = v
	return v
}

// Keys returns the allocated keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.cells))
	for k := range s.cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the current value of every cell.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any, len(s.cells))
	for k, c := range s.cells {
		out[k] = c.Peek()
	}
	return out
}

// MarshalJSON serializes the store as a flat object of current values.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
