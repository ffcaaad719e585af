package cell

// Writable is a cell whose value is set from the outside. Writes route
// through the engine's batch scheduler: inside a batch the notification
// check is deferred and coalesced, outside it runs immediately.
type Writable[T any] struct {
	Cell[T]
}

// New creates a writable cell on the default engine.
func New[T any](initial T) *Writable[T] {
	return NewIn(defaultEngine, initial)
}

// NewIn creates a writable cell on eng.
func NewIn[T any](eng *Engine, initial T) *Writable[T] {
	w := &Writable[T]{Cell[T]{
		id:            nextID(),
		eng:           eng,
		value:         initial,
		initial:       initial,
		lastBroadcast: initial,
	}}
	w.self = w
	return w
}

// WithEquals sets the equality function used for change detection and
// returns the cell for chaining. The default compares with NaN-safe
// identity equality; supply a structural comparison to opt into deep
// change detection.
func (w *Writable[T]) WithEquals(fn func(old, new T) bool) *Writable[T] {
	w.equals = fn
	return w
}

// WithName sets a diagnostic name and returns the cell for chaining.
func (w *Writable[T]) WithName(name string) *Writable[T] {
	w.name = name
	return w
}

// Set stores v and requests a notification check, immediately or coalesced
// into the active batch. While the cell has no subscribers the stored value
// also becomes the broadcast baseline, so a subscriber arriving later is
// not notified about a write it never missed. Returns v.
func (w *Writable[T]) Set(v T) T {
	w.value = v
	if len(w.subs) == 0 {
		w.lastBroadcast = v
	}
	w.eng.request(w.id, w.updateCheck)
	return v
}

// Update sets the value to fn applied to the current value.
func (w *Writable[T]) Update(fn func(T) T) T {
	return w.Set(fn(w.value))
}

// Reset sets the value back to the initial value.
func (w *Writable[T]) Reset() T {
	return w.Set(w.initial)
}
