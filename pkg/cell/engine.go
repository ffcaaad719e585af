package cell

// source is the type-erased handle a dependent holds on a dependency cell.
// Computed cells and watchers see their dependencies only through this
// interface, so a derivation can read cells of any element type.
type source interface {
	// ID returns the cell's unique identifier.
	ID() uint64

	// peekAny returns the cell's current value without registering a
	// dependency. For computed cells this goes through the memo cache.
	peekAny() any

	// attach registers a change-check callback keyed by the owner's ID.
	// No immediate call is made. Attaching the same owner twice is a no-op.
	attach(owner uint64, check func())

	// detach removes the callback registered under the owner's ID.
	detach(owner uint64)
}

// collector receives every cell read during a tracked evaluation.
// A nil collector suppresses tracking (see Untracked).
type collector func(src source)

// Hooks receives instrumentation callbacks from an engine. All fields are
// optional; nil fields are skipped. pkg/metrics installs a Prometheus-backed
// set of hooks.
type Hooks struct {
	// OnRecompute fires when a computed cell's getter is invoked.
	OnRecompute func(name string)

	// OnCacheHit fires when a computed cell read is served from its
	// snapshot cache without invoking the getter.
	OnCacheHit func(name string)

	// OnCacheMiss fires when no cached snapshot matched and a recompute
	// was required. Cells with memoization disabled do not report misses.
	OnCacheMiss func(name string)

	// OnNotify fires when a cell broadcasts a changed value, with the
	// number of subscribers invoked.
	OnNotify func(name string, subscribers int)

	// OnFlush fires when a batch flush completes, with the number of
	// update checks that ran.
	OnFlush func(checks int)
}

// pendingCheck is one coalesced update check queued during a batch.
type pendingCheck struct {
	id    uint64
	check func()
}

// Engine owns one reactive graph: the dependency-tracking collector stack,
// the batch state, and optional instrumentation hooks. Every cell belongs to
// exactly one engine.
//
// An engine is not safe for concurrent use. All cells of an engine must be
// read and written from a single goroutine.
type Engine struct {
	collectors []collector

	batchDepth int
	flushing   bool

	// pending holds update checks in first-enqueued order. The queue may
	// grow while it is being drained: checks triggered by notifications
	// during a flush join the same flush.
	pending []pendingCheck

	// enqueued dedupes pending checks by cell ID for the whole batch,
	// including the flush, so a cell is checked at most once per batch.
	enqueued map[uint64]struct{}

	hooks Hooks
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{enqueued: make(map[uint64]struct{})}
}

var defaultEngine = NewEngine()

// Default returns the shared engine used by the package-level constructors.
func Default() *Engine {
	return defaultEngine
}

// SetHooks installs instrumentation hooks, replacing any previous set.
func (e *Engine) SetHooks(h Hooks) {
	e.hooks = h
}

// pushCollector activates c for subsequent tracked reads. Collectors nest:
// only the innermost one receives reads, so a computed evaluating another
// computed attributes each read to the right dependent.
func (e *Engine) pushCollector(c collector) {
	e.collectors = append(e.collectors, c)
}

// popCollector deactivates the innermost collector. Callers must pair every
// push with a deferred pop so a panicking getter cannot leave a stale
// collector active.
func (e *Engine) popCollector() {
	e.collectors = e.collectors[:len(e.collectors)-1]
}

// collect reports a cell read to the innermost active collector, if any.
func (e *Engine) collect(src source) {
	if n := len(e.collectors); n > 0 {
		if c := e.collectors[n-1]; c != nil {
			c(src)
		}
	}
}

// request runs an update check now, or coalesces it into the active batch.
// Inside a batch (or while a flush is draining) the check is enqueued at
// most once per cell per batch; outside, it runs immediately.
func (e *Engine) request(id uint64, check func()) {
	if e.batchDepth > 0 || e.flushing {
		if _, ok := e.enqueued[id]; ok {
			return
		}
		e.enqueued[id] = struct{}{}
		e.pending = append(e.pending, pendingCheck{id: id, check: check})
		return
	}
	check()
}

// Batch defers and coalesces update checks for every write made inside fn.
// Batches nest; only the outermost call flushes. Each affected cell is
// checked exactly once per batch, in first-enqueued order, so N writes to
// one cell cost one notification check and a diamond-shaped graph notifies
// its sink once.
//
// The flush runs even if fn panics: writes that already landed must not go
// unnotified. The panic is then re-raised.
func (e *Engine) Batch(fn func()) {
	e.batchDepth++
	defer func() {
		e.batchDepth--
		if e.batchDepth == 0 {
			e.flush()
		}
	}()
	fn()
}

// Untracked runs fn with dependency tracking suppressed. Cell reads inside
// fn register no edges even when a computed evaluation is in flight. For a
// single read, Peek is the clearer choice.
func (e *Engine) Untracked(fn func()) {
	e.pushCollector(nil)
	defer e.popCollector()
	fn()
}

// flush drains the pending-check queue. Checks enqueued while draining run
// in the same pass, after the ones already queued.
func (e *Engine) flush() {
	if e.flushing {
		return
	}
	e.flushing = true
	ran := 0
	defer func() {
		e.flushing = false
		e.pending = nil
		e.enqueued = make(map[uint64]struct{})
		if e.hooks.OnFlush != nil {
			e.hooks.OnFlush(ran)
		}
	}()

	for i := 0; i < len(e.pending); i++ {
		e.pending[i].check()
		ran++
	}
}

// Batch runs fn in a batch on the default engine.
func Batch(fn func()) {
	defaultEngine.Batch(fn)
}

// BatchIn runs fn in a batch on eng and returns its result. It exists
// because methods cannot be generic; (*Engine).Batch covers the common
// no-result form.
func BatchIn[R any](eng *Engine, fn func() R) R {
	var out R
	eng.Batch(func() {
		out = fn()
	})
	return out
}

// Untracked runs fn with dependency tracking suppressed on the default
// engine.
func Untracked(fn func()) {
	defaultEngine.Untracked(fn)
}
