package cell

// Cleanup is an optional function returned by a watcher's effect. It runs
// immediately before the next rerun and once more on disposal.
type Cleanup func()

// WatchOption configures a watcher.
type WatchOption func(*watcher)

// WatchName sets a diagnostic name for the watcher.
func WatchName(name string) WatchOption {
	return func(w *watcher) {
		w.name = name
	}
}

// watcher is an eager, always-fresh subscriber: computed-cell dependency
// discovery with memoization disabled and a permanent subscription from
// creation until disposal.
type watcher struct {
	id   uint64
	eng  *Engine
	name string

	fn      func() Cleanup
	cleanup Cleanup

	live     map[uint64]source
	disposed bool

	// notifyEdge routes reruns through the engine so the effect runs at
	// most once per batch no matter how many dependencies changed.
	notifyEdge func()
}

// Watch runs fn once immediately on the default engine and reruns it
// whenever any cell it read changes. See WatchIn.
func Watch(fn func() Cleanup, opts ...WatchOption) func() {
	return WatchIn(defaultEngine, fn, opts...)
}

// WatchIn runs fn once immediately on eng, recording every cell read as a
// dependency, and reruns it (rediscovering dependencies) whenever one of
// them changes. A Cleanup returned by fn runs before each rerun and on
// disposal. The returned disposer detaches all edges and runs the last
// cleanup; it is idempotent.
func WatchIn(eng *Engine, fn func() Cleanup, opts ...WatchOption) func() {
	w := &watcher{
		id:   nextID(),
		eng:  eng,
		fn:   fn,
		live: make(map[uint64]source),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.notifyEdge = func() { w.eng.request(w.id, w.run) }
	w.run()
	return w.dispose
}

// run executes the effect under a fresh collector, attaching edges for
// every cell read and pruning edges to cells not read this time.
func (w *watcher) run() {
	if w.disposed {
		return
	}
	if w.cleanup != nil {
		w.cleanup()
		w.cleanup = nil
	}

	prev := w.live
	w.live = make(map[uint64]source)
	w.eng.pushCollector(func(src source) {
		id := src.ID()
		if _, ok := w.live[id]; ok {
			return
		}
		src.attach(w.id, w.notifyEdge)
		w.live[id] = src
	})

	func() {
		defer w.eng.popCollector()
		w.cleanup = w.fn()
	}()

	for id, s := range prev {
		if _, ok := w.live[id]; !ok {
			s.detach(w.id)
		}
	}
}

// dispose detaches every edge and runs the last cleanup.
func (w *watcher) dispose() {
	if w.disposed {
		return
	}
	w.disposed = true
	for _, s := range w.live {
		s.detach(w.id)
	}
	w.live = nil
	if w.cleanup != nil {
		w.cleanup()
		w.cleanup = nil
	}
}
