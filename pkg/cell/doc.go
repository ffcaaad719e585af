// Package cell implements a fine-grained reactive value graph: writable
// cells, lazily memoized computed cells, coalescing batches, and eager
// watchers.
//
// Dependencies are discovered at evaluation time. While a computed cell's
// getter (or a watcher's effect function) runs, every cell read through
// Get is attributed to it and becomes a dependency edge. Edges are only
// materialized while the dependent cell is itself observed; dropping the
// last subscriber prunes the edges but keeps the memo cache, so a later
// resubscribe can resume without recomputing.
//
// Each graph is owned by an Engine. The package-level constructors use a
// shared default engine for convenience; the ...In variants take an explicit
// engine so independent graphs (including tests) never share tracking state.
//
// An engine and every cell attached to it must be driven from a single
// goroutine. Nothing in the graph blocks or suspends, so confinement is
// cheap: funnel external events through one loop (see pkg/live for an
// example). The engine performs no locking of its own.
//
// Example:
//
//	price := cell.New(10.0)
//	qty := cell.New(3)
//	total := cell.NewComputed(func() float64 {
//	    return price.Get() * float64(qty.Get())
//	})
//	stop := cell.Watch(func() cell.Cleanup {
//	    fmt.Println("total:", total.Get())
//	    return nil
//	})
//	cell.Batch(func() {
//	    price.Set(12.5)
//	    qty.Set(4)
//	})
//	stop()
package cell
