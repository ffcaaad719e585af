package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cellflow-dev/cellflow/pkg/cell"
)

func benchCmd() *cobra.Command {
	var (
		writes int
		depth  int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run engine micro-benchmarks",
		Long: `Measure raw engine throughput: plain writes with a subscriber,
writes through a chain of computed cells, and batched writes through
a diamond-shaped graph.`,
		Run: func(cmd *cobra.Command, args []string) {
			benchWrites(writes)
			benchChain(writes, depth)
			benchDiamond(writes)
		},
	}

	cmd.Flags().IntVarP(&writes, "writes", "n", 1_000_000, "Writes per scenario")
	cmd.Flags().IntVarP(&depth, "depth", "d", 10, "Computed chain depth")

	return cmd
}

func report(name string, n int, elapsed time.Duration) {
	fmt.Printf("  %-16s %10d ops in %8s  (%.0f ops/sec)\n",
		name, n, elapsed.Round(time.Millisecond), float64(n)/elapsed.Seconds())
}

func benchWrites(n int) {
	eng := cell.NewEngine()
	w := cell.NewIn(eng, 0)
	sink := 0
	defer w.Observe(func(v int) { sink = v })()

	start := time.Now()
	for i := 1; i <= n; i++ {
		w.Set(i)
	}
	report("write+notify", n, time.Since(start))
	_ = sink
}

func benchChain(n, depth int) {
	if depth < 1 {
		depth = 1
	}
	eng := cell.NewEngine()
	w := cell.NewIn(eng, 0)

	var tail interface{ Get() int } = w
	for i := 0; i < depth; i++ {
		prev := tail
		tail = cell.NewComputedIn(eng, func() int { return prev.Get() + 1 })
	}
	sink := 0
	c := tail.(*cell.Computed[int])
	defer c.Observe(func(v int) { sink = v })()

	start := time.Now()
	for i := 1; i <= n; i++ {
		w.Set(i)
	}
	report(fmt.Sprintf("chain depth=%d", depth), n, time.Since(start))
	_ = sink
}

func benchDiamond(n int) {
	eng := cell.NewEngine()
	w := cell.NewIn(eng, 0)
	left := cell.NewComputedIn(eng, func() int { return w.Get() * 2 })
	right := cell.NewComputedIn(eng, func() int { return w.Get() * 3 })
	sum := cell.NewComputedIn(eng, func() int { return left.Get() + right.Get() })

	sink := 0
	defer sum.Observe(func(v int) { sink = v })()

	start := time.Now()
	for i := 1; i <= n; i++ {
		eng.Batch(func() {
			w.Set(i)
			w.Set(i + 1)
		})
	}
	report("diamond batch", n, time.Since(start))
	_ = sink
}
