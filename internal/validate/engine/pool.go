package engine

import (
	"golang.org/x/sync/errgroup"
)

// runBounded runs fn(0..n-1) across at most workers goroutines, blocking
// until every call returns. Validators are documented as never panicking or
// returning an error from the plugin's perspective (ValidateField recovers
// panics internally), so runBounded does not propagate errors — it exists
// purely to bound fan-out concurrency while the caller writes each fn(i)'s
// result into a pre-sized slice at index i, keeping output order
// independent of completion order.
func runBounded(workers, n int, fn func(i int)) {
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		i := i

		g.Go(func() error {
			fn(i)
			return nil
		})
	}

	_ = g.Wait()
}
