// Package parallel provides the worker fan-out used to grow forest trees
// concurrently.
package parallel

import (
	"runtime"
	"sync"
)

// For runs fn(i) for every i in [0, items) across at most NumCPU worker
// goroutines, each worker taking a contiguous chunk of indices. The forest
// driver grows one tree per index; fn must not share mutable state across
// indices.
func For(items int, fn func(i int)) {
	if items <= 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
