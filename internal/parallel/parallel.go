// Package parallel runs independent per-item work across CPU cores.
package parallel

import (
	"runtime"
	"sync"
)

// ForEach calls fn for every index in [0, items). Items are split into one
// contiguous chunk per CPU core. When items does not exceed threshold the work
// runs sequentially on the calling goroutine.
//
// fn must be safe to call concurrently for distinct indices. The returned
// error is the one reported for the lowest failing index; chunks stop at
// their first failure.
func ForEach(items, threshold int, fn func(i int) error) error {
	if items <= 0 {
		return nil
	}
	if items <= threshold {
		for i := 0; i < items; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	workers := min(runtime.NumCPU(), items)
	chunkSize := (items + workers - 1) / workers
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, items)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if err := fn(i); err != nil {
					errs[w] = err
					return
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
