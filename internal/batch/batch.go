// Package batch distributes per-entry extraction work across a worker pool.
//
// Entries are split into contiguous index ranges up front, one per worker.
package batch

import (
	"errors"
	"fmt"

	"github.com/meigma/kundli/internal/workpool"
)

// Range is the half-open index range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in r.
func (r Range) Len() int {
	return r.End - r.Start
}

// Partition splits [0, n) into at most workers contiguous ranges. Each range
// holds n/workers indices and the first n%workers ranges hold one more.
// Empty ranges are omitted, so more workers than items yields n ranges.
func Partition(n, workers int) []Range {
	if n <= 0 {
		return nil
	}
	workers = max(workers, 1)
	per, extra := n/workers, n%workers

	ranges := make([]Range, 0, min(workers, n))
	start := 0
	for w := range workers {
		size := per
		if w < extra {
			size++
		}
		if size == 0 {
			break
		}
		ranges = append(ranges, Range{Start: start, End: start + size})
		start += size
	}
	return ranges
}

// Process calls fn for every index in [0, n), submitting one task per
// non-empty partition range to pool. It waits for all tasks. fn failures do
// not stop the remaining indices; they are joined in index order.
func Process(pool workpool.Submitter, n, workers int, fn func(i int) error) error {
	ranges := Partition(n, workers)
	errs := make([]error, n)

	futures := make([]*workpool.Future, 0, len(ranges))
	var submitErr error
	for _, r := range ranges {
		f, err := pool.Submit(func() error {
			for i := r.Start; i < r.End; i++ {
				errs[i] = fn(i)
			}
			return nil
		})
		if err != nil {
			submitErr = fmt.Errorf("batch: submit range [%d,%d): %w", r.Start, r.End, err)
			break
		}
		futures = append(futures, f)
	}

	// tasks recover panics into their future's error
	waitErr := workpool.WaitAll(futures)
	return errors.Join(submitErr, waitErr, errors.Join(errs...))
}
