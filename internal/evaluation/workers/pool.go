// Package workers runs indexed jobs across a fixed pool of goroutines and
// collects their results in index order.
package workers

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/sharpescan/internal/progress"
)

// fallbackWorkers is used when the logical CPU count cannot be read.
const fallbackWorkers = 10

// WorkerPool manages a pool of worker goroutines for parallel evaluation.
type WorkerPool struct {
	numWorkers int
	queueSize  int
}

// DefaultWorkers returns the number of logical CPUs, or 10 when it cannot be
// determined.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return fallbackWorkers
	}
	return n
}

// NewWorkerPool creates a pool with numWorkers goroutines. A non-positive
// count falls back to DefaultWorkers.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers()
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		queueSize:  2 * numWorkers,
	}
}

// Workers returns the configured worker count.
func (wp *WorkerPool) Workers() int { return wp.numWorkers }

// Func processes one job. index is the job's position in the input sequence.
type Func[J, R any] func(ctx context.Context, index int, job J) (R, error)

type jobItem[J any] struct {
	index int
	job   J
}

type resultItem[R any] struct {
	index int
	value R
}

// Run pulls (index, job) pairs from jobs, hands them to the pool through a
// bounded queue and returns the results ordered by index. Indices must be
// 0..total-1, each appearing once.
//
// The first job error cancels the remaining work and is returned; so is the
// cancellation of ctx. Cancellation is checked between jobs, never inside one.
// cb receives one update per completed job; total is only used for reporting
// and preallocation.
func Run[J, R any](
	ctx context.Context,
	wp *WorkerPool,
	jobs iter.Seq2[int, J],
	total int,
	fn Func[J, R],
	cb progress.Callback,
) ([]R, error) {
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan jobItem[J], wp.queueSize)
	out := make(chan resultItem[R], wp.queueSize)

	g.Go(func() error {
		defer close(queue)
		for index, job := range jobs {
			select {
			case queue <- jobItem[J]{index: index, job: job}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	numActualWorkers := wp.numWorkers
	if total > 0 && total < numActualWorkers {
		numActualWorkers = total
	}

	var wg sync.WaitGroup
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for item := range queue {
				if err := gctx.Err(); err != nil {
					return err
				}
				value, err := fn(gctx, item.index, item.job)
				if err != nil {
					return fmt.Errorf("job %d: %w", item.index, err)
				}
				select {
				case out <- resultItem[R]{index: item.index, value: value}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]R, 0, max(total, 0))
	completed := 0
	for r := range out {
		for len(results) <= r.index {
			var zero R
			results = append(results, zero)
		}
		results[r.index] = r.value
		completed++
		progress.Call(cb, completed, total, fmt.Sprintf("Evaluated %d/%d", completed, total))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
