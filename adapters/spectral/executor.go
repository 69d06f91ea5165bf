package spectral

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
)

// channelExecutor fans per-channel work out over a bounded number of
// goroutines. Results land at their channel index, so output order never
// depends on scheduling.
type channelExecutor struct {
	sem        *semaphore.Weighted
	maxTimeout time.Duration
}

func newChannelExecutor(workers int) *channelExecutor {
	if workers < 1 {
		workers = 1
	}
	return &channelExecutor{
		sem:        semaphore.NewWeighted(int64(workers)),
		maxTimeout: 5 * time.Minute, // Maximum time to wait for capacity
	}
}

type channelJob struct {
	index    int
	data     []float64
	err      error
	duration time.Duration
}

// run applies fn to every row whose pick flag is set; other rows are
// copied through.
func (ce *channelExecutor) run(ctx context.Context, rows [][]float64, picks []bool, fn func([]float64) []float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	jobs := make(chan channelJob, len(rows))
	launched := 0

	for i, row := range rows {
		if !picks[i] {
			out[i] = append([]float64(nil), row...)
			continue
		}
		launched++
		go func(index int, x []float64) {
			execCtx, cancel := context.WithTimeout(ctx, ce.maxTimeout)
			defer cancel()

			if err := ce.sem.Acquire(execCtx, 1); err != nil {
				jobs <- channelJob{index: index, err: err}
				return
			}
			start := time.Now()
			y := fn(x)
			ce.sem.Release(1)
			jobs <- channelJob{index: index, data: y, duration: time.Since(start)}
		}(i, row)
	}

	var firstErr error
	var busy time.Duration
	for i := 0; i < launched; i++ {
		job := <-jobs
		if job.err != nil {
			if firstErr == nil {
				firstErr = job.err
			}
			continue
		}
		out[job.index] = job.data
		busy += job.duration
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if launched > 0 {
		log.Printf("[Spectral] processed %d channels (cpu %v)", launched, busy)
	}
	return out, nil
}
