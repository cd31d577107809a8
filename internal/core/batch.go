package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GridLoader produces the grid of one batch item, usually by reading a file.
type GridLoader func(ctx context.Context) (RawGrid, error)

// BatchItem is one file of a batch run.
type BatchItem struct {
	FileName string
	Profile  string
	Load     GridLoader
}

// RunBatch imports several files concurrently. Parallelism is bounded by the
// limiter and queued files wait for a slot as long as ctx allows; results
// keep the order of items. A file that fails to load yields a rejected Result
// rather than aborting the batch. The returned error is non-nil only when ctx
// is cancelled.
func (pl *Pipeline) RunBatch(ctx context.Context, limiter *RunLimiter, items []BatchItem) ([]*Result, error) {
	if limiter == nil {
		limiter = NewRunLimiter(DefaultMaxConcurrentRuns, DefaultMaxWaitTime)
	}
	results := make([]*Result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		if err := limiter.AcquireContext(gctx); err != nil {
			_ = g.Wait()
			return results, err
		}
		g.Go(func() error {
			defer limiter.Release()

			grid, err := item.Load(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i] = loadFailure(item, err)
				pl.logger.Warn("file could not be read", "file", item.FileName, "error", err)
				return nil
			}
			results[i] = pl.Run(grid, Options{Profile: item.Profile, FileName: item.FileName})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func loadFailure(item BatchItem, err error) *Result {
	return &Result{
		FileName:    item.FileName,
		WorkerStats: map[string]*WorkerStat{},
		Failure:     failureFrom("FileError", "Unreadable", err),
	}
}
