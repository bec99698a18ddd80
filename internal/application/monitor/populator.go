// Package monitor holds the coordinator's periodic background loops.
// Each monitor owns its own ticker, catches its own cycle errors, and
// drives recovery through the same service methods the API uses, so
// tests can run a single cycle deterministically with RunOnce.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobPopulator is the slice of the job service the populator drives.
type JobPopulator interface {
	Populate(ctx context.Context, batchSize int, operation string) ([]string, error)
}

// Populator periodically creates batches of synthetic jobs.
type Populator struct {
	jobs             JobPopulator
	interval         time.Duration
	batchSize        int
	operationTimeout time.Duration
	wg               sync.WaitGroup
}

// NewPopulator creates a populator creating batchSize jobs every interval.
func NewPopulator(jobs JobPopulator, interval time.Duration, batchSize int) *Populator {
	return &Populator{
		jobs:             jobs,
		interval:         interval,
		batchSize:        batchSize,
		operationTimeout: 30 * time.Second,
	}
}

// Start runs the populate loop until ctx is cancelled, then waits for
// the in-flight cycle to finish.
func (p *Populator) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "job populator started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.wg.Go(func() {
				opCtx, cancel := context.WithTimeout(context.Background(), p.operationTimeout)
				defer cancel()
				if err := p.RunOnce(opCtx); err != nil {
					slog.ErrorContext(opCtx, "populate cycle failed", "error", err)
				}
			})
		case <-ctx.Done():
			p.wg.Wait()
			slog.InfoContext(ctx, "job populator stopped")
			return nil
		}
	}
}

// RunOnce executes a single populate cycle.
func (p *Populator) RunOnce(ctx context.Context) error {
	ids, err := p.jobs.Populate(ctx, p.batchSize, "")
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		slog.InfoContext(ctx, "populated jobs", "count", len(ids))
	}
	return nil
}
