package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProcessingExpirer is the slice of the job service the processing-job
// monitor drives.
type ProcessingExpirer interface {
	FailExpiredProcessing(ctx context.Context, timeout time.Duration, maxRecoveries, batchSize int) (int, error)
}

// ProcessingJobMonitor terminally fails jobs stuck in processing past
// the processing timeout and records a failed result for each.
type ProcessingJobMonitor struct {
	jobs             ProcessingExpirer
	interval         time.Duration
	timeout          time.Duration
	maxRecoveries    int
	batchSize        int
	operationTimeout time.Duration
	wg               sync.WaitGroup
}

// NewProcessingJobMonitor creates the monitor.
func NewProcessingJobMonitor(jobs ProcessingExpirer, interval, timeout time.Duration, maxRecoveries, batchSize int) *ProcessingJobMonitor {
	return &ProcessingJobMonitor{
		jobs:             jobs,
		interval:         interval,
		timeout:          timeout,
		maxRecoveries:    maxRecoveries,
		batchSize:        batchSize,
		operationTimeout: 30 * time.Second,
	}
}

// Start runs the expiry loop until ctx is cancelled.
func (m *ProcessingJobMonitor) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "processing-job monitor started", "interval", m.interval, "timeout", m.timeout)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.wg.Go(func() {
				opCtx, cancel := context.WithTimeout(context.Background(), m.operationTimeout)
				defer cancel()
				if err := m.RunOnce(opCtx); err != nil {
					slog.ErrorContext(opCtx, "processing-job expiry cycle failed", "error", err)
				}
			})
		case <-ctx.Done():
			m.wg.Wait()
			slog.InfoContext(ctx, "processing-job monitor stopped")
			return nil
		}
	}
}

// RunOnce executes a single expiry cycle.
func (m *ProcessingJobMonitor) RunOnce(ctx context.Context) error {
	n, err := m.jobs.FailExpiredProcessing(ctx, m.timeout, m.maxRecoveries, m.batchSize)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.WarnContext(ctx, "failed stuck processing jobs", "count", n)
	}
	return nil
}
