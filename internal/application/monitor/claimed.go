package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ClaimRecoverer is the slice of the job service the claimed-job monitor
// drives.
type ClaimRecoverer interface {
	RecoverExpiredClaimed(ctx context.Context, timeout time.Duration, maxRecoveries, batchSize int) (int, error)
}

// ClaimedJobMonitor releases jobs stuck in claimed back to pending after
// the claim timeout, freeing work held by bots that died between claim
// and start.
type ClaimedJobMonitor struct {
	jobs             ClaimRecoverer
	interval         time.Duration
	timeout          time.Duration
	maxRecoveries    int
	batchSize        int
	operationTimeout time.Duration
	wg               sync.WaitGroup
}

// NewClaimedJobMonitor creates the monitor. timeout is how long a claim
// may sit before recovery; each cycle recovers at most maxRecoveries
// jobs in batches of batchSize.
func NewClaimedJobMonitor(jobs ClaimRecoverer, interval, timeout time.Duration, maxRecoveries, batchSize int) *ClaimedJobMonitor {
	return &ClaimedJobMonitor{
		jobs:             jobs,
		interval:         interval,
		timeout:          timeout,
		maxRecoveries:    maxRecoveries,
		batchSize:        batchSize,
		operationTimeout: 30 * time.Second,
	}
}

// Start runs the recovery loop until ctx is cancelled.
func (m *ClaimedJobMonitor) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "claimed-job monitor started", "interval", m.interval, "timeout", m.timeout)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.wg.Go(func() {
				opCtx, cancel := context.WithTimeout(context.Background(), m.operationTimeout)
				defer cancel()
				if err := m.RunOnce(opCtx); err != nil {
					slog.ErrorContext(opCtx, "claimed-job recovery cycle failed", "error", err)
				}
			})
		case <-ctx.Done():
			m.wg.Wait()
			slog.InfoContext(ctx, "claimed-job monitor stopped")
			return nil
		}
	}
}

// RunOnce executes a single recovery cycle.
func (m *ClaimedJobMonitor) RunOnce(ctx context.Context) error {
	n, err := m.jobs.RecoverExpiredClaimed(ctx, m.timeout, m.maxRecoveries, m.batchSize)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "released stuck claimed jobs", "count", n)
	}
	return nil
}
