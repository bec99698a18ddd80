package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rezkam/flotilla/internal/domain"
)

// HealthChecker is the slice of the bot service the health monitor
// drives.
type HealthChecker interface {
	CheckHealth(ctx context.Context, stuckAfter time.Duration) ([]domain.StuckBot, error)
}

// BotHealthMonitor flags bots that keep heartbeating while their job
// sits in processing past the timeout, and clears the flag once the job
// moves on. It only marks health; recovery stays with the job monitors.
type BotHealthMonitor struct {
	bots             HealthChecker
	interval         time.Duration
	stuckAfter       time.Duration
	operationTimeout time.Duration
	wg               sync.WaitGroup
}

// NewBotHealthMonitor creates the monitor. stuckAfter is how long a job
// may sit in processing before its bot is flagged.
func NewBotHealthMonitor(bots HealthChecker, interval, stuckAfter time.Duration) *BotHealthMonitor {
	return &BotHealthMonitor{
		bots:             bots,
		interval:         interval,
		stuckAfter:       stuckAfter,
		operationTimeout: 30 * time.Second,
	}
}

// Start runs the health sweep loop until ctx is cancelled.
func (m *BotHealthMonitor) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "bot-health monitor started", "interval", m.interval, "stuck_after", m.stuckAfter)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.wg.Go(func() {
				opCtx, cancel := context.WithTimeout(context.Background(), m.operationTimeout)
				defer cancel()
				if err := m.RunOnce(opCtx); err != nil {
					slog.ErrorContext(opCtx, "bot-health cycle failed", "error", err)
				}
			})
		case <-ctx.Done():
			m.wg.Wait()
			slog.InfoContext(ctx, "bot-health monitor stopped")
			return nil
		}
	}
}

// RunOnce executes a single health sweep.
func (m *BotHealthMonitor) RunOnce(ctx context.Context) error {
	marked, err := m.bots.CheckHealth(ctx, m.stuckAfter)
	if err != nil {
		return err
	}
	for _, mark := range marked {
		slog.WarnContext(ctx, "bot potentially stuck", "bot_id", mark.BotID, "job_id", mark.JobID)
	}
	return nil
}
