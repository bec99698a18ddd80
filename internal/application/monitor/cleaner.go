package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// historySize bounds the in-memory run history.
const historySize = 10

// CleanupRepository defines the storage operations the retention
// cleaner needs. Count methods back dry runs.
type CleanupRepository interface {
	// DeleteExpiredBots removes bot rows soft-deleted before cutoff.
	// Returns how many rows were removed.
	DeleteExpiredBots(ctx context.Context, cutoff time.Time) (int, error)

	// CountExpiredBots counts bot rows soft-deleted before cutoff.
	CountExpiredBots(ctx context.Context, cutoff time.Time) (int, error)

	// PurgeOrphanedResults removes result rows whose processing bot no
	// longer exists. Returns how many rows were removed.
	PurgeOrphanedResults(ctx context.Context) (int, error)

	// CountOrphanedResults counts result rows whose processing bot no
	// longer exists.
	CountOrphanedResults(ctx context.Context) (int, error)
}

// CleanupReport describes one cleanup run.
type CleanupReport struct {
	StartedAt     time.Time `json:"started_at"`
	DryRun        bool      `json:"dry_run"`
	BotsDeleted   int       `json:"bots_deleted"`
	ResultsPurged int       `json:"results_purged"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
}

// RetentionCleaner physically removes bots past the retention window and
// purges result rows orphaned by those removals. It keeps the last ten
// run reports in memory for the admin API.
type RetentionCleaner struct {
	repo      CleanupRepository
	interval  time.Duration
	retention time.Duration
	wg        sync.WaitGroup

	now func() time.Time

	mu      sync.Mutex
	history []CleanupReport
	nextRun time.Time
}

// NewRetentionCleaner creates a cleaner removing bots soft-deleted more
// than retention ago, running every interval.
func NewRetentionCleaner(repo CleanupRepository, interval, retention time.Duration) *RetentionCleaner {
	return &RetentionCleaner{
		repo:      repo,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Start runs the cleanup loop until ctx is cancelled.
func (c *RetentionCleaner) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "retention cleaner started", "interval", c.interval, "retention", c.retention)

	c.setNextRun(c.now().Add(c.interval))
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.setNextRun(c.now().Add(c.interval))
			c.wg.Go(func() {
				opCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				if _, err := c.RunOnce(opCtx, false); err != nil {
					slog.ErrorContext(opCtx, "cleanup cycle failed", "error", err)
				}
			})
		case <-ctx.Done():
			c.wg.Wait()
			slog.InfoContext(ctx, "retention cleaner stopped")
			return nil
		}
	}
}

// RunOnce executes a single cleanup run. In dry-run mode it only counts
// what a real run would remove. Every run, including failures, is
// recorded in the history.
func (c *RetentionCleaner) RunOnce(ctx context.Context, dryRun bool) (CleanupReport, error) {
	started := c.now().UTC()
	cutoff := started.Add(-c.retention)

	report := CleanupReport{StartedAt: started, DryRun: dryRun}

	var runErr error
	if dryRun {
		report.BotsDeleted, runErr = c.repo.CountExpiredBots(ctx, cutoff)
		if runErr == nil {
			report.ResultsPurged, runErr = c.repo.CountOrphanedResults(ctx)
		}
	} else {
		report.BotsDeleted, runErr = c.repo.DeleteExpiredBots(ctx, cutoff)
		if runErr == nil {
			report.ResultsPurged, runErr = c.repo.PurgeOrphanedResults(ctx)
		}
	}

	report.DurationMS = time.Since(started).Milliseconds()
	if runErr != nil {
		report.Error = runErr.Error()
	}

	c.record(report)

	if runErr != nil {
		return report, runErr
	}
	if report.BotsDeleted > 0 || report.ResultsPurged > 0 {
		slog.InfoContext(ctx, "cleanup run finished",
			"dry_run", dryRun, "bots_deleted", report.BotsDeleted, "results_purged", report.ResultsPurged)
	}
	return report, nil
}

// History returns the most recent runs, newest first.
func (c *RetentionCleaner) History() []CleanupReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CleanupReport, len(c.history))
	copy(out, c.history)
	return out
}

// NextRun returns when the next scheduled run fires. Zero until Start
// has been called.
func (c *RetentionCleaner) NextRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextRun
}

func (c *RetentionCleaner) setNextRun(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRun = t
}

func (c *RetentionCleaner) record(report CleanupReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append([]CleanupReport{report}, c.history...)
	if len(c.history) > historySize {
		c.history = c.history[:historySize]
	}
}
