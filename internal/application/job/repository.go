package job

import (
	"context"
	"time"

	"github.com/rezkam/flotilla/internal/domain"
)

// ListParams filters and paginates job listings.
type ListParams struct {
	// Status filters to one status when non-empty.
	Status domain.JobStatus

	Limit  int
	Offset int
}

// Repository defines storage operations for the job lifecycle.
// Claim-path methods lock rows and must run inside Atomic.
type Repository interface {
	// Atomic executes fn inside one transaction. The Repository passed to
	// fn routes every call through that transaction; it must not be
	// retained after fn returns.
	Atomic(ctx context.Context, fn func(repo Repository) error) error

	// === Job Operations ===

	// CreateJob inserts a new pending job.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by ID.
	// Returns domain.ErrJobNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// GetJobForUpdate retrieves a job and locks its row for the
	// remainder of the transaction.
	// Returns domain.ErrJobNotFound if the job doesn't exist.
	GetJobForUpdate(ctx context.Context, id string) (*domain.Job, error)

	// ListJobs returns jobs ordered by status priority (pending first,
	// failed last) then created_at descending.
	ListJobs(ctx context.Context, params ListParams) ([]*domain.Job, error)

	// CountJobsByStatus returns the number of jobs per status.
	CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// CountPendingJobs returns the size of the pending backlog.
	CountPendingJobs(ctx context.Context) (int, error)

	// ClaimOldestPending atomically claims the oldest pending job for
	// botID, skipping rows locked by concurrent claimers. An empty
	// operation matches any kind. Returns (nil, nil) when no unlocked
	// pending job matches.
	ClaimOldestPending(ctx context.Context, botID, operation string, now time.Time) (*domain.Job, error)

	// MarkJobProcessing transitions a claimed job to processing.
	MarkJobProcessing(ctx context.Context, jobID string, now time.Time) error

	// FinishJob transitions a job to a terminal status and records the
	// finish timestamp and error text.
	FinishJob(ctx context.Context, jobID string, status domain.JobStatus, errText *string, now time.Time) error

	// ReleaseJob returns a job to pending: clears the claimant, bumps
	// attempts, and records the release reason in the error column.
	ReleaseJob(ctx context.Context, jobID, reason string, now time.Time) error

	// ListExpiredClaimed returns ids of claimed jobs whose claimed_at is
	// older than cutoff, oldest first, at most limit.
	ListExpiredClaimed(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// ListExpiredProcessing returns ids of processing jobs whose
	// started_at is older than cutoff, oldest first, at most limit.
	ListExpiredProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// === Result Operations ===

	// InsertResult writes one immutable result row.
	InsertResult(ctx context.Context, res *domain.Result) error

	// GetResultByJobID retrieves the result recorded for a job.
	// Returns domain.ErrJobNotFound if no result exists.
	GetResultByJobID(ctx context.Context, jobID string) (*domain.Result, error)

	// === Bot Binding Operations ===

	// GetBotForUpdate retrieves a live bot and locks its row.
	// Returns domain.ErrBotNotFound if the bot is unknown or soft-deleted.
	GetBotForUpdate(ctx context.Context, id string) (*domain.Bot, error)

	// BindBotToJob points the bot at the job, marks it busy, and pins
	// assigned_operation to the job's operation if it was unset.
	BindBotToJob(ctx context.Context, botID, jobID, operation string) error

	// ClearBotJob drops the bot's job binding and marks it idle.
	ClearBotJob(ctx context.Context, botID string) error
}
