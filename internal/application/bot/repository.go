package bot

import (
	"context"
	"time"

	"github.com/rezkam/flotilla/internal/domain"
)

// Repository defines storage operations for bot lifecycle management.
type Repository interface {
	// Atomic executes fn inside one transaction. The Repository passed to
	// fn routes every call through that transaction.
	Atomic(ctx context.Context, fn func(repo Repository) error) error

	// CreateBot inserts a new bot row.
	CreateBot(ctx context.Context, bot *domain.Bot) error

	// GetBot retrieves a live (not soft-deleted) bot.
	// Returns domain.ErrBotNotFound if the bot is unknown or deleted.
	GetBot(ctx context.Context, id string) (*domain.Bot, error)

	// GetBotForUpdateAny retrieves a bot including soft-deleted rows and
	// locks it for the remainder of the transaction.
	// Returns domain.ErrBotNotFound if no row exists at all.
	GetBotForUpdateAny(ctx context.Context, id string) (*domain.Bot, error)

	// ListBots returns bots ordered by creation time, optionally
	// including soft-deleted rows.
	ListBots(ctx context.Context, includeDeleted bool) ([]*domain.Bot, error)

	// UpdateHeartbeat refreshes last_heartbeat_at on a live bot.
	// Returns domain.ErrBotNotFound if the bot is unknown or deleted.
	UpdateHeartbeat(ctx context.Context, id string, now time.Time) error

	// SetAssignedOperation sets or clears the pinned operation on a live
	// bot. Returns domain.ErrBotNotFound if the bot is unknown or deleted.
	SetAssignedOperation(ctx context.Context, id string, op *string) error

	// ReviveBot clears deleted_at, resets status to idle, and refreshes
	// the heartbeat. The pinned operation is left untouched.
	ReviveBot(ctx context.Context, id string, now time.Time) error

	// SoftDeleteBot marks the bot deleted and drops its job binding.
	SoftDeleteBot(ctx context.Context, id string, now time.Time) error

	// ResetBot clears the job binding, sets status idle, and resets
	// health tracking to normal.
	ResetBot(ctx context.Context, id string) error

	// MarkStuckBots flags live bots that heartbeated after
	// heartbeatAfter while their processing job started before
	// processingSince. Already flagged bots are skipped. Returns the
	// flags applied.
	MarkStuckBots(ctx context.Context, processingSince, heartbeatAfter, now time.Time) ([]domain.StuckBot, error)

	// ClearRecoveredBots resets the health flag on bots whose bound job
	// is gone or no longer overdue. Returns how many were cleared.
	ClearRecoveredBots(ctx context.Context, processingSince, now time.Time) (int, error)

	// === Held-Job Handoff ===
	// A retiring bot's held job changes state in the same transaction as
	// the bot row, so a concurrent claim can never observe the gap.

	// GetJobForUpdate retrieves a job and locks its row for the
	// remainder of the transaction.
	// Returns domain.ErrJobNotFound if the job doesn't exist.
	GetJobForUpdate(ctx context.Context, id string) (*domain.Job, error)

	// ReleaseJob returns a job to pending: clears the claimant, bumps
	// attempts, and records the release reason in the error column.
	ReleaseJob(ctx context.Context, jobID, reason string, now time.Time) error

	// FinishJob transitions a job to a terminal status and records the
	// finish timestamp and error text.
	FinishJob(ctx context.Context, jobID string, status domain.JobStatus, errText *string, now time.Time) error

	// InsertResult writes one immutable result row.
	InsertResult(ctx context.Context, res *domain.Result) error
}
