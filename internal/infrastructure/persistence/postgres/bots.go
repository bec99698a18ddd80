package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rezkam/flotilla/internal/domain"
)

const botColumns = `id, status, current_job_id, assigned_operation, last_heartbeat_at, created_at, deleted_at, health_status, stuck_job_id, health_checked_at`

func scanBot(row pgx.Row) (*domain.Bot, error) {
	var b domain.Bot
	err := row.Scan(
		&b.ID, &b.Status, &b.CurrentJobID, &b.AssignedOperation,
		&b.LastHeartbeatAt, &b.CreatedAt, &b.DeletedAt,
		&b.HealthStatus, &b.StuckJobID, &b.HealthCheckedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBot inserts a new bot row.
func (s *Store) CreateBot(ctx context.Context, b *domain.Bot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bots (id, status, assigned_operation, last_heartbeat_at, created_at, health_status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Status, b.AssignedOperation, b.LastHeartbeatAt, b.CreatedAt, b.HealthStatus,
	)
	return mapError(err)
}

// GetBot retrieves a live (not soft-deleted) bot.
func (s *Store) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE id = $1 AND deleted_at IS NULL`, id)
	b, err := scanBot(row)
	if err != nil {
		return nil, noRows(err, domain.ErrBotNotFound)
	}
	return b, nil
}

// GetBotForUpdate retrieves a live bot and locks its row. The lock
// serializes concurrent claims by the same bot: the second claimer
// waits here, then sees the binding the first one made.
func (s *Store) GetBotForUpdate(ctx context.Context, id string) (*domain.Bot, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	b, err := scanBot(row)
	if err != nil {
		return nil, noRows(err, domain.ErrBotNotFound)
	}
	return b, nil
}

// GetBotForUpdateAny retrieves a bot including soft-deleted rows and
// locks it.
func (s *Store) GetBotForUpdateAny(ctx context.Context, id string) (*domain.Bot, error) {
	row := s.db.QueryRow(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1 FOR UPDATE`, id)
	b, err := scanBot(row)
	if err != nil {
		return nil, noRows(err, domain.ErrBotNotFound)
	}
	return b, nil
}

// ListBots returns bots ordered by creation time.
func (s *Store) ListBots(ctx context.Context, includeDeleted bool) ([]*domain.Bot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+botColumns+`
		FROM bots
		WHERE $1 OR deleted_at IS NULL
		ORDER BY created_at, id`,
		includeDeleted,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var bots []*domain.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, mapError(err)
		}
		bots = append(bots, b)
	}
	return bots, mapError(rows.Err())
}

// UpdateHeartbeat refreshes last_heartbeat_at on a live bot.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE bots SET last_heartbeat_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

// SetAssignedOperation sets or clears the pinned operation on a live bot.
func (s *Store) SetAssignedOperation(ctx context.Context, id string, op *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE bots SET assigned_operation = $2 WHERE id = $1 AND deleted_at IS NULL`, id, op)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

// ReviveBot clears deleted_at, resets status to idle, and refreshes the
// heartbeat. The pinned operation is intentionally left untouched.
func (s *Store) ReviveBot(ctx context.Context, id string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE bots
		SET deleted_at = NULL,
		    status = 'idle',
		    last_heartbeat_at = $2,
		    health_status = 'normal',
		    stuck_job_id = NULL
		WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

// SoftDeleteBot marks the bot deleted and drops its job binding.
func (s *Store) SoftDeleteBot(ctx context.Context, id string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE bots
		SET deleted_at = $2, current_job_id = NULL, status = 'idle'
		WHERE id = $1 AND deleted_at IS NULL`,
		id, now,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

// ResetBot clears the job binding and health tracking on a live bot.
func (s *Store) ResetBot(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE bots
		SET current_job_id = NULL,
		    status = 'idle',
		    health_status = 'normal',
		    stuck_job_id = NULL
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

// MarkStuckBots flags live bots that are still heartbeating while their
// processing job started before processingSince. A dead bot is the job
// monitors' problem; this flag is for the bot that is alive but not
// making progress.
func (s *Store) MarkStuckBots(ctx context.Context, processingSince, heartbeatAfter, now time.Time) ([]domain.StuckBot, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE bots b
		SET health_status = 'potentially_stuck',
		    stuck_job_id = j.id,
		    health_checked_at = $3
		FROM jobs j
		WHERE b.id = j.claimed_by
		  AND b.deleted_at IS NULL
		  AND j.status = 'processing'
		  AND j.started_at < $1
		  AND b.last_heartbeat_at > $2
		  AND b.health_status <> 'potentially_stuck'
		RETURNING b.id, j.id`,
		processingSince, heartbeatAfter, now,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var marked []domain.StuckBot
	for rows.Next() {
		var m domain.StuckBot
		if err := rows.Scan(&m.BotID, &m.JobID); err != nil {
			return nil, mapError(err)
		}
		marked = append(marked, m)
	}
	return marked, mapError(rows.Err())
}

// ClearRecoveredBots resets the health flag on bots whose bound job is
// gone or no longer an overdue processing job.
func (s *Store) ClearRecoveredBots(ctx context.Context, processingSince, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bots b
		SET health_status = 'normal',
		    stuck_job_id = NULL,
		    health_checked_at = $2
		WHERE b.health_status = 'potentially_stuck'
		  AND (b.current_job_id IS NULL
		       OR NOT EXISTS (
		           SELECT 1 FROM jobs j
		           WHERE j.id = b.current_job_id
		             AND j.status = 'processing'
		             AND j.started_at < $1))`,
		processingSince, now,
	)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

// BindBotToJob points the bot at the job, marks it busy, and pins
// assigned_operation to the job's operation if it was unset. The
// partial unique index on current_job_id rejects a second binding to
// the same job.
func (s *Store) BindBotToJob(ctx context.Context, botID, jobID, operation string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE bots
		SET current_job_id = $2,
		    status = 'busy',
		    assigned_operation = COALESCE(assigned_operation, $3)
		WHERE id = $1 AND deleted_at IS NULL`,
		botID, jobID, operation,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

// ClearBotJob drops the bot's job binding and marks it idle. Missing
// rows are tolerated so recovery paths can run after a bot is gone.
func (s *Store) ClearBotJob(ctx context.Context, botID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE bots SET current_job_id = NULL, status = 'idle' WHERE id = $1`, botID)
	return mapError(err)
}
