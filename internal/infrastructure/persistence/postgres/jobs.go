package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rezkam/flotilla/internal/application/job"
	"github.com/rezkam/flotilla/internal/domain"
)

const jobColumns = `id, a, b, operation, status, claimed_by, created_at, claimed_at, started_at, finished_at, attempts, error, version`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.A, &j.B, &j.Operation, &j.Status, &j.ClaimedBy,
		&j.CreatedAt, &j.ClaimedAt, &j.StartedAt, &j.FinishedAt,
		&j.Attempts, &j.Error, &j.Version,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJob inserts a new pending job.
func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (id, a, b, operation, status, created_at, attempts, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID, j.A, j.B, j.Operation, j.Status, j.CreatedAt, j.Attempts, j.Version,
	)
	return mapError(err)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, noRows(err, domain.ErrJobNotFound)
	}
	return j, nil
}

// GetJobForUpdate retrieves a job and locks its row until the enclosing
// transaction ends.
func (s *Store) GetJobForUpdate(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, noRows(err, domain.ErrJobNotFound)
	}
	return j, nil
}

// ListJobs returns jobs ordered by status priority then created_at
// descending. Pending jobs always sort before any terminal job so
// operators paginating the table see actionable work first.
func (s *Store) ListJobs(ctx context.Context, params job.ListParams) ([]*domain.Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY
			CASE status
				WHEN 'pending' THEN 1
				WHEN 'claimed' THEN 2
				WHEN 'processing' THEN 3
				WHEN 'succeeded' THEN 4
				ELSE 5
			END,
			created_at DESC,
			id
		LIMIT $2 OFFSET $3`,
		string(params.Status), params.Limit, params.Offset,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, mapError(err)
		}
		jobs = append(jobs, j)
	}
	return jobs, mapError(rows.Err())
}

// CountJobsByStatus returns the number of jobs per status.
func (s *Store) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapError(err)
		}
		counts[status] = n
	}
	return counts, mapError(rows.Err())
}

// CountPendingJobs returns the size of the pending backlog.
func (s *Store) CountPendingJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// ClaimOldestPending atomically claims the oldest pending job for botID
// in a single statement. The candidate select takes a row lock with
// SKIP LOCKED so concurrent claimers step over each other instead of
// blocking. Ties break on created_at then id.
func (s *Store) ClaimOldestPending(ctx context.Context, botID, operation string, now time.Time) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `
		WITH candidate AS (
			SELECT id
			FROM jobs
			WHERE status = 'pending'
			  AND ($2 = '' OR operation = $2)
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET status = 'claimed',
		    claimed_by = $1,
		    claimed_at = $3,
		    version = version + 1
		FROM candidate c
		WHERE j.id = c.id
		RETURNING j.id, j.a, j.b, j.operation, j.status, j.claimed_by, j.created_at,
		          j.claimed_at, j.started_at, j.finished_at, j.attempts, j.error, j.version`,
		botID, operation, now,
	)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return j, nil
}

// MarkJobProcessing transitions a claimed job to processing.
func (s *Store) MarkJobProcessing(ctx context.Context, jobID string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'processing', started_at = $2, version = version + 1
		WHERE id = $1 AND status = 'claimed'`,
		jobID, now,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s not in claimed state", domain.ErrInvalidTransition, jobID)
	}
	return nil
}

// FinishJob transitions a job to a terminal status.
func (s *Store) FinishJob(ctx context.Context, jobID string, status domain.JobStatus, errText *string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error = $3, finished_at = $4, version = version + 1
		WHERE id = $1`,
		jobID, status, errText, now,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// ReleaseJob returns a job to pending, clearing the claimant and timing
// columns, bumping attempts, and recording the release reason.
func (s *Store) ReleaseJob(ctx context.Context, jobID, reason string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    claimed_by = NULL,
		    claimed_at = NULL,
		    started_at = NULL,
		    attempts = attempts + 1,
		    error = $2,
		    version = version + 1
		WHERE id = $1`,
		jobID, reason,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// ListExpiredClaimed returns ids of claimed jobs claimed before cutoff.
func (s *Store) ListExpiredClaimed(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.listExpired(ctx, `
		SELECT id FROM jobs
		WHERE status = 'claimed' AND claimed_at < $1
		ORDER BY claimed_at
		LIMIT $2`, cutoff, limit)
}

// ListExpiredProcessing returns ids of processing jobs started before
// cutoff.
func (s *Store) ListExpiredProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.listExpired(ctx, `
		SELECT id FROM jobs
		WHERE status = 'processing' AND started_at < $1
		ORDER BY started_at
		LIMIT $2`, cutoff, limit)
}

func (s *Store) listExpired(ctx context.Context, query string, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	return ids, mapError(rows.Err())
}
