package postgres

import (
	"context"

	"github.com/rezkam/flotilla/internal/domain"
)

// InsertResult writes one immutable result row. The unique index on
// job_id guarantees at most one result per job.
func (s *Store) InsertResult(ctx context.Context, r *domain.Result) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO results (id, job_id, a, b, operation, result, processed_by, processed_at, duration_ms, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.JobID, r.A, r.B, r.Operation, r.Value,
		r.ProcessedBy, r.ProcessedAt, r.DurationMS, r.Status, r.Error,
	)
	return mapError(err)
}

// GetResultByJobID retrieves the result recorded for a job.
func (s *Store) GetResultByJobID(ctx context.Context, jobID string) (*domain.Result, error) {
	var r domain.Result
	err := s.db.QueryRow(ctx, `
		SELECT id, job_id, a, b, operation, result, processed_by, processed_at, duration_ms, status, error
		FROM results
		WHERE job_id = $1`,
		jobID,
	).Scan(
		&r.ID, &r.JobID, &r.A, &r.B, &r.Operation, &r.Value,
		&r.ProcessedBy, &r.ProcessedAt, &r.DurationMS, &r.Status, &r.Error,
	)
	if err != nil {
		return nil, noRows(err, domain.ErrJobNotFound)
	}
	return &r, nil
}
