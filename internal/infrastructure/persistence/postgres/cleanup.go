package postgres

import (
	"context"
	"time"
)

// DeleteExpiredBots removes bot rows soft-deleted before cutoff. The
// FK from bots.current_job_id carries ON DELETE SET NULL, and retired
// bots hold no binding anyway.
func (s *Store) DeleteExpiredBots(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM bots WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

// CountExpiredBots counts bot rows soft-deleted before cutoff.
func (s *Store) CountExpiredBots(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM bots WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// PurgeOrphanedResults removes result rows whose processing bot no
// longer exists.
func (s *Store) PurgeOrphanedResults(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM results r
		WHERE NOT EXISTS (SELECT 1 FROM bots b WHERE b.id = r.processed_by)`)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

// CountOrphanedResults counts result rows whose processing bot no
// longer exists.
func (s *Store) CountOrphanedResults(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM results r
		WHERE NOT EXISTS (SELECT 1 FROM bots b WHERE b.id = r.processed_by)`).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}
