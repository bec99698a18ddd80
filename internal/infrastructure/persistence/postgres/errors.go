package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rezkam/flotilla/internal/domain"
)

// Constraint names published by the migrations. They are part of the
// error contract: violations map onto specific domain errors.
const (
	constraintBotCurrentJob       = "uq_bots_current_job"
	constraintJobStateConsistency = "job_state_consistency"
	constraintJobOperation        = "jobs_operation_check"
	constraintOneResultPerJob     = "uq_results_job"
)

// mapError translates driver-level failures into domain errors.
// Constraint violations encode business rules; timeouts and dead
// connections surface as retryable unavailability.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case constraintBotCurrentJob:
			return fmt.Errorf("%w: %v", domain.ErrBotCurrentJobTaken, err)
		case constraintJobStateConsistency:
			return fmt.Errorf("%w: %v", domain.ErrStateViolation, err)
		case constraintJobOperation:
			return fmt.Errorf("%w: %v", domain.ErrUnknownOperation, err)
		case constraintOneResultPerJob:
			return fmt.Errorf("%w: %v", domain.ErrAlreadyTerminal, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}

// noRows maps pgx.ErrNoRows onto the caller's not-found error and
// everything else through mapError.
func noRows(err, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return mapError(err)
}
