// Package postgres implements the repository interfaces on PostgreSQL
// via pgx. All SQL lives here; services never see raw queries. Schema
// invariants (status checks, the pending/claimant pairing, the unique
// bot-to-job binding) are enforced by constraints and surfaced as
// domain errors.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rezkam/flotilla/internal/application/bot"
	"github.com/rezkam/flotilla/internal/application/job"
	"github.com/rezkam/flotilla/internal/application/monitor"
)

// querier is the subset of pgx shared by pools and transactions, so
// every query method runs against whichever the Store currently wraps.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides the PostgreSQL implementation of all repository
// interfaces. Wrap it in JobStore or BotStore to get the typed Atomic
// entry point each service expects.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// Compile-time verification that the adapters satisfy their interfaces.
var (
	_ job.Repository            = JobStore{}
	_ bot.Repository            = BotStore{}
	_ monitor.CleanupRepository = (*Store)(nil)
)

// NewStore creates a store over the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// finalizeTx handles transaction cleanup for normal error/success cases.
// Rolls back on error, commits on success.
func finalizeTx(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		slog.ErrorContext(ctx, "transaction failed, rolling back", "error", *err)
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.ErrorContext(ctx, "rollback failed",
				"original_error", *err,
				"rollback_error", rbErr)
			*err = fmt.Errorf("transaction failed: %w (rollback error: %v)", *err, rbErr)
		}
	} else {
		*err = tx.Commit(ctx)
		if *err != nil {
			slog.ErrorContext(ctx, "transaction commit failed", "error", *err)
		}
	}
}

// executeInTransaction executes a callback within a transaction with
// logging and panic recovery. The callback receives a Store bound to
// the transaction.
func (s *Store) executeInTransaction(ctx context.Context, operationName string, fn func(txStore *Store) error) (err error) {
	start := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction",
			"operation", operationName,
			"error", err)
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "transaction panic, rolling back",
				"operation", operationName,
				"panic", p)
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				slog.ErrorContext(ctx, "rollback after panic failed",
					"operation", operationName,
					"panic", p,
					"rollback_error", rbErr)
			}
			panic(p)
		}

		finalizeTx(ctx, tx, &err)
		if err == nil {
			slog.DebugContext(ctx, "transaction completed",
				"operation", operationName,
				"duration_ms", time.Since(start).Milliseconds())
		}
	}()

	err = fn(&Store{pool: s.pool, db: tx})
	return
}

// JobStore adapts the Store to the job service's repository interface.
type JobStore struct {
	*Store
}

// Atomic executes a callback within a transaction. The callback receives
// a job.Repository bound to that transaction.
func (s JobStore) Atomic(ctx context.Context, fn func(repo job.Repository) error) error {
	return s.executeInTransaction(ctx, "job_atomic", func(txStore *Store) error {
		return fn(JobStore{txStore})
	})
}

// BotStore adapts the Store to the bot service's repository interface.
type BotStore struct {
	*Store
}

// Atomic executes a callback within a transaction. The callback receives
// a bot.Repository bound to that transaction.
func (s BotStore) Atomic(ctx context.Context, fn func(repo bot.Repository) error) error {
	return s.executeInTransaction(ctx, "bot_atomic", func(txStore *Store) error {
		return fn(BotStore{txStore})
	})
}
