// Package bot manages worker identity, liveness, and operation pinning.
// Bots are external clients; this service owns their authoritative rows.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rezkam/flotilla/internal/domain"
	"github.com/rezkam/flotilla/internal/operation"
	"github.com/rezkam/flotilla/internal/ptr"
)

// JobController is the slice of the job service a retiring bot needs:
// failure results recorded on its behalf are mirrored to the datalake
// after the transaction commits.
type JobController interface {
	// Archive mirrors an already committed result to the datalake. A
	// nil result is a no-op.
	Archive(ctx context.Context, res *domain.Result)
}

// Config holds configuration for the Service.
type Config struct {
	// DownThreshold is how long a bot may go without a heartbeat before
	// its computed status reads as down.
	DownThreshold time.Duration
}

// Service provides business logic for bot lifecycle management.
type Service struct {
	repo     Repository
	jobs     JobController
	registry *operation.Registry
	config   Config

	now func() time.Time
}

// NewService creates a new bot service.
func NewService(repo Repository, jobs JobController, registry *operation.Registry, config Config) *Service {
	if config.DownThreshold <= 0 {
		config.DownThreshold = 2 * time.Minute
	}
	return &Service{
		repo:     repo,
		jobs:     jobs,
		registry: registry,
		config:   config,
		now:      time.Now,
	}
}

// DownThreshold returns the heartbeat silence threshold used for the
// operator-facing computed status.
func (s *Service) DownThreshold() time.Duration {
	return s.config.DownThreshold
}

// Register creates a bot or revives an existing one. Idempotent on id:
// re-registering a live bot only refreshes its heartbeat. A soft-deleted
// bot is revived with deleted_at cleared and status reset to idle; its
// pinned operation is preserved unless the caller supplies one.
//
// assignedOperation nil means "not specified". A pointer to the empty
// string explicitly clears the pin.
func (s *Service) Register(ctx context.Context, id string, assignedOperation *string) (*domain.Bot, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: bot id is required", domain.ErrInvalidArgument)
	}
	if assignedOperation != nil && *assignedOperation != "" && !s.registry.Contains(*assignedOperation) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownOperation, *assignedOperation)
	}

	var registered *domain.Bot
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		now := s.now().UTC()

		existing, err := repo.GetBotForUpdateAny(ctx, id)
		switch {
		case errors.Is(err, domain.ErrBotNotFound):
			b := &domain.Bot{
				ID:              id,
				Status:          domain.BotStatusIdle,
				LastHeartbeatAt: now,
				CreatedAt:       now,
				HealthStatus:    domain.BotHealthNormal,
			}
			if assignedOperation != nil && *assignedOperation != "" {
				b.AssignedOperation = assignedOperation
			}
			if err := repo.CreateBot(ctx, b); err != nil {
				return fmt.Errorf("failed to create bot: %w", err)
			}
			registered = b
			return nil

		case err != nil:
			return err
		}

		if existing.IsDeleted() {
			if err := repo.ReviveBot(ctx, id, now); err != nil {
				return fmt.Errorf("failed to revive bot: %w", err)
			}
		} else {
			if err := repo.UpdateHeartbeat(ctx, id, now); err != nil {
				return fmt.Errorf("failed to refresh heartbeat: %w", err)
			}
		}

		if assignedOperation != nil {
			op := assignedOperation
			if *assignedOperation == "" {
				op = nil
			}
			if err := repo.SetAssignedOperation(ctx, id, op); err != nil {
				return fmt.Errorf("failed to set assigned operation: %w", err)
			}
		}

		registered, err = repo.GetBot(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

// Heartbeat refreshes the bot's liveness timestamp.
func (s *Service) Heartbeat(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrBotNotFound
	}
	return s.repo.UpdateHeartbeat(ctx, id, s.now().UTC())
}

// Get retrieves a live bot by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Bot, error) {
	if id == "" {
		return nil, domain.ErrBotNotFound
	}
	return s.repo.GetBot(ctx, id)
}

// AssignOperation pins the bot to one operation, or clears the pin when
// op is nil so the next claim re-pins dynamically.
func (s *Service) AssignOperation(ctx context.Context, id string, op *string) (*domain.Bot, error) {
	if op != nil && !s.registry.Contains(*op) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownOperation, *op)
	}

	if err := s.repo.SetAssignedOperation(ctx, id, op); err != nil {
		return nil, err
	}
	return s.repo.GetBot(ctx, id)
}

// SoftDelete retires a bot. A held claimed job is released back to
// pending; a held processing job is terminally failed, both with reason
// "bot-deleted". The handoff and the bot row update commit together, so
// a concurrent claim sees either the live bot or the retired one, never
// a half-retired state. The row survives until the retention cleaner
// runs.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	var recorded *domain.Result

	err := s.repo.Atomic(ctx, func(repo Repository) error {
		b, err := repo.GetBotForUpdateAny(ctx, id)
		if err != nil {
			return err
		}
		if b.IsDeleted() {
			return domain.ErrBotNotFound
		}

		if b.CurrentJobID != nil {
			recorded, err = s.retireHeldJob(ctx, repo, *b.CurrentJobID, "bot-deleted", true)
			if err != nil {
				return err
			}
		}
		return repo.SoftDeleteBot(ctx, id, s.now().UTC())
	})
	if err != nil {
		return err
	}

	if recorded != nil {
		s.jobs.Archive(ctx, recorded)
	}
	return nil
}

// Reset is the admin escape hatch: the held job (if any) goes back to
// pending, the binding is cleared, and status and health return to
// normal idle, all in one transaction.
func (s *Service) Reset(ctx context.Context, id string) (*domain.Bot, error) {
	var reset *domain.Bot

	err := s.repo.Atomic(ctx, func(repo Repository) error {
		b, err := repo.GetBotForUpdateAny(ctx, id)
		if err != nil {
			return err
		}
		if b.IsDeleted() {
			return domain.ErrBotNotFound
		}

		if b.CurrentJobID != nil {
			if _, err := s.retireHeldJob(ctx, repo, *b.CurrentJobID, "bot-reset", false); err != nil {
				return err
			}
		}
		if err := repo.ResetBot(ctx, id); err != nil {
			return err
		}
		reset, err = repo.GetBot(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// CheckHealth marks live, still-heartbeating bots whose processing job
// has run longer than stuckAfter as potentially stuck, and clears the
// mark on bots whose job has moved on. Marking only; recovery belongs
// to the job monitors. Returns the marks applied this sweep.
func (s *Service) CheckHealth(ctx context.Context, stuckAfter time.Duration) ([]domain.StuckBot, error) {
	now := s.now().UTC()

	marked, err := s.repo.MarkStuckBots(ctx, now.Add(-stuckAfter), now.Add(-s.config.DownThreshold), now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark stuck bots: %w", err)
	}

	cleared, err := s.repo.ClearRecoveredBots(ctx, now.Add(-stuckAfter), now)
	if err != nil {
		return marked, fmt.Errorf("failed to clear recovered bots: %w", err)
	}
	if cleared > 0 {
		slog.InfoContext(ctx, "cleared recovered bot health marks", "count", cleared)
	}
	return marked, nil
}

// List returns bots ordered by creation time.
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*domain.Bot, error) {
	bots, err := s.repo.ListBots(ctx, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	return bots, nil
}

// retireHeldJob hands off the bot's held job under its row lock: a
// claimed job goes back to pending; a processing job is released when
// failProcessing is false and terminally failed otherwise. Returns the
// failure result recorded, if any.
func (s *Service) retireHeldJob(ctx context.Context, repo Repository, jobID, reason string, failProcessing bool) (*domain.Result, error) {
	j, err := repo.GetJobForUpdate(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	switch {
	case j.Status == domain.JobStatusClaimed,
		j.Status == domain.JobStatusProcessing && !failProcessing:
		if err := repo.ReleaseJob(ctx, jobID, reason, now); err != nil {
			return nil, fmt.Errorf("failed to release held job: %w", err)
		}
		return nil, nil

	case j.Status == domain.JobStatusProcessing:
		errText := &reason
		if err := repo.FinishJob(ctx, jobID, domain.JobStatusFailed, errText, now); err != nil {
			return nil, fmt.Errorf("failed to fail held job: %w", err)
		}

		duration := 0
		if j.StartedAt != nil {
			duration = int(now.Sub(*j.StartedAt).Milliseconds())
		}
		res := &domain.Result{
			ID:          uuid.NewString(),
			JobID:       j.ID,
			A:           j.A,
			B:           j.B,
			Operation:   j.Operation,
			ProcessedBy: ptr.Deref(j.ClaimedBy, ""),
			ProcessedAt: now,
			DurationMS:  duration,
			Status:      domain.ResultStatusFailed,
			Error:       errText,
		}
		if err := repo.InsertResult(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to record result: %w", err)
		}
		return res, nil
	}

	// Pending or already terminal: nothing to hand off.
	return nil, nil
}
