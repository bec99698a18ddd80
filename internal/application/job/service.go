// Package job implements the job lifecycle: create, claim, start,
// complete, fail, release. Claim is the correctness-critical path and is
// built on row-level locks with skip-locked semantics so concurrent
// claimers never block each other.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rezkam/flotilla/internal/datalake"
	"github.com/rezkam/flotilla/internal/domain"
	"github.com/rezkam/flotilla/internal/operation"
	"github.com/rezkam/flotilla/internal/ptr"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Default configuration values.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100

	// MaxOperand bounds generated operands to [0, MaxOperand].
	MaxOperand = 999
)

// Config holds configuration for the Service.
type Config struct {
	// MaxPending stops Populate when the backlog reaches this size.
	MaxPending int

	DefaultPageSize int
	MaxPageSize     int
}

// Service provides business logic for the job lifecycle.
// All multi-row effects run inside one repository transaction; the
// datalake append is best-effort after commit.
type Service struct {
	repo     Repository
	registry *operation.Registry
	sink     datalake.Sink
	config   Config

	now func() time.Time

	invariantViolations metric.Int64Counter
	datalakeFailures    metric.Int64Counter
}

// NewService creates a new job service.
// Applies application defaults for zero or invalid config values.
func NewService(repo Repository, registry *operation.Registry, sink datalake.Sink, config Config) *Service {
	if config.MaxPending <= 0 {
		config.MaxPending = 10000
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = DefaultPageSize
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = MaxPageSize
	}

	meter := otel.Meter("github.com/rezkam/flotilla/internal/application/job")

	invariantViolations, err := meter.Int64Counter("coordinator.invariant_violations",
		metric.WithDescription("Jobs observed in a state that breaks the pending/claimant rule"))
	if err != nil {
		otel.Handle(err)
	}
	datalakeFailures, err := meter.Int64Counter("coordinator.datalake_append_failures",
		metric.WithDescription("Result records that could not be mirrored to the datalake"))
	if err != nil {
		otel.Handle(err)
	}

	return &Service{
		repo:                repo,
		registry:            registry,
		sink:                sink,
		config:              config,
		now:                 time.Now,
		invariantViolations: invariantViolations,
		datalakeFailures:    datalakeFailures,
	}
}

// Populate creates batchSize pending jobs with random operands. When
// operationName is empty each job gets a random operation from the
// registry. Returns the created job ids. Stops early (without error) if
// the pending backlog is at the ceiling.
func (s *Service) Populate(ctx context.Context, batchSize int, operationName string) ([]string, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	if operationName != "" && !s.registry.Contains(operationName) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownOperation, operationName)
	}

	pending, err := s.repo.CountPendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	if pending >= s.config.MaxPending {
		slog.WarnContext(ctx, "pending backlog at ceiling, skipping populate",
			"pending", pending, "ceiling", s.config.MaxPending)
		return nil, nil
	}
	if pending+batchSize > s.config.MaxPending {
		batchSize = s.config.MaxPending - pending
	}

	names := s.registry.Names()
	ids := make([]string, 0, batchSize)

	err = s.repo.Atomic(ctx, func(repo Repository) error {
		for range batchSize {
			op := operationName
			if op == "" {
				op = names[rand.IntN(len(names))]
			}

			j := &domain.Job{
				ID:        uuid.NewString(),
				A:         rand.IntN(MaxOperand + 1),
				B:         randomSecondOperand(op),
				Operation: op,
				Status:    domain.JobStatusPending,
				CreatedAt: s.now().UTC(),
				Version:   1,
			}
			if err := repo.CreateJob(ctx, j); err != nil {
				return fmt.Errorf("failed to create job: %w", err)
			}
			ids = append(ids, j.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// randomSecondOperand never returns zero for divide.
func randomSecondOperand(op string) int {
	if op == "divide" {
		return 1 + rand.IntN(MaxOperand)
	}
	return rand.IntN(MaxOperand + 1)
}

// Get retrieves a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Job, error) {
	if id == "" {
		return nil, domain.ErrJobNotFound
	}
	return s.repo.GetJob(ctx, id)
}

// List retrieves jobs ordered by status priority then created_at
// descending. The ordering is part of the API contract.
func (s *Service) List(ctx context.Context, params ListParams) ([]*domain.Job, error) {
	if params.Status != "" && !params.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrInvalidArgument, params.Status)
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	if params.Limit <= 0 {
		params.Limit = s.config.DefaultPageSize
	}
	params.Limit = min(params.Limit, s.config.MaxPageSize)

	jobs, err := s.repo.ListJobs(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// StatusCounts returns the number of jobs per status, with every status
// present in the map.
func (s *Service) StatusCounts(ctx context.Context) (map[domain.JobStatus]int, error) {
	counts, err := s.repo.CountJobsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	for _, status := range domain.JobStatuses() {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

// Claim atomically assigns the oldest matching pending job to the bot.
// Returns (nil, nil) when no work is available; callers poll.
//
// A bot pinned to an operation only receives jobs of that kind. An
// unpinned bot receives the oldest pending job of any kind and is pinned
// to its operation in the same transaction.
func (s *Service) Claim(ctx context.Context, botID string) (*domain.Job, error) {
	if botID == "" {
		return nil, domain.ErrBotNotFound
	}

	var claimed *domain.Job
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		bot, err := repo.GetBotForUpdate(ctx, botID)
		if err != nil {
			return err
		}
		if bot.CurrentJobID != nil {
			return fmt.Errorf("%w: bot %s holds job %s", domain.ErrBotBusy, botID, *bot.CurrentJobID)
		}

		j, err := repo.ClaimOldestPending(ctx, botID, ptr.Deref(bot.AssignedOperation, ""), s.now().UTC())
		if err != nil {
			return fmt.Errorf("failed to claim job: %w", err)
		}
		if j == nil {
			return nil
		}

		if err := repo.BindBotToJob(ctx, botID, j.ID, j.Operation); err != nil {
			return fmt.Errorf("failed to bind bot to job: %w", err)
		}
		claimed = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Start transitions a claimed job to processing. Idempotent on replay:
// starting a job that is already processing under the same bot succeeds.
func (s *Service) Start(ctx context.Context, jobID, botID string) error {
	return s.repo.Atomic(ctx, func(repo Repository) error {
		j, err := s.lockJob(ctx, repo, jobID)
		if err != nil {
			return err
		}

		switch {
		case j.Status == domain.JobStatusProcessing && j.ClaimedByBot(botID):
			return nil
		case j.Status.IsTerminal():
			return fmt.Errorf("%w: job %s is %s", domain.ErrAlreadyTerminal, jobID, j.Status)
		case j.Status != domain.JobStatusClaimed:
			return fmt.Errorf("%w: cannot start job in state %s", domain.ErrInvalidTransition, j.Status)
		case !j.ClaimedByBot(botID):
			return fmt.Errorf("%w: job %s claimed by %s", domain.ErrNotClaimOwner, jobID, ptr.Deref(j.ClaimedBy, "nobody"))
		}

		return repo.MarkJobProcessing(ctx, jobID, s.now().UTC())
	})
}

// Complete terminally succeeds a processing job: records the result row,
// frees the bot, and mirrors the result to the datalake. Replaying the
// same completion succeeds; a conflicting replay returns
// domain.ErrAlreadyTerminal.
func (s *Service) Complete(ctx context.Context, jobID, botID string, result, durationMS int) error {
	res, err := s.finish(ctx, jobID, botID, terminalOutcome{
		status: domain.JobStatusSucceeded,
		value:  &result,
	}, durationMS)
	if err != nil {
		return err
	}
	s.appendToDatalake(ctx, res)
	return nil
}

// Fail terminally fails a processing job with the given error text.
// Same idempotency contract as Complete.
func (s *Service) Fail(ctx context.Context, jobID, botID, errText string, durationMS int) error {
	res, err := s.finish(ctx, jobID, botID, terminalOutcome{
		status:  domain.JobStatusFailed,
		errText: &errText,
	}, durationMS)
	if err != nil {
		return err
	}
	s.appendToDatalake(ctx, res)
	return nil
}

type terminalOutcome struct {
	status  domain.JobStatus
	value   *int
	errText *string
}

// finish runs the shared terminal transition. Returns the recorded
// result, or nil when the call was an idempotent replay.
func (s *Service) finish(ctx context.Context, jobID, botID string, outcome terminalOutcome, durationMS int) (*domain.Result, error) {
	var recorded *domain.Result

	err := s.repo.Atomic(ctx, func(repo Repository) error {
		j, err := s.lockJob(ctx, repo, jobID)
		if err != nil {
			return err
		}

		if j.Status.IsTerminal() {
			return s.checkTerminalReplay(ctx, repo, j, botID, outcome)
		}
		if j.Status != domain.JobStatusProcessing {
			return fmt.Errorf("%w: cannot finish job in state %s", domain.ErrInvalidTransition, j.Status)
		}
		if !j.ClaimedByBot(botID) {
			return fmt.Errorf("%w: job %s claimed by %s", domain.ErrNotClaimOwner, jobID, ptr.Deref(j.ClaimedBy, "nobody"))
		}

		now := s.now().UTC()
		if err := repo.FinishJob(ctx, jobID, outcome.status, outcome.errText, now); err != nil {
			return fmt.Errorf("failed to finish job: %w", err)
		}

		res := &domain.Result{
			ID:          uuid.NewString(),
			JobID:       j.ID,
			A:           j.A,
			B:           j.B,
			Operation:   j.Operation,
			Value:       outcome.value,
			ProcessedBy: botID,
			ProcessedAt: now,
			DurationMS:  durationMS,
			Status:      domain.ResultStatus(outcome.status),
			Error:       outcome.errText,
		}
		if err := repo.InsertResult(ctx, res); err != nil {
			return fmt.Errorf("failed to record result: %w", err)
		}

		if err := repo.ClearBotJob(ctx, botID); err != nil {
			return fmt.Errorf("failed to clear bot binding: %w", err)
		}

		recorded = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// checkTerminalReplay accepts an exact replay of the recorded terminal
// transition and rejects everything else.
func (s *Service) checkTerminalReplay(ctx context.Context, repo Repository, j *domain.Job, botID string, outcome terminalOutcome) error {
	if j.Status != outcome.status || !j.ClaimedByBot(botID) {
		return fmt.Errorf("%w: job %s is %s", domain.ErrAlreadyTerminal, j.ID, j.Status)
	}

	res, err := repo.GetResultByJobID(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("%w: job %s is %s", domain.ErrAlreadyTerminal, j.ID, j.Status)
	}

	sameValue := ptr.Deref(res.Value, 0) == ptr.Deref(outcome.value, 0) &&
		(res.Value == nil) == (outcome.value == nil)
	sameError := ptr.Deref(res.Error, "") == ptr.Deref(outcome.errText, "")
	if !sameValue || !sameError {
		return fmt.Errorf("%w: job %s already recorded a different outcome", domain.ErrAlreadyTerminal, j.ID)
	}
	return nil
}

// Release forces a claimed or processing job back to pending, clears the
// bot binding, bumps attempts, and records the reason. Releasing a
// pending job returns domain.ErrJobNotReleasable; a terminal job returns
// domain.ErrAlreadyTerminal.
func (s *Service) Release(ctx context.Context, jobID, reason string) error {
	if reason == "" {
		reason = "released"
	}

	return s.repo.Atomic(ctx, func(repo Repository) error {
		j, err := s.lockJob(ctx, repo, jobID)
		if err != nil {
			return err
		}
		return s.releaseLocked(ctx, repo, j, reason)
	})
}

// releaseLocked applies release semantics to an already locked job. It is
// shared by admin release, the claimed-job monitor, and bot soft-delete.
func (s *Service) releaseLocked(ctx context.Context, repo Repository, j *domain.Job, reason string) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrAlreadyTerminal, j.ID, j.Status)
	}
	if j.Status == domain.JobStatusPending {
		return fmt.Errorf("%w: job %s is already pending", domain.ErrJobNotReleasable, j.ID)
	}

	if err := repo.ReleaseJob(ctx, j.ID, reason, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	if j.ClaimedBy != nil {
		if err := repo.ClearBotJob(ctx, *j.ClaimedBy); err != nil {
			return fmt.Errorf("failed to clear bot binding: %w", err)
		}
	}
	return nil
}

// Archive mirrors an already committed result to the datalake. Used by
// callers that record results inside their own transactions. A nil
// result is a no-op.
func (s *Service) Archive(ctx context.Context, res *domain.Result) {
	s.appendToDatalake(ctx, res)
}

// RecoverExpiredClaimed releases claimed jobs whose claim is older than
// timeout back to pending, up to maxRecoveries, reading candidates in
// batches of batchSize. Returns how many jobs were recovered.
func (s *Service) RecoverExpiredClaimed(ctx context.Context, timeout time.Duration, maxRecoveries, batchSize int) (int, error) {
	recovered := 0
	for recovered < maxRecoveries {
		batch := min(batchSize, maxRecoveries-recovered)
		ids, err := s.repo.ListExpiredClaimed(ctx, s.now().UTC().Add(-timeout), batch)
		if err != nil {
			return recovered, fmt.Errorf("failed to list expired claimed jobs: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			err := s.repo.Atomic(ctx, func(repo Repository) error {
				j, err := s.lockJob(ctx, repo, id)
				if err != nil {
					return err
				}
				// Re-check under the lock; the bot may have started the
				// job between the listing and now.
				if j.Status != domain.JobStatusClaimed || j.ClaimedAt == nil || j.ClaimedAt.After(s.now().UTC().Add(-timeout)) {
					return nil
				}
				return s.releaseLocked(ctx, repo, j, "timeout-in-claimed")
			})
			if err != nil {
				slog.ErrorContext(ctx, "failed to recover claimed job", "job_id", id, "error", err)
				continue
			}
			recovered++
		}
		if len(ids) < batch {
			break
		}
	}
	return recovered, nil
}

// FailExpiredProcessing terminally fails processing jobs whose start is
// older than timeout, recording a failed result and freeing the bot, up
// to maxRecoveries. Returns how many jobs were failed.
func (s *Service) FailExpiredProcessing(ctx context.Context, timeout time.Duration, maxRecoveries, batchSize int) (int, error) {
	failed := 0
	for failed < maxRecoveries {
		batch := min(batchSize, maxRecoveries-failed)
		ids, err := s.repo.ListExpiredProcessing(ctx, s.now().UTC().Add(-timeout), batch)
		if err != nil {
			return failed, fmt.Errorf("failed to list expired processing jobs: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			res, err := s.failExpiredJob(ctx, id, timeout)
			if err != nil {
				slog.ErrorContext(ctx, "failed to expire processing job", "job_id", id, "error", err)
				continue
			}
			if res != nil {
				s.appendToDatalake(ctx, res)
				failed++
			}
		}
		if len(ids) < batch {
			break
		}
	}
	return failed, nil
}

func (s *Service) failExpiredJob(ctx context.Context, jobID string, timeout time.Duration) (*domain.Result, error) {
	var recorded *domain.Result

	err := s.repo.Atomic(ctx, func(repo Repository) error {
		j, err := s.lockJob(ctx, repo, jobID)
		if err != nil {
			return err
		}
		if j.Status != domain.JobStatusProcessing || j.StartedAt == nil || j.StartedAt.After(s.now().UTC().Add(-timeout)) {
			return nil
		}

		now := s.now().UTC()
		errText := ptr.To("timeout-in-processing")

		if err := repo.FinishJob(ctx, jobID, domain.JobStatusFailed, errText, now); err != nil {
			return fmt.Errorf("failed to fail job: %w", err)
		}

		res := &domain.Result{
			ID:          uuid.NewString(),
			JobID:       j.ID,
			A:           j.A,
			B:           j.B,
			Operation:   j.Operation,
			ProcessedBy: ptr.Deref(j.ClaimedBy, ""),
			ProcessedAt: now,
			DurationMS:  int(now.Sub(*j.StartedAt).Milliseconds()),
			Status:      domain.ResultStatusFailed,
			Error:       errText,
		}
		if err := repo.InsertResult(ctx, res); err != nil {
			return fmt.Errorf("failed to record result: %w", err)
		}

		if j.ClaimedBy != nil {
			if err := repo.ClearBotJob(ctx, *j.ClaimedBy); err != nil {
				return fmt.Errorf("failed to clear bot binding: %w", err)
			}
		}

		recorded = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// lockJob fetches the job under a row lock and verifies the structural
// pairing of status and claimant. A violation is a bug, not caller error.
func (s *Service) lockJob(ctx context.Context, repo Repository, jobID string) (*domain.Job, error) {
	j, err := repo.GetJobForUpdate(ctx, jobID)
	if err != nil {
		return nil, err
	}

	pendingWithClaimant := j.Status == domain.JobStatusPending && j.ClaimedBy != nil
	activeWithoutClaimant := j.Status != domain.JobStatusPending && j.ClaimedBy == nil
	if pendingWithClaimant || activeWithoutClaimant {
		slog.ErrorContext(ctx, "job state consistency violation",
			"job_id", j.ID, "status", j.Status, "claimed_by", ptr.Deref(j.ClaimedBy, ""))
		if s.invariantViolations != nil {
			s.invariantViolations.Add(ctx, 1)
		}
		return nil, fmt.Errorf("%w: job %s status %s", domain.ErrStateViolation, j.ID, j.Status)
	}
	return j, nil
}

// appendToDatalake mirrors a committed result to the sink with bounded
// retries. Failures are logged and counted, never propagated; the
// in-database row stays authoritative.
func (s *Service) appendToDatalake(ctx context.Context, res *domain.Result) {
	if res == nil || s.sink == nil {
		return
	}

	// The result row is already committed; a client disconnect must not
	// drop the mirror mid-retry.
	ctx = context.WithoutCancel(ctx)

	rec := datalake.NewRecord(res)
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.sink.Append(ctx, rec); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "datalake append failed", "result_id", res.ID, "job_id", res.JobID, "error", err)
		if s.datalakeFailures != nil {
			s.datalakeFailures.Add(ctx, 1)
		}
	}
}
