package bot

import (
	"context"
	"testing"
	"time"

	"github.com/rezkam/flotilla/internal/domain"
	"github.com/rezkam/flotilla/internal/operation"
	"github.com/rezkam/flotilla/internal/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository with overridable function fields.
// atomicCalls counts transactions so tests can assert that multi-row
// operations share one.
type mockRepository struct {
	atomicCalls int

	createBotFn            func(ctx context.Context, bot *domain.Bot) error
	getBotFn               func(ctx context.Context, id string) (*domain.Bot, error)
	getBotForUpdateAnyFn   func(ctx context.Context, id string) (*domain.Bot, error)
	listBotsFn             func(ctx context.Context, includeDeleted bool) ([]*domain.Bot, error)
	updateHeartbeatFn      func(ctx context.Context, id string, now time.Time) error
	setAssignedOperationFn func(ctx context.Context, id string, op *string) error
	reviveBotFn            func(ctx context.Context, id string, now time.Time) error
	softDeleteBotFn        func(ctx context.Context, id string, now time.Time) error
	resetBotFn             func(ctx context.Context, id string) error
	markStuckBotsFn        func(ctx context.Context, processingSince, heartbeatAfter, now time.Time) ([]domain.StuckBot, error)
	clearRecoveredBotsFn   func(ctx context.Context, processingSince, now time.Time) (int, error)
	getJobForUpdateFn      func(ctx context.Context, id string) (*domain.Job, error)
	releaseJobFn           func(ctx context.Context, jobID, reason string, now time.Time) error
	finishJobFn            func(ctx context.Context, jobID string, status domain.JobStatus, errText *string, now time.Time) error
	insertResultFn         func(ctx context.Context, res *domain.Result) error
}

func (m *mockRepository) Atomic(ctx context.Context, fn func(Repository) error) error {
	m.atomicCalls++
	return fn(m)
}

func (m *mockRepository) CreateBot(ctx context.Context, bot *domain.Bot) error {
	return m.createBotFn(ctx, bot)
}

func (m *mockRepository) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	return m.getBotFn(ctx, id)
}

func (m *mockRepository) GetBotForUpdateAny(ctx context.Context, id string) (*domain.Bot, error) {
	return m.getBotForUpdateAnyFn(ctx, id)
}

func (m *mockRepository) ListBots(ctx context.Context, includeDeleted bool) ([]*domain.Bot, error) {
	return m.listBotsFn(ctx, includeDeleted)
}

func (m *mockRepository) UpdateHeartbeat(ctx context.Context, id string, now time.Time) error {
	return m.updateHeartbeatFn(ctx, id, now)
}

func (m *mockRepository) SetAssignedOperation(ctx context.Context, id string, op *string) error {
	return m.setAssignedOperationFn(ctx, id, op)
}

func (m *mockRepository) ReviveBot(ctx context.Context, id string, now time.Time) error {
	return m.reviveBotFn(ctx, id, now)
}

func (m *mockRepository) SoftDeleteBot(ctx context.Context, id string, now time.Time) error {
	return m.softDeleteBotFn(ctx, id, now)
}

func (m *mockRepository) ResetBot(ctx context.Context, id string) error {
	return m.resetBotFn(ctx, id)
}

func (m *mockRepository) MarkStuckBots(ctx context.Context, processingSince, heartbeatAfter, now time.Time) ([]domain.StuckBot, error) {
	return m.markStuckBotsFn(ctx, processingSince, heartbeatAfter, now)
}

func (m *mockRepository) ClearRecoveredBots(ctx context.Context, processingSince, now time.Time) (int, error) {
	return m.clearRecoveredBotsFn(ctx, processingSince, now)
}

func (m *mockRepository) GetJobForUpdate(ctx context.Context, id string) (*domain.Job, error) {
	return m.getJobForUpdateFn(ctx, id)
}

func (m *mockRepository) ReleaseJob(ctx context.Context, jobID, reason string, now time.Time) error {
	return m.releaseJobFn(ctx, jobID, reason, now)
}

func (m *mockRepository) FinishJob(ctx context.Context, jobID string, status domain.JobStatus, errText *string, now time.Time) error {
	return m.finishJobFn(ctx, jobID, status, errText, now)
}

func (m *mockRepository) InsertResult(ctx context.Context, res *domain.Result) error {
	return m.insertResultFn(ctx, res)
}

// mockJobs records results handed off for datalake archiving.
type mockJobs struct {
	archived []*domain.Result
}

func (m *mockJobs) Archive(ctx context.Context, res *domain.Result) {
	if res != nil {
		m.archived = append(m.archived, res)
	}
}

func newTestService(repo *mockRepository, jobs JobController) *Service {
	svc := NewService(repo, jobs, operation.NewRegistry(), Config{DownThreshold: 2 * time.Minute})
	svc.now = func() time.Time {
		return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestRegisterNewBot(t *testing.T) {
	var created *domain.Bot
	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return nil, domain.ErrBotNotFound
		},
		createBotFn: func(ctx context.Context, bot *domain.Bot) error {
			created = bot
			return nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	b, err := svc.Register(context.Background(), "b1", ptr.To("multiply"))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, domain.BotStatusIdle, b.Status)
	require.NotNil(t, b.AssignedOperation)
	assert.Equal(t, "multiply", *b.AssignedOperation)
	assert.Equal(t, domain.BotHealthNormal, b.HealthStatus)
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	svc := newTestService(&mockRepository{}, &mockJobs{})

	_, err := svc.Register(context.Background(), "", nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRegisterRejectsUnknownOperation(t *testing.T) {
	svc := newTestService(&mockRepository{}, &mockJobs{})

	_, err := svc.Register(context.Background(), "b1", ptr.To("modulo"))
	require.ErrorIs(t, err, domain.ErrUnknownOperation)
}

func TestRegisterIdempotentOnLiveBot(t *testing.T) {
	live := &domain.Bot{ID: "b1", Status: domain.BotStatusIdle, AssignedOperation: ptr.To("sum")}
	heartbeats := 0

	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return live, nil
		},
		getBotFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return live, nil
		},
		updateHeartbeatFn: func(ctx context.Context, id string, now time.Time) error {
			heartbeats++
			return nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	b, err := svc.Register(context.Background(), "b1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, heartbeats)
	require.NotNil(t, b.AssignedOperation)
	assert.Equal(t, "sum", *b.AssignedOperation, "register without operation must not clear the pin")
}

func TestRegisterRevivesDeletedBotPreservingPin(t *testing.T) {
	deletedAt := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	stored := &domain.Bot{
		ID: "b1", Status: domain.BotStatusIdle,
		AssignedOperation: ptr.To("divide"), DeletedAt: &deletedAt,
	}
	revived := false

	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return stored, nil
		},
		reviveBotFn: func(ctx context.Context, id string, now time.Time) error {
			revived = true
			stored.DeletedAt = nil
			stored.LastHeartbeatAt = now
			return nil
		},
		getBotFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return stored, nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	b, err := svc.Register(context.Background(), "b1", nil)
	require.NoError(t, err)
	assert.True(t, revived)
	assert.Nil(t, b.DeletedAt)
	require.NotNil(t, b.AssignedOperation)
	assert.Equal(t, "divide", *b.AssignedOperation)
}

func TestRegisterExplicitOperationOverridesPin(t *testing.T) {
	stored := &domain.Bot{ID: "b1", Status: domain.BotStatusIdle, AssignedOperation: ptr.To("sum")}
	var setOp *string
	opSet := false

	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return stored, nil
		},
		updateHeartbeatFn: func(ctx context.Context, id string, now time.Time) error { return nil },
		setAssignedOperationFn: func(ctx context.Context, id string, op *string) error {
			setOp, opSet = op, true
			return nil
		},
		getBotFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return stored, nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	_, err := svc.Register(context.Background(), "b1", ptr.To("multiply"))
	require.NoError(t, err)
	require.True(t, opSet)
	require.NotNil(t, setOp)
	assert.Equal(t, "multiply", *setOp)
}

func TestHeartbeatUnknownBot(t *testing.T) {
	repo := &mockRepository{
		updateHeartbeatFn: func(ctx context.Context, id string, now time.Time) error {
			return domain.ErrBotNotFound
		},
	}
	svc := newTestService(repo, &mockJobs{})

	err := svc.Heartbeat(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrBotNotFound)
}

func TestAssignOperationUnknown(t *testing.T) {
	svc := newTestService(&mockRepository{}, &mockJobs{})

	_, err := svc.AssignOperation(context.Background(), "b1", ptr.To("modulo"))
	require.ErrorIs(t, err, domain.ErrUnknownOperation)
}

func TestAssignOperationClearsPin(t *testing.T) {
	stored := &domain.Bot{ID: "b1", Status: domain.BotStatusIdle}
	var setOp *string

	repo := &mockRepository{
		setAssignedOperationFn: func(ctx context.Context, id string, op *string) error {
			setOp = op
			return nil
		},
		getBotFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return stored, nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	_, err := svc.AssignOperation(context.Background(), "b1", nil)
	require.NoError(t, err)
	assert.Nil(t, setOp)
}

func TestSoftDeleteIdleBot(t *testing.T) {
	deleted := false
	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return &domain.Bot{ID: id, Status: domain.BotStatusIdle}, nil
		},
		softDeleteBotFn: func(ctx context.Context, id string, now time.Time) error {
			deleted = true
			return nil
		},
	}
	jobs := &mockJobs{}
	svc := newTestService(repo, jobs)

	require.NoError(t, svc.SoftDelete(context.Background(), "b1"))
	assert.True(t, deleted)
	assert.Empty(t, jobs.archived)
}

func TestSoftDeleteDeletedBotNotFound(t *testing.T) {
	deletedAt := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return &domain.Bot{ID: id, DeletedAt: &deletedAt}, nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	err := svc.SoftDelete(context.Background(), "b1")
	require.ErrorIs(t, err, domain.ErrBotNotFound)
}

func TestSoftDeleteReleasesClaimedJobInOneTransaction(t *testing.T) {
	var releasedJob, releaseReason string
	deleted := false

	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return &domain.Bot{ID: id, Status: domain.BotStatusBusy, CurrentJobID: ptr.To("j1")}, nil
		},
		getJobForUpdateFn: func(ctx context.Context, id string) (*domain.Job, error) {
			return &domain.Job{ID: id, Status: domain.JobStatusClaimed, ClaimedBy: ptr.To("b1")}, nil
		},
		releaseJobFn: func(ctx context.Context, jobID, reason string, now time.Time) error {
			releasedJob, releaseReason = jobID, reason
			return nil
		},
		softDeleteBotFn: func(ctx context.Context, id string, now time.Time) error {
			require.NotEmpty(t, releasedJob, "held job must be released before the bot row is retired")
			deleted = true
			return nil
		},
	}
	jobs := &mockJobs{}
	svc := newTestService(repo, jobs)

	require.NoError(t, svc.SoftDelete(context.Background(), "b1"))
	assert.Equal(t, "j1", releasedJob)
	assert.Equal(t, "bot-deleted", releaseReason)
	assert.True(t, deleted)
	assert.Equal(t, 1, repo.atomicCalls, "handoff and bot update must share one transaction")
	assert.Empty(t, jobs.archived)
}

func TestSoftDeleteFailsProcessingJobInOneTransaction(t *testing.T) {
	started := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	var finishedStatus domain.JobStatus
	var inserted *domain.Result

	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return &domain.Bot{ID: id, Status: domain.BotStatusBusy, CurrentJobID: ptr.To("j1")}, nil
		},
		getJobForUpdateFn: func(ctx context.Context, id string) (*domain.Job, error) {
			return &domain.Job{
				ID: id, A: 2, B: 3, Operation: "sum",
				Status: domain.JobStatusProcessing, ClaimedBy: ptr.To("b1"), StartedAt: &started,
			}, nil
		},
		finishJobFn: func(ctx context.Context, jobID string, status domain.JobStatus, errText *string, now time.Time) error {
			finishedStatus = status
			return nil
		},
		insertResultFn: func(ctx context.Context, res *domain.Result) error {
			inserted = res
			return nil
		},
		softDeleteBotFn: func(ctx context.Context, id string, now time.Time) error { return nil },
	}
	jobs := &mockJobs{}
	svc := newTestService(repo, jobs)

	require.NoError(t, svc.SoftDelete(context.Background(), "b1"))
	assert.Equal(t, domain.JobStatusFailed, finishedStatus)
	require.NotNil(t, inserted)
	assert.Equal(t, "b1", inserted.ProcessedBy)
	require.NotNil(t, inserted.Error)
	assert.Equal(t, "bot-deleted", *inserted.Error)
	assert.Equal(t, 1, repo.atomicCalls, "handoff and bot update must share one transaction")

	require.Len(t, jobs.archived, 1, "failure result must be mirrored after commit")
	assert.Equal(t, inserted.ID, jobs.archived[0].ID)
}

func TestResetReleasesHeldJobInOneTransaction(t *testing.T) {
	started := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	var releasedJob, releaseReason string
	resetCalled := false

	repo := &mockRepository{
		getBotForUpdateAnyFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return &domain.Bot{ID: id, Status: domain.BotStatusBusy, CurrentJobID: ptr.To("j1")}, nil
		},
		getJobForUpdateFn: func(ctx context.Context, id string) (*domain.Job, error) {
			return &domain.Job{
				ID: id, Status: domain.JobStatusProcessing, ClaimedBy: ptr.To("b1"), StartedAt: &started,
			}, nil
		},
		releaseJobFn: func(ctx context.Context, jobID, reason string, now time.Time) error {
			releasedJob, releaseReason = jobID, reason
			return nil
		},
		resetBotFn: func(ctx context.Context, id string) error {
			resetCalled = true
			return nil
		},
		getBotFn: func(ctx context.Context, id string) (*domain.Bot, error) {
			return &domain.Bot{ID: id, Status: domain.BotStatusIdle, HealthStatus: domain.BotHealthNormal}, nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	b, err := svc.Reset(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, resetCalled)
	assert.Equal(t, "j1", releasedJob, "reset releases even a processing job back to pending")
	assert.Equal(t, "bot-reset", releaseReason)
	assert.Equal(t, domain.BotHealthNormal, b.HealthStatus)
	assert.Equal(t, 1, repo.atomicCalls)
}

func TestCheckHealthCutoffs(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	var markProcessingSince, markHeartbeatAfter, clearProcessingSince time.Time

	repo := &mockRepository{
		markStuckBotsFn: func(ctx context.Context, processingSince, heartbeatAfter, at time.Time) ([]domain.StuckBot, error) {
			markProcessingSince, markHeartbeatAfter = processingSince, heartbeatAfter
			return []domain.StuckBot{{BotID: "b1", JobID: "j1"}}, nil
		},
		clearRecoveredBotsFn: func(ctx context.Context, processingSince, at time.Time) (int, error) {
			clearProcessingSince = processingSince
			return 2, nil
		},
	}
	svc := newTestService(repo, &mockJobs{})

	marked, err := svc.CheckHealth(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, "b1", marked[0].BotID)
	assert.Equal(t, "j1", marked[0].JobID)

	assert.Equal(t, now.Add(-10*time.Minute), markProcessingSince)
	assert.Equal(t, now.Add(-2*time.Minute), markHeartbeatAfter,
		"a bot past the down threshold is dead, not stuck")
	assert.Equal(t, now.Add(-10*time.Minute), clearProcessingSince)
}
