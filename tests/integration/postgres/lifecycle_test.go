package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/flotilla/internal/domain"
	"github.com/rezkam/flotilla/internal/infrastructure/persistence/postgres"
)

// Full happy path: register, populate, claim, start, complete. The
// terminal state must hold one result row, a freed bot, and a dynamic
// operation pin from the claim.
func TestJobLifecycle_HappyPath(t *testing.T) {
	svc := SetupTestServices(t)
	ctx := context.Background()

	_, err := svc.Bots.Register(ctx, "b1", nil)
	require.NoError(t, err)

	ids, err := svc.Jobs.Populate(ctx, 1, "sum")
	require.NoError(t, err)
	jobID := ids[0]

	claimed, err := svc.Jobs.Claim(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, jobID, claimed.ID)

	// Unpinned bot is pinned to the claimed operation.
	b, err := svc.Bots.Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, b.AssignedOperation)
	assert.Equal(t, "sum", *b.AssignedOperation)

	require.NoError(t, svc.Jobs.Start(ctx, jobID, "b1"))

	expected := claimed.A + claimed.B
	require.NoError(t, svc.Jobs.Complete(ctx, jobID, "b1", expected, 100))

	j, err := svc.Jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, j.Status)
	require.NotNil(t, j.FinishedAt)

	res, err := postgres.JobStore{Store: svc.Store}.GetResultByJobID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, claimed.A, res.A)
	assert.Equal(t, claimed.B, res.B)
	assert.Equal(t, "sum", res.Operation)
	require.NotNil(t, res.Value)
	assert.Equal(t, expected, *res.Value)
	assert.Equal(t, "b1", res.ProcessedBy)

	b, err = svc.Bots.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, b.CurrentJobID)
	assert.Equal(t, domain.BotStatusIdle, b.Status)
}

// Replaying the same completion succeeds; a conflicting one is a 409.
func TestCompletion_ReplaySemantics(t *testing.T) {
	svc := SetupTestServices(t)
	ctx := context.Background()

	_, err := svc.Bots.Register(ctx, "b1", nil)
	require.NoError(t, err)
	ids, err := svc.Jobs.Populate(ctx, 1, "subtract")
	require.NoError(t, err)
	jobID := ids[0]

	claimed, err := svc.Jobs.Claim(ctx, "b1")
	require.NoError(t, err)
	require.NoError(t, svc.Jobs.Start(ctx, jobID, "b1"))

	value := claimed.A - claimed.B
	require.NoError(t, svc.Jobs.Complete(ctx, jobID, "b1", value, 50))

	// Exact replay is accepted.
	require.NoError(t, svc.Jobs.Complete(ctx, jobID, "b1", value, 50))

	// Different outcome is rejected, and only one result row exists.
	err = svc.Jobs.Complete(ctx, jobID, "b1", value+1, 50)
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	err = svc.Jobs.Fail(ctx, jobID, "b1", "late failure", 50)
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	var count int
	require.NoError(t, svc.Store.Pool().
		QueryRow(ctx, "SELECT COUNT(*) FROM results WHERE job_id = $1", jobID).Scan(&count))
	assert.Equal(t, 1, count)
}

// Release puts a claimed job back in the pool with attempts bumped; a
// pending job is not releasable.
func TestRelease(t *testing.T) {
	svc := SetupTestServices(t)
	ctx := context.Background()

	_, err := svc.Bots.Register(ctx, "b1", nil)
	require.NoError(t, err)
	ids, err := svc.Jobs.Populate(ctx, 1, "divide")
	require.NoError(t, err)
	jobID := ids[0]

	err = svc.Jobs.Release(ctx, jobID, "operator")
	require.ErrorIs(t, err, domain.ErrJobNotReleasable)

	_, err = svc.Jobs.Claim(ctx, "b1")
	require.NoError(t, err)

	require.NoError(t, svc.Jobs.Release(ctx, jobID, "operator"))

	j, err := svc.Jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, j.Status)
	assert.Nil(t, j.ClaimedBy)
	assert.Equal(t, 1, j.Attempts)

	b, err := svc.Bots.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, b.CurrentJobID)

	// Released work is claimable again.
	again, err := svc.Jobs.Claim(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, jobID, again.ID)
}

// The store rejects rows that break the pending/claimant pairing.
func TestStateConsistencyConstraint(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()

	_, err := store.Pool().Exec(ctx, `
		INSERT INTO jobs (id, a, b, operation, status, claimed_by)
		VALUES ('bad', 1, 2, 'sum', 'pending', 'ghost-bot')`)
	require.Error(t, err, "pending job with a claimant must violate job_state_consistency")
}
