package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/flotilla/internal/domain"
	"github.com/rezkam/flotilla/internal/ptr"
)

// Registering the same id twice yields one bot and refreshes the
// heartbeat instead of erroring.
func TestRegister_Idempotent(t *testing.T) {
	svc := SetupTestServices(t)
	ctx := context.Background()

	first, err := svc.Bots.Register(ctx, "b1", nil)
	require.NoError(t, err)

	second, err := svc.Bots.Register(ctx, "b1", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, svc.Store.Pool().
		QueryRow(ctx, "SELECT COUNT(*) FROM bots WHERE id = 'b1'").Scan(&count))
	assert.Equal(t, 1, count)
}

// Re-registering a soft-deleted bot revives it with the operation pin
// preserved; an explicit pin on re-register overrides it.
func TestRegister_ReviveAfterSoftDelete(t *testing.T) {
	svc := SetupTestServices(t)
	ctx := context.Background()

	_, err := svc.Bots.Register(ctx, "b1", ptr.To("divide"))
	require.NoError(t, err)
	require.NoError(t, svc.Bots.SoftDelete(ctx, "b1"))

	_, err = svc.Bots.Get(ctx, "b1")
	require.ErrorIs(t, err, domain.ErrBotNotFound, "soft-deleted bot must be invisible to live lookups")

	revived, err := svc.Bots.Register(ctx, "b1", nil)
	require.NoError(t, err)
	assert.Nil(t, revived.DeletedAt)
	assert.Equal(t, domain.BotStatusIdle, revived.Status)
	require.NotNil(t, revived.AssignedOperation)
	assert.Equal(t, "divide", *revived.AssignedOperation, "pin survives delete and revive")

	overridden, err := svc.Bots.Register(ctx, "b1", ptr.To("sum"))
	require.NoError(t, err)
	require.NotNil(t, overridden.AssignedOperation)
	assert.Equal(t, "sum", *overridden.AssignedOperation)
}

// Deleting a bot mid-job releases a claimed job and terminally fails a
// processing one.
func TestSoftDelete_HeldJob(t *testing.T) {
	svc := SetupTestServices(t)
	ctx := context.Background()

	t.Run("claimed job is released", func(t *testing.T) {
		_, err := svc.Bots.Register(ctx, "claimer", nil)
		require.NoError(t, err)
		ids, err := svc.Jobs.Populate(ctx, 1, "sum")
		require.NoError(t, err)

		_, err = svc.Jobs.Claim(ctx, "claimer")
		require.NoError(t, err)

		require.NoError(t, svc.Bots.SoftDelete(ctx, "claimer"))

		j, err := svc.Jobs.Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, j.Status)
	})

	t.Run("processing job is failed", func(t *testing.T) {
		_, err := svc.Bots.Register(ctx, "processor", ptr.To("multiply"))
		require.NoError(t, err)
		ids, err := svc.Jobs.Populate(ctx, 1, "multiply")
		require.NoError(t, err)

		_, err = svc.Jobs.Claim(ctx, "processor")
		require.NoError(t, err)
		require.NoError(t, svc.Jobs.Start(ctx, ids[0], "processor"))

		require.NoError(t, svc.Bots.SoftDelete(ctx, "processor"))

		j, err := svc.Jobs.Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, j.Status)
		require.NotNil(t, j.Error)
		assert.Equal(t, "bot-deleted", *j.Error)
	})
}

// The partial unique index allows at most one bot per job binding.
func TestUniqueCurrentJobConstraint(t *testing.T) {
	svc := SetupTestServices(t)
	ctx := context.Background()

	_, err := svc.Bots.Register(ctx, "b1", nil)
	require.NoError(t, err)
	_, err = svc.Bots.Register(ctx, "b2", nil)
	require.NoError(t, err)
	ids, err := svc.Jobs.Populate(ctx, 1, "sum")
	require.NoError(t, err)

	_, err = svc.Jobs.Claim(ctx, "b1")
	require.NoError(t, err)

	_, err = svc.Store.Pool().Exec(ctx,
		"UPDATE bots SET current_job_id = $1 WHERE id = 'b2'", ids[0])
	require.Error(t, err, "second binding to the same job must violate uq_bots_current_job")
}
