package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

func makeInvocation(taskID string) model.Invocation {
	return model.Invocation{
		RepositoryID: 1,
		Branch:       "main",
		Scope:        model.ScopeBranch,
		TaskID:       taskID,
		TriggerMode:  model.TriggerManual,
		TriggeredBy:  "alice",
	}
}

func TestJobQueue_FIFOClaim(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, makeInvocation("t1")))
	require.NoError(t, q.Enqueue(ctx, makeInvocation("t2")))

	first, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "t1", first.Invocation.TaskID)
	assert.Equal(t, model.ScopeBranch, first.Invocation.Scope)
	assert.Equal(t, 1, first.Attempts)

	second, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "t2", second.Invocation.TaskID)

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJobQueue_DuplicateTaskID(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, makeInvocation("webhook_1_abc")))
	assert.ErrorIs(t, q.Enqueue(ctx, makeInvocation("webhook_1_abc")), driven.ErrTaskExists)
}

func TestJobQueue_RequeueRespectsAvailableAt(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, makeInvocation("t1")))
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Requeue(ctx, job.ID, "network down", now.Add(time.Minute)))

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "job must not be claimable before its retry delay")

	now = now.Add(2 * time.Minute)
	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
	assert.Equal(t, "network down", again.LastError)

	require.NoError(t, q.Complete(ctx, again.ID))
	none, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJobQueue_RecoverRunning(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, makeInvocation("t1")))
	require.NoError(t, q.Enqueue(ctx, makeInvocation("t2")))
	_, err := q.Claim(ctx)
	require.NoError(t, err)
	j2, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, j2.ID, "boom"))

	n, err := q.RecoverRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "t1", job.Invocation.TaskID)
}
