package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/entity-verify/internal/model"
)

func payload(id int64) model.VerificationJob {
	return model.VerificationJob{
		EntityID:      id,
		CanonicalName: "Spider-Man",
		EntityType:    model.EntityTypeCharacter,
		TableType:     model.TableCharacters,
	}
}

func TestMemory_FIFOWithinPriority(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, payload(1), EnqueueOptions{})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, payload(2), EnqueueOptions{})
	require.NoError(t, err)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, first.ID)
	assert.Equal(t, model.JobActive, first.State)
	require.NotNil(t, first.StartedAt)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, second.ID)

	empty, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestMemory_PriorityOrder(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, payload(1), EnqueueOptions{Priority: 1})
	require.NoError(t, err)
	urgent, err := q.Enqueue(ctx, payload(2), EnqueueOptions{Priority: 10})
	require.NoError(t, err)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, urgent, first.ID)
}

func TestMemory_DelayedPromotion(t *testing.T) {
	q := NewMemory()
	now := time.Now().UTC()
	q.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	id, err := q.Enqueue(ctx, payload(1), EnqueueOptions{Delay: time.Minute})
	require.NoError(t, err)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobDelayed, job.State)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Delayed)

	now = now.Add(2 * time.Minute)
	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
}

func TestMemory_CompleteAndFail(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	okID, err := q.Enqueue(ctx, payload(1), EnqueueOptions{})
	require.NoError(t, err)
	badID, err := q.Enqueue(ctx, payload(2), EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, okID, &model.VerificationResult{
		EntityID: 1,
		Status:   model.StatusVerified,
	}))
	require.NoError(t, q.Fail(ctx, badID, errors.New("no_data: no sources returned data")))

	done, err := q.Get(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.State)
	require.NotNil(t, done.Result)
	assert.Equal(t, model.StatusVerified, done.Result.Status)
	require.NotNil(t, done.FinishedAt)

	failed, err := q.Get(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, failed.State)
	assert.Contains(t, failed.Error, "no_data")

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCounts{Completed: 1, Failed: 1}, counts)
}

func TestMemory_GetUnknownJob(t *testing.T) {
	q := NewMemory()
	job, err := q.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestMemory_FinishUnknownJob(t *testing.T) {
	q := NewMemory()
	err := q.Complete(context.Background(), "does-not-exist", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestReadyScore_Ordering(t *testing.T) {
	// Higher priority always scores lower than any lower-priority job.
	assert.Less(t, readyScore(10, 1_000_000), readyScore(1, 1))
	// FIFO within one priority band.
	assert.Less(t, readyScore(5, 1), readyScore(5, 2))
}
