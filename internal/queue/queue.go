// Package queue provides the asynchronous verification job queue: a
// priority- and delay-capable task queue decoupling "schedule a
// verification" from "execute a verification".
package queue

import (
	"context"
	"time"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// EnqueueOptions control job placement. Higher priority dequeues first;
// Delay holds the job in the delayed set until it becomes ready.
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
}

// Queue is the verification job queue contract. Implementations must be
// safe for use by concurrent workers.
type Queue interface {
	// Enqueue places a job and returns its id. With a positive delay the
	// job starts in the delayed state.
	Enqueue(ctx context.Context, payload model.VerificationJob, opts EnqueueOptions) (string, error)

	// Dequeue claims the next ready job, marking it active. Returns
	// (nil, nil) when nothing is ready.
	Dequeue(ctx context.Context) (*model.Job, error)

	// Complete records a successful terminal state with its result.
	Complete(ctx context.Context, jobID string, result *model.VerificationResult) error

	// Fail records a failed terminal state with the error message.
	Fail(ctx context.Context, jobID string, jobErr error) error

	// Get returns a job by id, or (nil, nil) if unknown or expired.
	Get(ctx context.Context, jobID string) (*model.Job, error)

	// Counts reports the number of jobs per state.
	Counts(ctx context.Context) (model.QueueCounts, error)
}
