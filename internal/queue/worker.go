package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// Handler executes one verification job. Returning an error marks the job
// failed; the error message becomes the job's terminal error.
type Handler func(ctx context.Context, job model.VerificationJob) (*model.VerificationResult, error)

// Worker runs a bounded pool of goroutines pulling jobs from the queue and
// invoking the handler. Jobs run to completion once claimed; cancellation
// only stops the pull loops.
type Worker struct {
	queue        Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithPollInterval sets how long an idle loop sleeps between polls
// (default 250ms).
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

// NewWorker creates a worker pool. Concurrency below 1 defaults to 1.
func NewWorker(q Queue, handler Handler, concurrency int, opts ...WorkerOption) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	w := &Worker{
		queue:        q,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled, executing jobs across the pool.
func (w *Worker) Run(ctx context.Context) error {
	zap.L().Info("worker: starting", zap.Int("concurrency", w.concurrency))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	err := g.Wait()
	zap.L().Info("worker: stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			zap.L().Error("worker: dequeue failed", zap.Error(err))
			if !w.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			if !w.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		w.execute(ctx, job)
	}
}

// execute runs one claimed job. A cancelled context mid-job still records
// the terminal state with a background context so the job never sticks in
// the active state.
func (w *Worker) execute(ctx context.Context, job *model.Job) {
	result, err := w.handler(ctx, job.Payload)

	finishCtx := ctx
	if finishCtx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if err != nil {
		zap.L().Warn("worker: job failed",
			zap.String("job_id", job.ID),
			zap.Int64("entity_id", job.Payload.EntityID),
			zap.Error(err))
		if ferr := w.queue.Fail(finishCtx, job.ID, err); ferr != nil {
			zap.L().Error("worker: record failure", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return
	}

	if cerr := w.queue.Complete(finishCtx, job.ID, result); cerr != nil {
		zap.L().Error("worker: record completion", zap.String("job_id", job.ID), zap.Error(cerr))
	}
}

func (w *Worker) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.pollInterval):
		return true
	}
}
