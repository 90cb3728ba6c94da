// Package bulk schedules verification jobs over entire entity tables with
// keyset pagination and resumable per-run progress.
package bulk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/queue"
	"github.com/longbox-labs/entity-verify/internal/store"
)

// RunParams configure one bulk verification run.
type RunParams struct {
	TableType           model.TableType
	BatchSize           int           // default 100
	DelayBetweenBatches time.Duration // default 1s
	MaxBatches          int           // 0 = run until the cursor is exhausted
	Priority            int
	ForceRefresh        bool // enumerate all entities, not just unverified
}

func (p RunParams) withDefaults() RunParams {
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.DelayBetweenBatches <= 0 {
		p.DelayBetweenBatches = time.Second
	}
	return p
}

// run pairs a run's progress with its cooperative stop flag. Progress is
// only mutated by the run's own batch loop; the mutex publishes it safely
// to pollers.
type run struct {
	mu       sync.Mutex
	progress model.BulkRunProgress
	stop     atomic.Bool
}

func (r *run) snapshot() model.BulkRunProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Scheduler owns the registry of bulk runs. Runs enumerate entities by
// keyset cursor and enqueue verification jobs at a controlled rate.
type Scheduler struct {
	store   store.Store
	queue   queue.Queue
	limiter *rate.Limiter
	stagger time.Duration

	mu   sync.Mutex
	runs map[string]*run
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEnqueueRate caps enqueue throughput in jobs per second.
func WithEnqueueRate(perSecond float64) Option {
	return func(s *Scheduler) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithStagger sets the per-item delay spread within a batch (default 50ms).
func WithStagger(d time.Duration) Option {
	return func(s *Scheduler) { s.stagger = d }
}

// NewScheduler creates a Scheduler.
func NewScheduler(st store.Store, q queue.Queue, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   st,
		queue:   q,
		limiter: rate.NewLimiter(rate.Limit(100), 10),
		stagger: 50 * time.Millisecond,
		runs:    make(map[string]*run),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StartRun begins a bulk run and returns its id. The run executes in the
// background, detached from the caller's context.
func (s *Scheduler) StartRun(ctx context.Context, params RunParams) (string, error) {
	params = params.withDefaults()
	if !params.TableType.Valid() {
		return "", eris.Errorf("bulk: unknown table type %q", string(params.TableType))
	}

	status := model.StatusUnverified
	if params.ForceRefresh {
		status = ""
	}
	total, err := s.store.CountEntities(ctx, params.TableType, status)
	if err != nil {
		return "", eris.Wrap(err, "bulk: count entities")
	}

	r := &run{progress: model.BulkRunProgress{
		RunID:      uuid.New().String(),
		TableType:  params.TableType,
		TotalItems: total,
		IsRunning:  true,
		StartedAt:  time.Now().UTC(),
	}}

	s.mu.Lock()
	s.runs[r.progress.RunID] = r
	s.mu.Unlock()

	zap.L().Info("bulk: run started",
		zap.String("run_id", r.progress.RunID),
		zap.String("table", string(params.TableType)),
		zap.Int("total", total),
		zap.Int("batch_size", params.BatchSize),
		zap.Int("max_batches", params.MaxBatches))

	go s.execute(context.Background(), r, params, status)

	return r.progress.RunID, nil
}

// Progress returns a copy of a run's progress.
func (s *Scheduler) Progress(runID string) (model.BulkRunProgress, bool) {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return model.BulkRunProgress{}, false
	}
	return r.snapshot(), true
}

// Stop requests cooperative cancellation of a run. In-flight batches finish;
// already-queued jobs are not retracted. Returns false for unknown or
// already-finished runs.
func (s *Scheduler) Stop(runID string) bool {
	s.mu.Lock()
	r, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if !r.snapshot().IsRunning {
		return false
	}
	r.stop.Store(true)
	return true
}

func (s *Scheduler) execute(ctx context.Context, r *run, params RunParams, status model.VerificationStatus) {
	var cursor int64

	for batch := 0; ; batch++ {
		if r.stop.Load() {
			s.finish(r, "stopped")
			return
		}
		if params.MaxBatches > 0 && batch >= params.MaxBatches {
			s.finish(r, "max_batches")
			return
		}

		entities, err := s.store.ListEntities(ctx, params.TableType, store.ListFilter{
			Status:  status,
			AfterID: cursor,
			Limit:   params.BatchSize,
		})
		if err != nil {
			zap.L().Error("bulk: list batch failed",
				zap.String("run_id", r.progress.RunID), zap.Error(err))
			r.mu.Lock()
			r.progress.ErrorCount++
			r.mu.Unlock()
			s.finish(r, "error")
			return
		}
		if len(entities) == 0 {
			s.finish(r, "completed")
			return
		}

		queued := 0
		errored := 0
		for i, e := range entities {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
			_, err := s.queue.Enqueue(ctx, model.VerificationJob{
				EntityID:      e.ID,
				CanonicalName: e.CanonicalName,
				EntityType:    e.EntityType,
				TableType:     params.TableType,
				ForceRefresh:  params.ForceRefresh,
			}, queue.EnqueueOptions{
				Priority: params.Priority,
				Delay:    time.Duration(i) * s.stagger,
			})
			if err != nil {
				errored++
				zap.L().Warn("bulk: enqueue failed",
					zap.String("run_id", r.progress.RunID),
					zap.Int64("entity_id", e.ID),
					zap.Error(err))
				continue
			}
			queued++
		}

		cursor = entities[len(entities)-1].ID

		r.mu.Lock()
		r.progress.ProcessedItems += len(entities)
		r.progress.QueuedItems += queued
		r.progress.ErrorCount += errored
		r.progress.BatchesRun++
		r.progress.LastProcessedID = cursor
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			s.finish(r, "stopped")
			return
		case <-time.After(params.DelayBetweenBatches):
		}
	}
}

func (s *Scheduler) finish(r *run, reason string) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.progress.IsRunning = false
	r.progress.StopReason = reason
	r.progress.FinishedAt = &now
	progress := r.progress
	r.mu.Unlock()

	zap.L().Info("bulk: run finished",
		zap.String("run_id", progress.RunID),
		zap.String("reason", reason),
		zap.Int("processed", progress.ProcessedItems),
		zap.Int("queued", progress.QueuedItems),
		zap.Int("errors", progress.ErrorCount))
}
