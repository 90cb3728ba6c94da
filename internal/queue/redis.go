package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// priorityStride separates priority bands in the ready set score. Within a
// band jobs keep FIFO order via a monotonic sequence; a higher priority
// always scores lower (pops first) than any lower-priority job.
const priorityStride = 1e12

// Redis is a Queue backed by Redis sorted sets: one holding ready jobs
// scored by (priority, sequence), one holding delayed jobs scored by their
// ready-at time. Job bodies live in per-job keys; terminal jobs expire
// after the retention window.
type Redis struct {
	client    *redis.Client
	namespace string
	retention time.Duration

	nowFunc func() time.Time
}

// RedisOption configures a Redis queue.
type RedisOption func(*Redis)

// WithNamespace sets the key prefix (default "verify").
func WithNamespace(ns string) RedisOption {
	return func(q *Redis) { q.namespace = ns }
}

// WithRetention sets how long terminal jobs stay pollable (default 24h).
func WithRetention(d time.Duration) RedisOption {
	return func(q *Redis) { q.retention = d }
}

// NewRedis creates a Redis-backed queue on an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	q := &Redis{
		client:    client,
		namespace: "verify",
		retention: 24 * time.Hour,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *Redis) jobKey(id string) string { return q.namespace + ":job:" + id }
func (q *Redis) readyKey() string        { return q.namespace + ":ready" }
func (q *Redis) delayedKey() string      { return q.namespace + ":delayed" }
func (q *Redis) seqKey() string          { return q.namespace + ":seq" }
func (q *Redis) activeKey() string       { return q.namespace + ":active" }
func (q *Redis) countsKey() string       { return q.namespace + ":counts" }

// readyScore orders the ready set: lower scores pop first.
func readyScore(priority int, seq int64) float64 {
	return float64(seq) - float64(priority)*priorityStride
}

func (q *Redis) saveJob(ctx context.Context, job *model.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "queue: marshal job")
	}
	return eris.Wrap(q.client.Set(ctx, q.jobKey(job.ID), data, ttl).Err(), "queue: save job")
}

func (q *Redis) loadJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "queue: load job %s", id)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrapf(err, "queue: unmarshal job %s", id)
	}
	return &job, nil
}

func (q *Redis) Enqueue(ctx context.Context, payload model.VerificationJob, opts EnqueueOptions) (string, error) {
	now := q.nowFunc().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		State:     model.JobWaiting,
		Priority:  opts.Priority,
		Payload:   payload,
		CreatedAt: now,
		ReadyAt:   now,
	}
	if opts.Delay > 0 {
		job.State = model.JobDelayed
		job.ReadyAt = now.Add(opts.Delay)
	}

	if err := q.saveJob(ctx, job, 0); err != nil {
		return "", err
	}

	if job.State == model.JobDelayed {
		err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
			Score:  float64(job.ReadyAt.UnixMilli()),
			Member: job.ID,
		}).Err()
		return job.ID, eris.Wrap(err, "queue: add delayed")
	}

	seq, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return "", eris.Wrap(err, "queue: next sequence")
	}
	err = q.client.ZAdd(ctx, q.readyKey(), redis.Z{
		Score:  readyScore(job.Priority, seq),
		Member: job.ID,
	}).Err()
	return job.ID, eris.Wrap(err, "queue: add ready")
}

// promoteDelayed moves due delayed jobs into the ready set. FIFO order
// among promoted jobs follows promotion order.
func (q *Redis) promoteDelayed(ctx context.Context) error {
	now := q.nowFunc().UTC()
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return eris.Wrap(err, "queue: range delayed")
	}

	for _, id := range due {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			// Body expired while delayed; drop the orphan member.
			q.client.ZRem(ctx, q.delayedKey(), id)
			continue
		}
		seq, err := q.client.Incr(ctx, q.seqKey()).Result()
		if err != nil {
			return eris.Wrap(err, "queue: next sequence")
		}
		job.State = model.JobWaiting
		if err := q.saveJob(ctx, job, 0); err != nil {
			return err
		}
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: readyScore(job.Priority, seq), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return eris.Wrap(err, "queue: promote delayed")
		}
	}
	return nil
}

func (q *Redis) Dequeue(ctx context.Context) (*model.Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}

	for {
		popped, err := q.client.ZPopMin(ctx, q.readyKey(), 1).Result()
		if err != nil {
			return nil, eris.Wrap(err, "queue: pop ready")
		}
		if len(popped) == 0 {
			return nil, nil
		}

		id, _ := popped[0].Member.(string)
		job, err := q.loadJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			zap.L().Warn("queue: dropping ready job with expired body", zap.String("job_id", id))
			continue
		}

		job.State = model.JobActive
		started := q.nowFunc().UTC()
		job.StartedAt = &started
		if err := q.saveJob(ctx, job, 0); err != nil {
			return nil, err
		}
		if err := q.client.SAdd(ctx, q.activeKey(), id).Err(); err != nil {
			return nil, eris.Wrap(err, "queue: mark active")
		}
		return job, nil
	}
}

func (q *Redis) Complete(ctx context.Context, jobID string, result *model.VerificationResult) error {
	return q.finish(ctx, jobID, model.JobCompleted, result, "")
}

func (q *Redis) Fail(ctx context.Context, jobID string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return q.finish(ctx, jobID, model.JobFailed, nil, msg)
}

func (q *Redis) finish(ctx context.Context, jobID string, state model.JobState, result *model.VerificationResult, errMsg string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return eris.Errorf("queue: job not found: %s", jobID)
	}

	job.State = state
	job.Result = result
	job.Error = errMsg
	finished := q.nowFunc().UTC()
	job.FinishedAt = &finished

	if err := q.saveJob(ctx, job, q.retention); err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.SRem(ctx, q.activeKey(), jobID)
	pipe.HIncrBy(ctx, q.countsKey(), string(state), 1)
	_, err = pipe.Exec(ctx)
	return eris.Wrap(err, "queue: finish job")
}

func (q *Redis) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return q.loadJob(ctx, jobID)
}

func (q *Redis) Counts(ctx context.Context) (model.QueueCounts, error) {
	var counts model.QueueCounts

	waiting, err := q.client.ZCard(ctx, q.readyKey()).Result()
	if err != nil {
		return counts, eris.Wrap(err, "queue: count ready")
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return counts, eris.Wrap(err, "queue: count delayed")
	}
	active, err := q.client.SCard(ctx, q.activeKey()).Result()
	if err != nil {
		return counts, eris.Wrap(err, "queue: count active")
	}
	terminal, err := q.client.HGetAll(ctx, q.countsKey()).Result()
	if err != nil {
		return counts, eris.Wrap(err, "queue: count terminal")
	}

	counts.Waiting = int(waiting)
	counts.Delayed = int(delayed)
	counts.Active = int(active)
	if v, ok := terminal[string(model.JobCompleted)]; ok {
		counts.Completed, _ = strconv.Atoi(v)
	}
	if v, ok := terminal[string(model.JobFailed)]; ok {
		counts.Failed, _ = strconv.Atoi(v)
	}
	return counts, nil
}
