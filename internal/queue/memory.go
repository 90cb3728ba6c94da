package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// Memory is an in-process Queue for tests and single-process runs. Jobs are
// retained after reaching a terminal state for polling; there is no
// eviction, matching the lifetime of a short-lived process.
type Memory struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	seq     map[string]int64
	nextSeq int64

	nowFunc func() time.Time
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string]*model.Job),
		seq:     make(map[string]int64),
		nowFunc: time.Now,
	}
}

func (m *Memory) Enqueue(_ context.Context, payload model.VerificationJob, opts EnqueueOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()
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

	m.nextSeq++
	m.jobs[job.ID] = job
	m.seq[job.ID] = m.nextSeq
	return job.ID, nil
}

func (m *Memory) Dequeue(_ context.Context) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()

	// Promote due delayed jobs.
	for _, j := range m.jobs {
		if j.State == model.JobDelayed && !j.ReadyAt.After(now) {
			j.State = model.JobWaiting
		}
	}

	// Highest priority first, FIFO within a priority.
	var best *model.Job
	for id, j := range m.jobs {
		if j.State != model.JobWaiting {
			continue
		}
		if best == nil || j.Priority > best.Priority ||
			(j.Priority == best.Priority && m.seq[id] < m.seq[best.ID]) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	best.State = model.JobActive
	started := now
	best.StartedAt = &started
	cp := *best
	return &cp, nil
}

func (m *Memory) Complete(_ context.Context, jobID string, result *model.VerificationResult) error {
	return m.finish(jobID, model.JobCompleted, result, "")
}

func (m *Memory) Fail(_ context.Context, jobID string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return m.finish(jobID, model.JobFailed, nil, msg)
}

func (m *Memory) finish(jobID string, state model.JobState, result *model.VerificationResult, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return eris.Errorf("queue: job not found: %s", jobID)
	}
	job.State = state
	job.Result = result
	job.Error = errMsg
	finished := m.nowFunc().UTC()
	job.FinishedAt = &finished
	return nil
}

func (m *Memory) Get(_ context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) Counts(_ context.Context) (model.QueueCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()
	var counts model.QueueCounts
	for _, j := range m.jobs {
		state := j.State
		if state == model.JobDelayed && !j.ReadyAt.After(now) {
			state = model.JobWaiting
		}
		switch state {
		case model.JobWaiting:
			counts.Waiting++
		case model.JobDelayed:
			counts.Delayed++
		case model.JobActive:
			counts.Active++
		case model.JobCompleted:
			counts.Completed++
		case model.JobFailed:
			counts.Failed++
		}
	}
	return counts, nil
}
