package model

import "time"

// JobState represents the lifecycle state of a queued verification job.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobDelayed   JobState = "delayed"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// VerificationJob is the payload of one queued unit of verification work.
type VerificationJob struct {
	EntityID      int64      `json:"entity_id"`
	CanonicalName string     `json:"canonical_name"`
	EntityType    EntityType `json:"entity_type"`
	TableType     TableType  `json:"table_type"`
	ForceRefresh  bool       `json:"force_refresh,omitempty"`
	// MaxAgeHours overrides the default freshness window for this job.
	// Zero means use the configured default.
	MaxAgeHours int `json:"max_age_hours,omitempty"`
}

// Job wraps a verification payload with queue bookkeeping. Terminal jobs are
// retained for polling until the queue's retention window expires.
type Job struct {
	ID         string              `json:"id"`
	State      JobState            `json:"state"`
	Priority   int                 `json:"priority"`
	Payload    VerificationJob     `json:"payload"`
	Result     *VerificationResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	ReadyAt    time.Time           `json:"ready_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// QueueCounts is an aggregate snapshot of jobs per state.
type QueueCounts struct {
	Waiting   int `json:"waiting"`
	Delayed   int `json:"delayed"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
