package model

import "time"

// BulkRunProgress tracks the resumable state of one bulk verification run.
// The cursor (LastProcessedID) is strictly increasing across batches, so an
// entity id is never enumerated twice within the same run.
type BulkRunProgress struct {
	RunID           string     `json:"run_id"`
	TableType       TableType  `json:"table_type"`
	TotalItems      int        `json:"total_items"`
	ProcessedItems  int        `json:"processed_items"`
	QueuedItems     int        `json:"queued_items"`
	ErrorCount      int        `json:"error_count"`
	BatchesRun      int        `json:"batches_run"`
	LastProcessedID int64      `json:"last_processed_id"`
	IsRunning       bool       `json:"is_running"`
	StopReason      string     `json:"stop_reason,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}
