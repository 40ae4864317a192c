package models

import (
	"time"
)

// Job lifecycle states persisted in Postgres.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is a row in the batch_jobs table.
type Job struct {
	ID                 int64      `json:"id"`
	JobType            string     `json:"job_type"`
	Status             string     `json:"status"`
	Priority           int        `json:"priority"`
	RetryCount         int        `json:"retry_count"`
	MaxRetries         int        `json:"max_retries"`
	StopRequested      bool       `json:"stop_requested"`
	ProgressMessage    *string    `json:"progress_message,omitempty"`
	ProgressPercentage *int       `json:"progress_percentage,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
