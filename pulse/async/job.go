// Package async provides the persistent job queues and worker pools that carry
// projection work off the mutation path.
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/prism/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Job is one unit of work on a named queue.
//
// The payload carries identifiers only. Handlers re-read current state from the
// source when they run, so a job may execute late, out of order or more than once.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`             // "fanout", "search", "graph"
	HandlerName string          `json:"handler_name"`      // "search.entity", "graph.connection"
	Payload     json.RawMessage `json:"payload,omitempty"` // Handler-specific identifiers
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	Status      JobStatus       `json:"status"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"` // 0 = pool default
	RunAfter    time.Time       `json:"run_after"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJob creates a queued job that is due immediately.
//
// Example:
//
//	payload, _ := json.Marshal(orchestrator.UnitPayload{ID: 42})
//	job, _ := async.NewJob("search", "search.entity", "42", payload)
func NewJob(queue, handlerName, dedupeKey string, payload json.RawMessage) (*Job, error) {
	if queue == "" {
		return nil, errors.NewInvalidRequestError("queue cannot be empty")
	}
	if handlerName == "" {
		return nil, errors.NewInvalidRequestError("handlerName cannot be empty")
	}

	now := time.Now().UTC()
	return &Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		HandlerName: handlerName,
		Payload:     payload,
		DedupeKey:   dedupeKey,
		Status:      JobStatusQueued,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Attempt returns the 1-based attempt number of the current or next run
func (j *Job) Attempt() int {
	return j.RetryCount + 1
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Error = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Retry puts the job back on its queue, due after delay
func (j *Job) Retry(err error, delay time.Duration) {
	now := time.Now().UTC()
	j.RetryCount++
	j.Status = JobStatusQueued
	j.Error = err.Error()
	j.StartedAt = nil
	j.RunAfter = now.Add(delay)
	j.UpdatedAt = now
}

// Requeue returns a running job to the queue without counting an attempt.
// Used for orphan recovery and for jobs interrupted by shutdown.
func (j *Job) Requeue(runAfter time.Time) {
	j.Status = JobStatusQueued
	j.Error = ""
	j.StartedAt = nil
	j.RunAfter = runAfter.UTC()
	j.UpdatedAt = time.Now().UTC()
}
