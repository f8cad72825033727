package async

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/prism/errors"
)

const (
	// MaxJobsLimit is the maximum number of jobs returned by a listing
	MaxJobsLimit = 10000
)

// Queue names. Each has its own worker pool so a store outage only backs up its own queue.
const (
	QueueFanout = "fanout"
	QueueSearch = "search"
	QueueGraph  = "graph"
)

// Queues lists every queue in the order fan-out feeds them
var Queues = []string{QueueFanout, QueueSearch, QueueGraph}

// RetryPolicy controls how failed jobs are requeued
type RetryPolicy struct {
	MaxRetries int           // attempts after the first failure
	Backoff    time.Duration // delay multiplied by the attempt number
}

// Delay returns the wait before the given retry (1-based)
func (p RetryPolicy) Delay(retry int) time.Duration {
	return p.Backoff * time.Duration(retry)
}

// Queue is the persistent job queue shared by every worker pool in a process
type Queue struct {
	store  *Store
	policy RetryPolicy
	mu     sync.Mutex
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB, policy RetryPolicy) *Queue {
	return &Queue{
		store:  NewStore(db),
		policy: policy,
	}
}

// Store returns the underlying job store
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue adds a job unless an identical one is still waiting.
// Returns false when the job was deduplicated against a queued job with the same key.
func (q *Queue) Enqueue(job *Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.DedupeKey != "" {
		existing, err := q.store.FindQueued(job.Queue, job.HandlerName, job.DedupeKey)
		if err != nil {
			err = errors.Wrap(err, "failed to check for queued duplicate")
			err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
			err = errors.WithDetail(err, fmt.Sprintf("Dedupe key: %s", job.DedupeKey))
			return false, err
		}
		if existing != nil {
			return false, nil
		}
	}

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Queue: %s", job.Queue))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		return false, err
	}

	return true, nil
}

// Dequeue claims the next due job on the named queue and marks it as running
func (q *Queue) Dequeue(queue string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.ClaimNext(queue, time.Now())
	if err != nil {
		err = errors.Wrap(err, "failed to dequeue job")
		err = errors.WithDetail(err, fmt.Sprintf("Queue: %s", queue))
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// UpdateJob updates a job's state
func (q *Queue) UpdateJob(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to update job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
		return err
	}

	return nil
}

// CompleteJob marks a job as completed
func (q *Queue) CompleteJob(job *Job) error {
	job.Complete()
	if err := q.UpdateJob(job); err != nil {
		return errors.Wrap(err, "failed to complete job")
	}
	return nil
}

// FailJob marks a job as permanently failed
func (q *Queue) FailJob(job *Job, jobErr error) error {
	job.Fail(jobErr)
	if err := q.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as failed")
		err = errors.WithDetail(err, fmt.Sprintf("Job error: %s", jobErr.Error()))
		return err
	}
	return nil
}

// RetryJob requeues a job with linear backoff, or fails it once retries are exhausted.
// Returns true when the job was requeued.
func (q *Queue) RetryJob(job *Job, jobErr error) (bool, error) {
	if job.RetryCount >= q.policy.MaxRetries {
		wrapped := errors.Wrapf(jobErr, "after %d retries", job.RetryCount)
		return false, q.FailJob(job, wrapped)
	}

	job.Retry(jobErr, q.policy.Delay(job.RetryCount+1))
	if err := q.UpdateJob(job); err != nil {
		return false, errors.Wrap(err, "failed to requeue job for retry")
	}
	return true, nil
}

// ListJobs returns jobs, optionally filtered by queue and status
func (q *Queue) ListJobs(queue string, status *JobStatus, limit int) ([]*Job, error) {
	return q.store.ListJobs(queue, status, limit)
}

// Cleanup removes old completed/failed jobs
func (q *Queue) Cleanup(olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Queue     string `json:"queue"`
	Queued    int    `json:"queued"`
	Running   int    `json:"running"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

// GetStats returns job counts for one queue, or all queues when queue is empty
func (q *Queue) GetStats(queue string) (*QueueStats, error) {
	counts, err := q.store.CountByStatus(queue)
	if err != nil {
		err = errors.Wrap(err, "failed to get queue stats")
		err = errors.WithDetail(err, fmt.Sprintf("Queue: %s", queue))
		return nil, err
	}

	stats := &QueueStats{
		Queue:     queue,
		Queued:    counts[JobStatusQueued],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
	}
	for _, n := range counts {
		stats.Total += n
	}

	return stats, nil
}

// GetJobCounts returns quick counts of queued and running jobs on a queue
func (q *Queue) GetJobCounts(queue string) (queued int, running int, err error) {
	stats, err := q.GetStats(queue)
	if err != nil {
		return 0, 0, err
	}
	return stats.Queued, stats.Running, nil
}
