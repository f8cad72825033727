package async

import (
	"database/sql"
	"time"

	"github.com/teranos/prism/errors"
)

// Store handles persistence of sync jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying job database
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO sync_jobs (
			id, queue, handler_name, payload, dedupe_key,
			status, error, retry_count, timeout_seconds,
			run_after, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}
	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	_, err := s.db.Exec(query,
		job.ID,
		job.Queue,
		job.HandlerName,
		payload,
		job.DedupeKey,
		job.Status,
		errMsg,
		job.RetryCount,
		int64(job.Timeout/time.Second),
		job.RunAfter.UTC(),
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = ?`

	var job Job
	err := scanJob(s.db.QueryRow(query, id), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return &job, nil
}

// UpdateJob writes the mutable fields of an existing job
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE sync_jobs
		SET status = ?,
		    error = ?,
		    retry_count = ?,
		    run_after = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	_, err := s.db.Exec(query,
		job.Status,
		errMsg,
		job.RetryCount,
		job.RunAfter.UTC(),
		utcPtr(job.StartedAt),
		utcPtr(job.CompletedAt),
		job.UpdatedAt.UTC(),
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	return nil
}

// ClaimNext marks the oldest due job on a queue as running and returns it.
// Returns nil when nothing is due or another worker claimed the candidate first.
func (s *Store) ClaimNext(queue string, now time.Time) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM sync_jobs
		WHERE queue = ?
		  AND status = 'queued'
		  AND run_after <= ?
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	var job Job
	err := scanJob(s.db.QueryRow(query, queue, now.UTC()), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select next job")
	}

	job.Start()

	// The status guard makes the claim atomic across processes sharing the file
	result, err := s.db.Exec(`
		UPDATE sync_jobs
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'queued'`,
		job.StartedAt.UTC(), job.UpdatedAt.UTC(), job.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim job")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return nil, nil
	}

	return &job, nil
}

// FindQueued returns the queued job with the same queue, handler and dedupe key.
// Returns nil if none is waiting.
func (s *Store) FindQueued(queue, handlerName, dedupeKey string) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM sync_jobs
		WHERE queue = ?
		  AND handler_name = ?
		  AND dedupe_key = ?
		  AND status = 'queued'
		LIMIT 1`

	var job Job
	err := scanJob(s.db.QueryRow(query, queue, handlerName, dedupeKey), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find queued job")
	}

	return &job, nil
}

// ListJobs returns jobs newest first, optionally filtered by queue and status.
// An empty queue matches every queue.
func (s *Store) ListJobs(queue string, status *JobStatus, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE 1 = 1`
	var args []interface{}

	if queue != "" {
		query += ` AND queue = ?`
		args = append(args, queue)
	}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// scanJobs scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := scanJob(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}

// CountByStatus returns job counts per status for one queue, or all queues when queue is empty
func (s *Store) CountByStatus(queue string) (map[JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM sync_jobs`
	var args []interface{}
	if queue != "" {
		query += ` WHERE queue = ?`
		args = append(args, queue)
	}
	query += ` GROUP BY status`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}

	return counts, nil
}

// DeleteJob removes a job from the database
func (s *Store) DeleteJob(id string) error {
	result, err := s.db.Exec(`DELETE FROM sync_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}

	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}

	return nil
}

// CleanupOldJobs removes completed/failed jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		DELETE FROM sync_jobs
		WHERE status IN ('completed', 'failed')
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

func utcPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
