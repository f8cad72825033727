package async

import (
	"database/sql"
	"time"
)

// jobColumns is the column order scanJob expects.
const jobColumns = `id, queue, handler_name, payload, dedupe_key, status,
		error, retry_count, timeout_seconds, run_after,
		created_at, started_at, completed_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob reads one row selected with jobColumns into job.
func scanJob(row rowScanner, job *Job) error {
	var (
		payload, errMsg        sql.NullString
		timeoutSeconds         int64
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.Queue, &job.HandlerName, &payload, &job.DedupeKey, &job.Status,
		&errMsg, &job.RetryCount, &timeoutSeconds, &job.RunAfter,
		&job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	job.Error = errMsg.String
	job.Timeout = time.Duration(timeoutSeconds) * time.Second
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return nil
}
