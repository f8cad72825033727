package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/teranos/prism/errors"
)

// SQLMarker keeps the marker in the reconcile_markers table of the job database.
// Acquire and Release are single conditional UPDATEs, so processes sharing the
// database file cannot both hold it.
type SQLMarker struct {
	db   *sql.DB
	name string
}

// NewSQLMarker creates a marker stored under name
func NewSQLMarker(db *sql.DB, name string) *SQLMarker {
	if name == "" {
		name = DefaultMarkerName
	}
	return &SQLMarker{db: db, name: name}
}

// Acquire takes the marker if it is free or its lease has expired
func (m *SQLMarker) Acquire(ctx context.Context, holder string, ttl time.Duration) error {
	now := time.Now().UTC()

	if _, err := m.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reconcile_markers (name) VALUES (?)`, m.name); err != nil {
		return errors.Wrapf(err, "failed to ensure marker %s", m.name)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE reconcile_markers
		SET holder = ?, held_until = ?, updated_at = ?
		WHERE name = ?
		  AND (holder IS NULL OR held_until IS NULL OR held_until < ?)`,
		holder, now.Add(ttl), now, m.name, now)
	if err != nil {
		return errors.Wrapf(err, "failed to acquire marker %s", m.name)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.WithDetail(errors.Wrapf(errors.ErrMarkerHeld, "marker %s", m.name),
			fmt.Sprintf("Requested by: %s", holder))
	}

	return nil
}

// Watermark returns the stored watermark
func (m *SQLMarker) Watermark(ctx context.Context) (time.Time, error) {
	var wm sql.NullTime
	err := m.db.QueryRowContext(ctx,
		`SELECT watermark FROM reconcile_markers WHERE name = ?`, m.name).Scan(&wm)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to read watermark of %s", m.name)
	}
	if !wm.Valid {
		return time.Time{}, nil
	}
	return wm.Time.UTC(), nil
}

// Release frees the marker held by holder and optionally advances the watermark.
// Returns ErrMarkerHeld if the lease expired and someone else took it.
func (m *SQLMarker) Release(ctx context.Context, holder string, advance time.Time) error {
	var wm interface{}
	if !advance.IsZero() {
		wm = advance.UTC()
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE reconcile_markers
		SET holder = NULL, held_until = NULL, watermark = COALESCE(?, watermark), updated_at = ?
		WHERE name = ? AND holder = ?`,
		wm, time.Now().UTC(), m.name, holder)
	if err != nil {
		return errors.Wrapf(err, "failed to release marker %s", m.name)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		err := errors.Wrapf(errors.ErrMarkerHeld, "marker %s no longer held by %s", m.name, holder)
		return errors.WithHint(err, "the run outlived reconcile.lock_ttl_seconds; raise it above the longest scan")
	}

	return nil
}
