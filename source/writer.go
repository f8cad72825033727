package source

import (
	"context"
	"database/sql"

	"github.com/teranos/prism/db"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// SaveAttributeFlags persists recomputed derived flags in one transaction.
// updated_at is left alone so the write does not re-trigger reconciliation.
func (r *Reader) SaveAttributeFlags(ctx context.Context, changes []visibility.Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin attribute flag update")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, db.Rebind(r.style, `UPDATE attribute SET
			any_parent_deleted = ?, all_parents_published = ?,
			any_related_deleted = ?, all_related_published = ?,
			any_parent_any_related_deleted = ?, all_parents_all_related_published = ?
		WHERE id = ?`))
	if err != nil {
		return errors.Wrap(err, "failed to prepare attribute flag update")
	}
	defer stmt.Close()

	for _, c := range changes {
		d := c.After
		if _, err := stmt.ExecContext(ctx,
			d.AnyParentDeleted, d.AllParentsPublished,
			d.AnyRelatedDeleted, d.AllRelatedPublished,
			d.AnyParentAnyRelatedDeleted, d.AllParentsAllRelatedPublished,
			c.AttributeID,
		); err != nil {
			return errors.Wrapf(err, "failed to update attribute %d flags", c.AttributeID)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit attribute flags")
}

// SaveLastInLog recomputes last_in_log of a collection from its changesets
// and of the collection's source from all of its collections. It returns
// the source id, or 0 when the collection no longer exists.
func (r *Reader) SaveLastInLog(ctx context.Context, collectionID int64) (int64, error) {
	var sourceID int64
	err := r.queryRow(ctx, `SELECT source_id FROM collection WHERE id = ?`, collectionID).Scan(&sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load collection %d", collectionID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin last_in_log update")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.Rebind(r.style, `UPDATE collection
		SET last_in_log = (SELECT MAX(created_at) FROM changeset WHERE collection_id = ?)
		WHERE id = ?`), collectionID, collectionID); err != nil {
		return 0, errors.Wrapf(err, "failed to update collection %d last_in_log", collectionID)
	}
	if _, err := tx.ExecContext(ctx, db.Rebind(r.style, `UPDATE source
		SET last_in_log = (SELECT MAX(last_in_log) FROM collection WHERE source_id = ?)
		WHERE id = ?`), sourceID, sourceID); err != nil {
		return 0, errors.Wrapf(err, "failed to update source %d last_in_log", sourceID)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit last_in_log")
	}
	return sourceID, nil
}
