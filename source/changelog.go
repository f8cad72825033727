package source

import (
	"context"
	"database/sql"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// Changeset loads one changeset with its change type and collection.
func (r *Reader) Changeset(ctx context.Context, id int64) (*eav.Changeset, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := r.changeset(ctx, cat, id)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, errors.NewNotFoundError("changeset %d", id)
	}
	return cs, nil
}

func (r *Reader) changeset(ctx context.Context, cat *catalog, id int64) (*eav.Changeset, error) {
	var (
		cs           eav.Changeset
		collectionID int64
		changeType   sql.NullInt64
	)
	err := r.queryRow(ctx, `SELECT id, collection_id, change_type_id, created_at, published, deleted
		FROM changeset WHERE id = ?`, id).
		Scan(&cs.ID, &collectionID, &changeType, &cs.CreatedAt, &cs.Published, &cs.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load changeset %d", id)
	}
	cs.Collection = cat.collections[collectionID]
	if changeType.Valid {
		cs.ChangeType = cat.changeTypes[changeType.Int64]
	}
	return &cs, nil
}

// AttributeValueChange loads one value change row with its changeset chain,
// owner and attribute.
func (r *Reader) AttributeValueChange(ctx context.Context, tree *visibility.Tree, id int64) (*eav.AttributeValueChange, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	var (
		c                              eav.AttributeValueChange
		changesetID, attributeID       int64
		valueID, entityID, connID      sql.NullInt64
		oldSlot, newSlot               slotScan
		oldFrom, oldTo, newFrom, newTo sql.NullTime
	)
	targets := []any{&c.ID, &changesetID, &valueID, &entityID, &connID, &attributeID}
	targets = append(targets, oldSlot.targets()...)
	targets = append(targets, newSlot.targets()...)
	targets = append(targets, &oldFrom, &oldTo, &newFrom, &newTo, &c.Published, &c.Deleted)

	q := `SELECT id, changeset_id, attribute_value_id, entity_id, entity_entity_id, attribute_id, ` +
		slotColumns("", "old_") + `, ` + slotColumns("", "new_") + `,
			old_valid_from, old_valid_to, new_valid_from, new_valid_to, published, deleted
		FROM attribute_value_change WHERE id = ?`
	err = r.queryRow(ctx, q, id).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("attribute value change %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load attribute value change %d", id)
	}

	if c.Changeset, err = r.changeset(ctx, cat, changesetID); err != nil {
		return nil, err
	}
	c.AttributeValueID = intPtr(valueID)
	if a, ok := tree.Attribute(attributeID); ok {
		c.Attribute = a
	}
	if entityID.Valid {
		ents, err := r.entities(ctx, cat, []int64{entityID.Int64})
		if err != nil {
			return nil, err
		}
		c.Entity = ents[entityID.Int64]
	}
	if connID.Valid {
		conn, err := r.Connection(ctx, connID.Int64)
		if err != nil && !errors.IsNotFoundError(err) {
			return nil, err
		}
		c.Connection = conn
	}

	var cvIDs []int64
	for _, s := range []*slotScan{&oldSlot, &newSlot} {
		if s.codebookValueID.Valid {
			cvIDs = append(cvIDs, s.codebookValueID.Int64)
		}
	}
	cvs, err := r.codebookValues(ctx, cat, cvIDs)
	if err != nil {
		return nil, err
	}
	c.Old = oldSlot.slot(cat, cvs)
	c.New = newSlot.slot(cat, cvs)
	c.OldValidity = eav.Interval{From: timePtr(oldFrom), To: timePtr(oldTo)}
	c.NewValidity = eav.Interval{From: timePtr(newFrom), To: timePtr(newTo)}
	return &c, nil
}

// ConnectionChange loads one connection change row with its changeset chain
// and connection.
func (r *Reader) ConnectionChange(ctx context.Context, id int64) (*eav.ConnectionChange, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	var (
		c                              eav.ConnectionChange
		changesetID, connID            int64
		oldFrom, oldTo, newFrom, newTo sql.NullTime
		oldAmount, newAmount           sql.NullInt64
		oldCurrency, newCurrency       sql.NullInt64
		oldDate, newDate               sql.NullTime
	)
	err = r.queryRow(ctx, `SELECT id, changeset_id, entity_entity_id,
			old_valid_from, old_valid_to, new_valid_from, new_valid_to,
			old_transaction_amount, new_transaction_amount,
			old_transaction_currency_id, new_transaction_currency_id,
			old_transaction_date, new_transaction_date, published, deleted
		FROM entity_entity_change WHERE id = ?`, id).
		Scan(&c.ID, &changesetID, &connID, &oldFrom, &oldTo, &newFrom, &newTo,
			&oldAmount, &newAmount, &oldCurrency, &newCurrency, &oldDate, &newDate, &c.Published, &c.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("connection change %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load connection change %d", id)
	}

	if c.Changeset, err = r.changeset(ctx, cat, changesetID); err != nil {
		return nil, err
	}
	conn, err := r.Connection(ctx, connID)
	if err != nil && !errors.IsNotFoundError(err) {
		return nil, err
	}
	c.Connection = conn
	c.OldValidity = eav.Interval{From: timePtr(oldFrom), To: timePtr(oldTo)}
	c.NewValidity = eav.Interval{From: timePtr(newFrom), To: timePtr(newTo)}
	c.OldTransactionAmount = intPtr(oldAmount)
	c.NewTransactionAmount = intPtr(newAmount)
	if oldCurrency.Valid {
		c.OldTransactionCurrency = cat.currencies[oldCurrency.Int64]
	}
	if newCurrency.Valid {
		c.NewTransactionCurrency = cat.currencies[newCurrency.Int64]
	}
	c.OldTransactionDate = timePtr(oldDate)
	c.NewTransactionDate = timePtr(newDate)
	return &c, nil
}
