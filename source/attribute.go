package source

import (
	"context"
	"database/sql"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// AttributeTree loads every attribute definition with its type, codebook,
// owning entity type and collection, indexed as a tree.
func (r *Reader) AttributeTree(ctx context.Context) (*visibility.Tree, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	types := map[int64]*eav.AttributeType{}
	err = r.each(ctx, `SELECT id, name, data_type, codebook_id, fixed_point_decimal_places,
			range_from_inclusive, range_to_inclusive, input_format, values_separator, published, deleted
		FROM attribute_type`, nil, func(rows *sql.Rows) error {
		var t eav.AttributeType
		var codebookID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Name, &t.DataType, &codebookID, &t.FixedPointDecimalPlaces,
			&t.RangeFromInclusive, &t.RangeToInclusive, &t.InputFormat, &t.ValuesSeparator, &t.Published, &t.Deleted); err != nil {
			return err
		}
		if codebookID.Valid {
			t.Codebook = cat.codebooks[codebookID.Int64]
		}
		types[t.ID] = &t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load attribute types")
	}

	var attrs []*eav.Attribute
	err = r.each(ctx, `SELECT id, string_id, name, attribute_type_id, entity_type_id, collection_id, parent_id,
			order_number, published, deleted,
			any_parent_deleted, all_parents_published, any_related_deleted, all_related_published,
			any_parent_any_related_deleted, all_parents_all_related_published, updated_at
		FROM attribute ORDER BY id`, nil, func(rows *sql.Rows) error {
		var (
			a                                  eav.Attribute
			typeID                             int64
			entityTypeID, collectionID, parent sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.StringID, &a.Name, &typeID, &entityTypeID, &collectionID, &parent,
			&a.OrderNumber, &a.Published, &a.Deleted,
			&a.AnyParentDeleted, &a.AllParentsPublished, &a.AnyRelatedDeleted, &a.AllRelatedPublished,
			&a.AnyParentAnyRelatedDeleted, &a.AllParentsAllRelatedPublished, &a.UpdatedAt); err != nil {
			return err
		}
		a.Type = types[typeID]
		if entityTypeID.Valid {
			et, ok := cat.entityTypes[entityTypeID.Int64]
			if !ok {
				et = eav.EntityTypeRef{ID: entityTypeID.Int64}
			}
			a.EntityType = &et
		}
		if collectionID.Valid {
			a.Collection = cat.collections[collectionID.Int64]
		}
		a.ParentID = intPtr(parent)
		attrs = append(attrs, &a)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load attributes")
	}
	return visibility.NewTree(attrs), nil
}

// EntityValues loads the attribute values owned by an entity. Attributes are
// resolved through tree so derived flags are shared.
func (r *Reader) EntityValues(ctx context.Context, tree *visibility.Tree, entityID int64) ([]*eav.AttributeValue, error) {
	return r.values(ctx, tree, `WHERE entity_id = ?`, entityID)
}

// ConnectionValues loads the attribute values owned by a connection.
func (r *Reader) ConnectionValues(ctx context.Context, tree *visibility.Tree, connectionID int64) ([]*eav.AttributeValue, error) {
	return r.values(ctx, tree, `WHERE entity_entity_id = ?`, connectionID)
}

// AttributeValue loads one value.
func (r *Reader) AttributeValue(ctx context.Context, tree *visibility.Tree, id int64) (*eav.AttributeValue, error) {
	vals, err := r.values(ctx, tree, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, errors.NewNotFoundError("attribute value %d", id)
	}
	return vals[0], nil
}

func (r *Reader) values(ctx context.Context, tree *visibility.Tree, where string, args ...any) ([]*eav.AttributeValue, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	type scanned struct {
		v    *eav.AttributeValue
		slot slotScan
	}
	var rows []*scanned
	var cvIDs []int64

	q := `SELECT id, entity_id, entity_entity_id, attribute_id, parent_value_id, ` + slotColumns("", "") + `,
			published, deleted, updated_at
		FROM attribute_value ` + where + ` ORDER BY id`
	err = r.each(ctx, q, args, func(rs *sql.Rows) error {
		s := &scanned{v: &eav.AttributeValue{}}
		var (
			entityID, connID, parent sql.NullInt64
			attributeID              int64
		)
		targets := []any{&s.v.ID, &entityID, &connID, &attributeID, &parent}
		targets = append(targets, s.slot.targets()...)
		targets = append(targets, &s.v.Published, &s.v.Deleted, &s.v.UpdatedAt)
		if err := rs.Scan(targets...); err != nil {
			return err
		}
		s.v.EntityID = intPtr(entityID)
		s.v.ConnectionID = intPtr(connID)
		s.v.ParentValueID = intPtr(parent)
		if a, ok := tree.Attribute(attributeID); ok {
			s.v.Attribute = a
		}
		if s.slot.codebookValueID.Valid {
			cvIDs = append(cvIDs, s.slot.codebookValueID.Int64)
		}
		rows = append(rows, s)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load attribute values")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cvs, err := r.codebookValues(ctx, cat, cvIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, s := range rows {
		ids[i] = s.v.ID
	}
	members, err := r.memberships(ctx, cat, `attribute_value_collection`, `attribute_value_id`, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*eav.AttributeValue, len(rows))
	for i, s := range rows {
		s.v.Slot = s.slot.slot(cat, cvs)
		s.v.Memberships = members[s.v.ID]
		out[i] = s.v
	}
	return out, nil
}
