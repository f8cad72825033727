package source

import (
	"context"
	"database/sql"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
)

const entityColumns = `id, public_id, entity_type_id, published, deleted, linked_potentially_pep, force_pep, updated_at`

func scanEntity(rows interface{ Scan(...any) error }, cat *catalog) (*eav.Entity, error) {
	var e eav.Entity
	var typeID int64
	if err := rows.Scan(&e.ID, &e.PublicID, &typeID, &e.Published, &e.Deleted, &e.LinkedPotentiallyPEP, &e.ForcePEP, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Type = cat.entityTypes[typeID]
	if e.Type.ID == 0 {
		e.Type.ID = typeID
	}
	return &e, nil
}

// Entity loads one entity.
func (r *Reader) Entity(ctx context.Context, id int64) (*eav.Entity, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}
	e, err := scanEntity(r.queryRow(ctx, `SELECT `+entityColumns+` FROM entity WHERE id = ?`, id), cat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("entity %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load entity %d", id)
	}
	return e, nil
}

func (r *Reader) entities(ctx context.Context, cat *catalog, ids []int64) (map[int64]*eav.Entity, error) {
	out := map[int64]*eav.Entity{}
	for _, chunk := range chunks(ids) {
		q := `SELECT ` + entityColumns + ` FROM entity WHERE id IN (` + placeholders(len(chunk)) + `)`
		err := r.each(ctx, q, int64Args(chunk), func(rows *sql.Rows) error {
			e, err := scanEntity(rows, cat)
			if err != nil {
				return err
			}
			out[e.ID] = e
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to load entities")
		}
	}
	return out, nil
}

// Persons filters ids down to person-typed entities, keeping order.
func (r *Reader) Persons(ctx context.Context, ids []int64) ([]int64, error) {
	keep := map[int64]bool{}
	for _, chunk := range chunks(ids) {
		q := `SELECT e.id FROM entity e JOIN entity_type t ON t.id = e.entity_type_id
			WHERE t.name = ? AND e.id IN (` + placeholders(len(chunk)) + `)`
		found, err := r.ids(ctx, q, append([]any{string(eav.Person)}, int64Args(chunk)...)...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to filter persons")
		}
		for _, id := range found {
			keep[id] = true
		}
	}
	var out []int64
	for _, id := range ids {
		if keep[id] {
			out = append(out, id)
			delete(keep, id)
		}
	}
	return out, nil
}

const connectionColumns = `id, entity_a_id, entity_b_id, connection_type_id, transaction_amount,
	transaction_currency_id, transaction_date, valid_from, valid_to, published, deleted, updated_at`

// Connection loads one connection with endpoints, type, currency and memberships.
func (r *Reader) Connection(ctx context.Context, id int64) (*eav.Connection, error) {
	conns, err := r.connections(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, errors.NewNotFoundError("connection %d", id)
	}
	return conns[0], nil
}

// ConnectionsOf loads every connection touching entityID, in either direction.
func (r *Reader) ConnectionsOf(ctx context.Context, entityID int64) ([]*eav.Connection, error) {
	return r.connections(ctx, `WHERE entity_a_id = ? OR entity_b_id = ?`, entityID, entityID)
}

func (r *Reader) connections(ctx context.Context, where string, args ...any) ([]*eav.Connection, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	type endpoints struct{ a, b int64 }
	var (
		out  []*eav.Connection
		ends []endpoints
	)
	q := `SELECT ` + connectionColumns + ` FROM entity_entity ` + where + ` ORDER BY id`
	err = r.each(ctx, q, args, func(rows *sql.Rows) error {
		var (
			c          eav.Connection
			ep         endpoints
			typeID     int64
			amount     sql.NullInt64
			currencyID sql.NullInt64
			txDate     sql.NullTime
			from, to   sql.NullTime
		)
		if err := rows.Scan(&c.ID, &ep.a, &ep.b, &typeID, &amount, &currencyID, &txDate, &from, &to, &c.Published, &c.Deleted, &c.UpdatedAt); err != nil {
			return err
		}
		c.Type = cat.connTypes[typeID]
		c.TransactionAmount = intPtr(amount)
		if currencyID.Valid {
			c.TransactionCurrency = cat.currencies[currencyID.Int64]
		}
		c.TransactionDate = timePtr(txDate)
		c.ValidFrom = timePtr(from)
		c.ValidTo = timePtr(to)
		out = append(out, &c)
		ends = append(ends, ep)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load connections")
	}
	if len(out) == 0 {
		return nil, nil
	}

	var entityIDs, connIDs []int64
	for i, c := range out {
		entityIDs = append(entityIDs, ends[i].a, ends[i].b)
		connIDs = append(connIDs, c.ID)
	}
	ents, err := r.entities(ctx, cat, entityIDs)
	if err != nil {
		return nil, err
	}
	members, err := r.memberships(ctx, cat, `entity_entity_collection`, `entity_entity_id`, connIDs)
	if err != nil {
		return nil, err
	}
	for i, c := range out {
		c.EntityA = ents[ends[i].a]
		c.EntityB = ents[ends[i].b]
		c.Memberships = members[c.ID]
	}
	return out, nil
}

// memberships loads join rows of table keyed by ownerColumn.
func (r *Reader) memberships(ctx context.Context, cat *catalog, table, ownerColumn string, owners []int64) (map[int64][]eav.Membership, error) {
	out := map[int64][]eav.Membership{}
	for _, chunk := range chunks(owners) {
		q := `SELECT ` + ownerColumn + `, id, collection_id, valid_from, valid_to, published, deleted
			FROM ` + table + ` WHERE ` + ownerColumn + ` IN (` + placeholders(len(chunk)) + `) ORDER BY id`
		err := r.each(ctx, q, int64Args(chunk), func(rows *sql.Rows) error {
			var (
				owner, collectionID int64
				m                   eav.Membership
				from, to            sql.NullTime
			)
			if err := rows.Scan(&owner, &m.ID, &collectionID, &from, &to, &m.Published, &m.Deleted); err != nil {
				return err
			}
			m.Collection = cat.collections[collectionID]
			m.ValidFrom = timePtr(from)
			m.ValidTo = timePtr(to)
			out[owner] = append(out[owner], m)
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", table)
		}
	}
	return out, nil
}
