package source

import (
	"context"
	"database/sql"
	"sync"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
)

// catalog holds the small definition tables, loaded fresh per call unless
// the context carries a scope from WithCatalog.
type catalog struct {
	entityTypes map[int64]eav.EntityTypeRef
	sources     map[int64]*eav.Source
	collections map[int64]*eav.Collection
	currencies  map[int64]*eav.Currency
	codebooks   map[int64]*eav.Codebook
	categories  map[int64]*eav.Category
	connTypes   map[int64]*eav.ConnectionType
	changeTypes map[int64]*eav.ChangeType
}

type catalogKey struct{}

type catalogScope struct {
	mu  sync.Mutex
	cat *catalog
}

// WithCatalog returns a context under which every loader shares one catalog
// load. Scope it to a single unit of work; later definition edits are not seen.
func WithCatalog(ctx context.Context) context.Context {
	if _, ok := ctx.Value(catalogKey{}).(*catalogScope); ok {
		return ctx
	}
	return context.WithValue(ctx, catalogKey{}, &catalogScope{})
}

func (r *Reader) catalog(ctx context.Context) (*catalog, error) {
	scope, ok := ctx.Value(catalogKey{}).(*catalogScope)
	if !ok {
		return r.loadCatalog(ctx)
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.cat == nil {
		cat, err := r.loadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		scope.cat = cat
	}
	return scope.cat, nil
}

func (r *Reader) loadCatalog(ctx context.Context) (*catalog, error) {
	cat := &catalog{
		entityTypes: map[int64]eav.EntityTypeRef{},
		sources:     map[int64]*eav.Source{},
		collections: map[int64]*eav.Collection{},
		currencies:  map[int64]*eav.Currency{},
		codebooks:   map[int64]*eav.Codebook{},
		categories:  map[int64]*eav.Category{},
		connTypes:   map[int64]*eav.ConnectionType{},
		changeTypes: map[int64]*eav.ChangeType{},
	}
	loaders := []struct {
		name string
		q    string
		scan func(*sql.Rows) error
	}{
		{"entity types", `SELECT id, name FROM entity_type`, func(rows *sql.Rows) error {
			var t eav.EntityTypeRef
			if err := rows.Scan(&t.ID, &t.Name); err != nil {
				return err
			}
			cat.entityTypes[t.ID] = t
			return nil
		}},
		{"sources", `SELECT id, name, quality, last_in_log, published, deleted FROM source`, func(rows *sql.Rows) error {
			var s eav.Source
			var last sql.NullTime
			if err := rows.Scan(&s.ID, &s.Name, &s.Quality, &last, &s.Published, &s.Deleted); err != nil {
				return err
			}
			s.LastInLog = timePtr(last)
			cat.sources[s.ID] = &s
			return nil
		}},
		{"collections", `SELECT id, name, source_id, quality, last_in_log, published, deleted FROM collection`, func(rows *sql.Rows) error {
			var c eav.Collection
			var sourceID int64
			var last sql.NullTime
			if err := rows.Scan(&c.ID, &c.Name, &sourceID, &c.Quality, &last, &c.Published, &c.Deleted); err != nil {
				return err
			}
			c.LastInLog = timePtr(last)
			c.Source = cat.sources[sourceID]
			cat.collections[c.ID] = &c
			return nil
		}},
		{"currencies", `SELECT id, code, sign FROM currency`, func(rows *sql.Rows) error {
			var c eav.Currency
			if err := rows.Scan(&c.ID, &c.Code, &c.Sign); err != nil {
				return err
			}
			cat.currencies[c.ID] = &c
			return nil
		}},
		{"codebooks", `SELECT id, name, is_open, published, deleted FROM codebook`, func(rows *sql.Rows) error {
			var c eav.Codebook
			if err := rows.Scan(&c.ID, &c.Name, &c.Open, &c.Published, &c.Deleted); err != nil {
				return err
			}
			cat.codebooks[c.ID] = &c
			return nil
		}},
		{"categories", `SELECT id, string_id, name, published, deleted FROM connection_type_category ORDER BY id`, func(rows *sql.Rows) error {
			var c eav.Category
			if err := rows.Scan(&c.ID, &c.StringID, &c.Name, &c.Published, &c.Deleted); err != nil {
				return err
			}
			cat.categories[c.ID] = &c
			return nil
		}},
		{"connection types", `SELECT id, name, reverse_name, category_id, potentially_pep, published, deleted FROM connection_type`, func(rows *sql.Rows) error {
			var t eav.ConnectionType
			var categoryID int64
			if err := rows.Scan(&t.ID, &t.Name, &t.ReverseName, &categoryID, &t.PotentiallyPEP, &t.Published, &t.Deleted); err != nil {
				return err
			}
			t.Category = cat.categories[categoryID]
			cat.connTypes[t.ID] = &t
			return nil
		}},
		{"change types", `SELECT id, name FROM change_type`, func(rows *sql.Rows) error {
			var t eav.ChangeType
			if err := rows.Scan(&t.ID, &t.Name); err != nil {
				return err
			}
			cat.changeTypes[t.ID] = &t
			return nil
		}},
	}

	for _, l := range loaders {
		if err := r.each(ctx, l.q, nil, l.scan); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", l.name)
		}
	}
	return cat, nil
}

// each runs q and calls scan per row.
func (r *Reader) each(ctx context.Context, q string, args []any, scan func(*sql.Rows) error) error {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Categories returns every connection-type category ordered by id.
func (r *Reader) Categories(ctx context.Context) ([]*eav.Category, error) {
	var out []*eav.Category
	err := r.each(ctx, `SELECT id, string_id, name, published, deleted FROM connection_type_category ORDER BY id`, nil, func(rows *sql.Rows) error {
		var c eav.Category
		if err := rows.Scan(&c.ID, &c.StringID, &c.Name, &c.Published, &c.Deleted); err != nil {
			return err
		}
		out = append(out, &c)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	return out, nil
}

// ConnectionType loads one connection type with its category.
func (r *Reader) ConnectionType(ctx context.Context, id int64) (*eav.ConnectionType, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := cat.connTypes[id]
	if !ok {
		return nil, errors.NewNotFoundError("connection type %d", id)
	}
	return t, nil
}

// CodebookValue loads one codebook value with its codebook.
func (r *Reader) CodebookValue(ctx context.Context, id int64) (*eav.CodebookValue, error) {
	cat, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}
	cvs, err := r.codebookValues(ctx, cat, []int64{id})
	if err != nil {
		return nil, err
	}
	cv, ok := cvs[id]
	if !ok {
		return nil, errors.NewNotFoundError("codebook value %d", id)
	}
	return cv, nil
}

func (r *Reader) codebookValues(ctx context.Context, cat *catalog, ids []int64) (map[int64]*eav.CodebookValue, error) {
	out := map[int64]*eav.CodebookValue{}
	for _, chunk := range chunks(ids) {
		q := `SELECT id, codebook_id, value, published, deleted FROM codebook_value WHERE id IN (` + placeholders(len(chunk)) + `)`
		err := r.each(ctx, q, int64Args(chunk), func(rows *sql.Rows) error {
			var cv eav.CodebookValue
			var codebookID int64
			if err := rows.Scan(&cv.ID, &codebookID, &cv.Value, &cv.Published, &cv.Deleted); err != nil {
				return err
			}
			cv.Codebook = cat.codebooks[codebookID]
			out[cv.ID] = &cv
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to load codebook values")
		}
	}
	return out, nil
}
