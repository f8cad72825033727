package source

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	prismtest "github.com/teranos/prism/internal/testing"
	"github.com/teranos/prism/visibility"
)

var stamp = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func mustExec(t *testing.T, conn *sql.DB, q string, args ...any) {
	t.Helper()
	_, err := conn.Exec(q, args...)
	require.NoError(t, err, q)
}

// seed inserts a small connected world:
//
//	person 1 --(director, business, pep-typed)--> legal entity 2
//
// backed by collection 1 of source 1, plus a first_name value on person 1
// and a legal_entity_type codebook value on entity 2.
func seed(t *testing.T) (*Reader, *sql.DB) {
	t.Helper()
	conn := prismtest.CreateSourceDB(t)

	mustExec(t, conn, `INSERT INTO source (id, name, quality, published, deleted, updated_at) VALUES (1, 'court', 5, 1, 0, ?)`, stamp)
	mustExec(t, conn, `INSERT INTO collection (id, name, source_id, quality, published, deleted, updated_at) VALUES (1, 'registry', 1, 3, 1, 0, ?)`, stamp)
	mustExec(t, conn, `INSERT INTO currency (id, code, sign) VALUES (1, 'EUR', '€')`)
	mustExec(t, conn, `INSERT INTO codebook (id, name, is_open, published, deleted) VALUES (1, 'le types', 0, 1, 0)`)
	mustExec(t, conn, `INSERT INTO codebook_value (id, codebook_id, value, published, deleted) VALUES (7, 1, 'd.o.o.', 1, 0)`)
	mustExec(t, conn, `INSERT INTO connection_type_category (id, string_id, name, published, deleted) VALUES (1, 'business', 'Business', 1, 0)`)
	mustExec(t, conn, `INSERT INTO connection_type (id, name, reverse_name, category_id, potentially_pep, published, deleted) VALUES (1, 'director', 'directed by', 1, 1, 1, 0)`)

	mustExec(t, conn, `INSERT INTO entity (id, public_id, entity_type_id, published, deleted, force_pep, updated_at) VALUES (1, 'P-1', 1, 1, 0, 0, ?)`, stamp)
	mustExec(t, conn, `INSERT INTO entity (id, public_id, entity_type_id, published, deleted, linked_potentially_pep, updated_at) VALUES (2, 'L-2', 2, 1, 0, 1, ?)`, stamp.Add(time.Hour))

	mustExec(t, conn, `INSERT INTO entity_entity (id, entity_a_id, entity_b_id, connection_type_id, transaction_amount, transaction_currency_id, transaction_date, published, deleted, updated_at)
		VALUES (10, 1, 2, 1, 1250, 1, ?, 1, 0, ?)`, stamp, stamp)
	mustExec(t, conn, `INSERT INTO entity_entity_collection (id, entity_entity_id, collection_id, published, deleted) VALUES (100, 10, 1, 1, 0)`)

	mustExec(t, conn, `INSERT INTO attribute_type (id, name, data_type, published, deleted) VALUES (1, 'text', 'string', 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_type (id, name, data_type, codebook_id, published, deleted) VALUES (2, 'le type', 'codebook', 1, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute (id, string_id, name, attribute_type_id, entity_type_id, published, deleted) VALUES (1, 'first_name', 'First name', 1, 1, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute (id, string_id, name, attribute_type_id, entity_type_id, published, deleted) VALUES (2, 'legal_entity_type', 'Type', 2, 2, 1, 0)`)

	mustExec(t, conn, `INSERT INTO attribute_value (id, entity_id, attribute_id, value_string, published, deleted) VALUES (50, 1, 1, 'Ana', 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_value (id, entity_id, attribute_id, value_codebook_value_id, published, deleted) VALUES (51, 2, 2, 7, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_value_collection (id, attribute_value_id, collection_id, published, deleted) VALUES (500, 50, 1, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_value_collection (id, attribute_value_id, collection_id, published, deleted) VALUES (501, 51, 1, 1, 0)`)

	return New(conn, DriverSQLite, nil), conn
}

func TestEntity(t *testing.T) {
	r, _ := seed(t)
	ctx := context.Background()

	e, err := r.Entity(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "L-2", e.PublicID)
	assert.Equal(t, eav.LegalEntity, e.Type.Name)
	assert.True(t, e.LinkedPotentiallyPEP)
	assert.True(t, e.Visible())

	_, err = r.Entity(ctx, 99)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestConnectionLoadsDependencies(t *testing.T) {
	r, _ := seed(t)
	ctx := context.Background()

	c, err := r.Connection(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, c.EntityA)
	require.NotNil(t, c.EntityB)
	assert.Equal(t, "P-1", c.EntityA.PublicID)
	assert.Equal(t, "L-2", c.EntityB.PublicID)
	require.NotNil(t, c.Type)
	assert.True(t, c.Type.PotentiallyPEP)
	assert.Equal(t, "business", c.Type.Category.StringID)
	assert.Equal(t, int64(1250), *c.TransactionAmount)
	assert.Equal(t, "EUR", c.TransactionCurrency.Code)
	require.Len(t, c.Memberships, 1)
	assert.Equal(t, "court", c.Memberships[0].Collection.Source.Name)
	assert.True(t, visibility.Connection(c).Visible())

	conns, err := r.ConnectionsOf(ctx, 2)
	require.NoError(t, err)
	require.Len(t, conns, 1)

	_, err = r.Connection(ctx, 11)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAttributeTreeAndValues(t *testing.T) {
	r, _ := seed(t)
	ctx := context.Background()

	tree, err := r.AttributeTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree.Roots(), 2)

	a, ok := tree.Attribute(2)
	require.True(t, ok)
	assert.Equal(t, eav.CodebookRef, a.DataType())
	require.NotNil(t, a.Type.Codebook)
	assert.Equal(t, eav.LegalEntity, a.EntityType.Name)
	assert.True(t, a.FinallyVisible(), "schema defaults are the visible derived state")

	vals, err := r.EntityValues(ctx, tree, 2)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	v := vals[0]
	assert.Same(t, a, v.Attribute)
	require.NotNil(t, v.CodebookValue)
	assert.Equal(t, "d.o.o.", v.CodebookValue.Value)
	assert.Equal(t, "le types", v.CodebookValue.Codebook.Name)
	assert.True(t, visibility.Value(v).Visible())

	v, err = r.AttributeValue(ctx, tree, 50)
	require.NoError(t, err)
	assert.Equal(t, "Ana", *v.String)

	none, err := r.ConnectionValues(ctx, tree, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPersons(t *testing.T) {
	r, _ := seed(t)
	ids, err := r.Persons(context.Background(), []int64{2, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestRelated(t *testing.T) {
	r, _ := seed(t)
	ctx := context.Background()

	tests := []struct {
		from   Model
		id     int64
		target Model
		want   []int64
	}{
		{ModelEntity, 1, ModelConnection, []int64{10}},
		{ModelEntity, 2, ModelEntity, []int64{1}},
		{ModelConnection, 10, ModelEntity, []int64{1, 2}},
		{ModelCollection, 1, ModelAttributeValue, []int64{50, 51}},
		{ModelCollection, 1, ModelConnection, []int64{10}},
		{ModelCategory, 1, ModelEntity, []int64{1, 2}},
		{ModelCodebookValue, 7, ModelAttributeValue, []int64{51}},
		{ModelValueMembership, 500, ModelAttributeValue, []int64{50}},
		{ModelCurrency, 1, ModelConnection, []int64{10}},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.target), func(t *testing.T) {
			got, err := r.Related(ctx, tt.from, tt.id, tt.target)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}

	_, err := r.Related(ctx, ModelCurrency, 1, ModelSource)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestPagingAndModifiedSince(t *testing.T) {
	r, _ := seed(t)
	ctx := context.Background()

	ids, err := r.IDs(ctx, ModelEntity, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
	ids, err = r.IDs(ctx, ModelEntity, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	ids, err = r.ModifiedSince(ctx, ModelEntity, stamp.Add(30*time.Minute), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	exists, err := r.Exists(ctx, ModelConnection, 10)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = r.IDs(ctx, Model("entity; DROP TABLE entity"), 0, 1)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestSaveAttributeFlags(t *testing.T) {
	r, _ := seed(t)
	ctx := context.Background()

	tree, err := r.AttributeTree(ctx)
	require.NoError(t, err)
	a, _ := tree.Attribute(1)
	a.Type.Deleted = true
	changes := tree.Recompute()
	require.NotEmpty(t, changes)
	require.NoError(t, r.SaveAttributeFlags(ctx, changes))

	reloaded, err := r.AttributeTree(ctx)
	require.NoError(t, err)
	got, _ := reloaded.Attribute(1)
	assert.True(t, got.AnyRelatedDeleted)
	assert.True(t, got.FinallyDeleted())
	other, _ := reloaded.Attribute(2)
	assert.False(t, other.FinallyDeleted())
}

func TestSaveLastInLog(t *testing.T) {
	r, conn := seed(t)
	ctx := context.Background()

	mustExec(t, conn, `INSERT INTO changeset (id, collection_id, created_at, published, deleted) VALUES (1, 1, ?, 1, 0)`, stamp)
	mustExec(t, conn, `INSERT INTO changeset (id, collection_id, created_at, published, deleted) VALUES (2, 1, ?, 1, 0)`, stamp.Add(48*time.Hour))

	sourceID, err := r.SaveLastInLog(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sourceID)

	cs, err := r.Changeset(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, cs.Collection)
	require.NotNil(t, cs.Collection.LastInLog)
	assert.True(t, cs.Collection.LastInLog.Equal(stamp.Add(48*time.Hour)))
	require.NotNil(t, cs.Collection.Source.LastInLog)
	assert.True(t, cs.Collection.Source.LastInLog.Equal(stamp.Add(48*time.Hour)))

	sourceID, err = r.SaveLastInLog(ctx, 99)
	require.NoError(t, err)
	assert.Zero(t, sourceID)
}

func TestChangeRows(t *testing.T) {
	r, conn := seed(t)
	ctx := context.Background()

	mustExec(t, conn, `INSERT INTO change_type (id, name) VALUES (1, 'import')`)
	mustExec(t, conn, `INSERT INTO changeset (id, collection_id, change_type_id, created_at, published, deleted) VALUES (1, 1, 1, ?, 1, 0)`, stamp)
	mustExec(t, conn, `INSERT INTO attribute_value_change (id, changeset_id, attribute_value_id, entity_id, attribute_id, old_value_string, new_value_string, published, deleted)
		VALUES (1, 1, 50, 1, 1, 'Anna', 'Ana', 1, 0)`)
	mustExec(t, conn, `INSERT INTO entity_entity_change (id, changeset_id, entity_entity_id, old_transaction_amount, new_transaction_amount, new_transaction_currency_id, published, deleted)
		VALUES (2, 1, 10, 1000, 1250, 1, 1, 0)`)

	tree, err := r.AttributeTree(ctx)
	require.NoError(t, err)

	vc, err := r.AttributeValueChange(ctx, tree, 1)
	require.NoError(t, err)
	assert.Equal(t, "Anna", *vc.Old.String)
	assert.Equal(t, "Ana", *vc.New.String)
	assert.Equal(t, "import", vc.Changeset.ChangeType.Name)
	assert.Equal(t, "P-1", vc.Entity.PublicID)
	assert.True(t, visibility.ValueChange(vc).Visible())

	cc, err := r.ConnectionChange(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), *cc.OldTransactionAmount)
	assert.Equal(t, "EUR", cc.NewTransactionCurrency.Code)
	assert.Nil(t, cc.OldTransactionCurrency)
	assert.True(t, visibility.ConnectionChange(cc).Visible())

	_, err = r.ConnectionChange(ctx, 3)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCatalogLookups(t *testing.T) {
	r, _ := seed(t)
	ctx := context.Background()

	cats, err := r.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "business", cats[0].StringID)

	ct, err := r.ConnectionType(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "directed by", ct.ReverseName)

	cv, err := r.CodebookValue(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "d.o.o.", cv.Value)

	_, err = r.CodebookValue(ctx, 8)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCatalogScopeLoadsOnce(t *testing.T) {
	r, conn := seed(t)
	scoped := WithCatalog(context.Background())

	ct, err := r.ConnectionType(scoped, 1)
	require.NoError(t, err)
	assert.Equal(t, "director", ct.Name)

	mustExec(t, conn, `UPDATE connection_type SET name = 'manager' WHERE id = 1`)

	ct, err = r.ConnectionType(scoped, 1)
	require.NoError(t, err)
	assert.Equal(t, "director", ct.Name, "scoped loaders share the first load")
	assert.Equal(t, scoped, WithCatalog(scoped))

	ct, err = r.ConnectionType(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "manager", ct.Name)
}

func TestPostgresPlaceholders(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	r := New(conn, DriverPostgres, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM entity_entity WHERE entity_a_id = $1 OR entity_b_id = $2`)).
		WithArgs(int64(5), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(4)))

	ids, err := r.Related(context.Background(), ModelEntity, 5, ModelConnection)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	r := New(conn, DriverSQLite, nil)
	mock.ExpectQuery(`SELECT id FROM entity WHERE id > \?`).WillReturnError(errors.New("connection reset"))

	_, err = r.IDs(context.Background(), ModelEntity, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to page entity")
	assert.Contains(t, err.Error(), "connection reset")
}
