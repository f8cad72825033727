package graphstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/graph"
)

type fakeRunner struct {
	txs    [][]statement
	err    error
	closed bool
}

func (f *fakeRunner) write(_ context.Context, stmts []statement) error {
	if f.err != nil {
		return f.err
	}
	f.txs = append(f.txs, stmts)
	return nil
}

func (f *fakeRunner) close(context.Context) error {
	f.closed = true
	return nil
}

func person(id int64, publicID string) *eav.Entity {
	return &eav.Entity{ID: id, PublicID: publicID, Type: eav.EntityTypeRef{ID: 1, Name: eav.Person}}
}

func TestUpsertNodeReplacesProperties(t *testing.T) {
	fr := &fakeRunner{}
	s := newNeo4jSink(fr, nil)

	n := graph.Node{Key: "P-1", Props: map[string]any{"id": int64(1), "public_id": "P-1", "name": "Ana"}}
	require.NoError(t, s.UpsertNode(context.Background(), n))

	require.Len(t, fr.txs, 1)
	tx := fr.txs[0]
	require.Len(t, tx, 2)
	assert.Contains(t, tx[0].cypher, "SET n.public_id = $key")
	assert.Equal(t, int64(1), tx[0].params["id"])
	assert.Contains(t, tx[1].cypher, "MERGE (n:Entity {public_id: $key})")
	assert.Contains(t, tx[1].cypher, "SET n = $props")
	assert.Equal(t, n.Props, tx[1].params["props"])
}

func TestUpsertEdgeDeletesThenCreatesInOneTransaction(t *testing.T) {
	fr := &fakeRunner{}
	s := newNeo4jSink(fr, nil)

	a, b := person(1, "P-1"), person(2, "P-2")
	e := graph.Edge{ID: 10, From: "P-1", To: "P-2", Props: map[string]any{"id": int64(10), "type": "spouse"}}
	require.NoError(t, s.UpsertEdge(context.Background(), e, graph.StubNode(a), graph.StubNode(b)))

	require.Len(t, fr.txs, 1)
	tx := fr.txs[0]
	require.Len(t, tx, 2)
	assert.Equal(t, deleteEdge, tx[0].cypher)
	assert.Equal(t, int64(10), tx[0].params["id"])
	assert.Equal(t, createEdge, tx[1].cypher)
	assert.Equal(t, "P-1", tx[1].params["from"])
	assert.Equal(t, "P-2", tx[1].params["to"])
	assert.Equal(t, graph.StubNode(b).Props, tx[1].params["to_props"])
	assert.True(t, strings.Contains(createEdge, "ON CREATE SET a = $from_props"), "stubs never overwrite written nodes")
}

func TestInvalidWritesAreRejected(t *testing.T) {
	fr := &fakeRunner{}
	s := newNeo4jSink(fr, nil)
	ctx := context.Background()

	err := s.UpsertNode(ctx, graph.Node{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	err = s.UpsertEdge(ctx, graph.Edge{ID: 3, From: "P-1"}, graph.Node{}, graph.Node{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Empty(t, fr.txs)
}

func TestDeletes(t *testing.T) {
	fr := &fakeRunner{}
	s := newNeo4jSink(fr, nil)
	ctx := context.Background()

	require.NoError(t, s.DeleteNode(ctx, 4))
	require.NoError(t, s.DeleteEdge(ctx, 9))
	require.Len(t, fr.txs, 2)
	assert.Contains(t, fr.txs[0][0].cypher, "DETACH DELETE n")
	assert.Equal(t, int64(4), fr.txs[0][0].params["id"])
	assert.Contains(t, fr.txs[1][0].cypher, "DELETE r")
	assert.Equal(t, int64(9), fr.txs[1][0].params["id"])
}

func TestStoreFailuresAreRetryable(t *testing.T) {
	fr := &fakeRunner{err: errors.New("ServiceUnavailable")}
	s := newNeo4jSink(fr, nil)
	ctx := context.Background()

	for _, err := range []error{
		s.UpsertNode(ctx, graph.Node{Key: "P-1", Props: map[string]any{"id": int64(1)}}),
		s.UpsertEdge(ctx, graph.Edge{ID: 1, From: "P-1", To: "P-2"}, graph.Node{}, graph.Node{}),
		s.DeleteNode(ctx, 1),
		s.DeleteEdge(ctx, 1),
		s.EnsureSchema(ctx),
	} {
		require.Error(t, err)
		assert.True(t, errors.IsStoreUnavailable(err), err.Error())
	}
}

func TestEnsureSchema(t *testing.T) {
	fr := &fakeRunner{}
	s := newNeo4jSink(fr, nil)
	require.NoError(t, s.EnsureSchema(context.Background()))

	var all []string
	for _, tx := range fr.txs {
		require.Len(t, tx, 1, "schema statements run alone")
		all = append(all, tx[0].cypher)
	}
	assert.Contains(t, all, "CREATE CONSTRAINT entity_public_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.public_id IS UNIQUE")
	assert.Contains(t, all, "CREATE INDEX entity_potentially_pep IF NOT EXISTS FOR (n:Entity) ON (n.potentially_pep)")
	assert.Contains(t, all, "CREATE INDEX connection_deleted IF NOT EXISTS FOR ()-[r:CONNECTION]-() ON (r.deleted)")
	for _, q := range all {
		assert.Contains(t, q, "IF NOT EXISTS")
	}
}

func TestNopLogsOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewNop(zap.New(core).Sugar())
	ctx := context.Background()

	assert.False(t, n.Enabled())
	require.NoError(t, n.UpsertNode(ctx, graph.Node{}))
	require.NoError(t, n.UpsertEdge(ctx, graph.Edge{}, graph.Node{}, graph.Node{}))
	require.NoError(t, n.DeleteNode(ctx, 1))
	require.NoError(t, n.DeleteEdge(ctx, 1))
	assert.Equal(t, 1, logs.Len())
}

func TestCloseClosesDriver(t *testing.T) {
	fr := &fakeRunner{}
	require.NoError(t, newNeo4jSink(fr, nil).Close(context.Background()))
	assert.True(t, fr.closed)
}
