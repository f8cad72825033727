package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/graph"
	prismtest "github.com/teranos/prism/internal/testing"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/pulse/async"
	"github.com/teranos/prism/search"
	"github.com/teranos/prism/source"
	"github.com/teranos/prism/visibility"
)

var stamp = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func mustExec(t *testing.T, conn *sql.DB, q string, args ...any) {
	t.Helper()
	_, err := conn.Exec(q, args...)
	require.NoError(t, err, q)
}

// seedSource inserts person 1 --(director, pep-typed)--> legal entity 2,
// backed by collection 1, with a first_name value on person 1 and a
// codebook typed value on entity 2.
func seedSource(t *testing.T) *sql.DB {
	t.Helper()
	conn := prismtest.CreateSourceDB(t)

	mustExec(t, conn, `INSERT INTO source (id, name, quality, published, deleted, updated_at) VALUES (1, 'court', 5, 1, 0, ?)`, stamp)
	mustExec(t, conn, `INSERT INTO collection (id, name, source_id, quality, published, deleted, updated_at) VALUES (1, 'registry', 1, 3, 1, 0, ?)`, stamp)
	mustExec(t, conn, `INSERT INTO codebook (id, name, is_open, published, deleted) VALUES (1, 'le types', 0, 1, 0)`)
	mustExec(t, conn, `INSERT INTO codebook_value (id, codebook_id, value, published, deleted) VALUES (7, 1, 'd.o.o.', 1, 0)`)
	mustExec(t, conn, `INSERT INTO connection_type_category (id, string_id, name, published, deleted) VALUES (1, 'business', 'Business', 1, 0)`)
	mustExec(t, conn, `INSERT INTO connection_type (id, name, reverse_name, category_id, potentially_pep, published, deleted) VALUES (1, 'director', 'directed by', 1, 1, 1, 0)`)

	mustExec(t, conn, `INSERT INTO entity (id, public_id, entity_type_id, published, deleted, force_pep, updated_at) VALUES (1, 'P-1', 1, 1, 0, 0, ?)`, stamp)
	mustExec(t, conn, `INSERT INTO entity (id, public_id, entity_type_id, published, deleted, linked_potentially_pep, updated_at) VALUES (2, 'L-2', 2, 1, 0, 1, ?)`, stamp)

	mustExec(t, conn, `INSERT INTO entity_entity (id, entity_a_id, entity_b_id, connection_type_id, published, deleted, updated_at) VALUES (10, 1, 2, 1, 1, 0, ?)`, stamp)
	mustExec(t, conn, `INSERT INTO entity_entity_collection (id, entity_entity_id, collection_id, published, deleted, updated_at) VALUES (100, 10, 1, 1, 0, ?)`, stamp)

	mustExec(t, conn, `INSERT INTO attribute_type (id, name, data_type, published, deleted) VALUES (1, 'text', 'string', 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_type (id, name, data_type, codebook_id, published, deleted) VALUES (2, 'le type', 'codebook', 1, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute (id, string_id, name, attribute_type_id, entity_type_id, published, deleted) VALUES (1, 'first_name', 'First name', 1, 1, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute (id, string_id, name, attribute_type_id, entity_type_id, published, deleted) VALUES (2, 'legal_entity_type', 'Type', 2, 2, 1, 0)`)

	mustExec(t, conn, `INSERT INTO attribute_value (id, entity_id, attribute_id, value_string, published, deleted) VALUES (50, 1, 1, 'Ana', 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_value (id, entity_id, attribute_id, value_codebook_value_id, published, deleted) VALUES (51, 2, 2, 7, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_value_collection (id, attribute_value_id, collection_id, published, deleted) VALUES (500, 50, 1, 1, 0)`)
	mustExec(t, conn, `INSERT INTO attribute_value_collection (id, attribute_value_id, collection_id, published, deleted) VALUES (501, 51, 1, 1, 0)`)

	return conn
}

// fakeSearch records search writes in memory.
type fakeSearch struct {
	mu        sync.Mutex
	enabled   bool
	docs      map[string]projection.Document
	deletes   []string
	ensured   []int64
	failNext  error
	ensureErr error
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{enabled: true, docs: map[string]projection.Document{}}
}

func docKey(kind projection.Kind, v visibility.Variant, id int64) string {
	return fmt.Sprintf("%s/%s/%d", kind, v, id)
}

func (f *fakeSearch) Enabled() bool { return f.enabled }

func (f *fakeSearch) Upsert(_ context.Context, kind projection.Kind, v visibility.Variant, id int64, doc projection.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.docs[docKey(kind, v, id)] = doc
	return nil
}

func (f *fakeSearch) Delete(_ context.Context, kind projection.Kind, v visibility.Variant, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := docKey(kind, v, id)
	delete(f.docs, key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeSearch) EnsureSchema(context.Context) error { return nil }

func (f *fakeSearch) EnsureAttributeField(_ context.Context, a *eav.Attribute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if _, err := search.AttributeFieldStatements(a); err != nil {
		return err
	}
	f.ensured = append(f.ensured, a.ID)
	return nil
}

func (f *fakeSearch) Close(context.Context) error { return nil }

func (f *fakeSearch) doc(kind projection.Kind, v visibility.Variant, id int64) (projection.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[docKey(kind, v, id)]
	return d, ok
}

// fakeGraph records graph writes in memory.
type fakeGraph struct {
	mu           sync.Mutex
	enabled      bool
	nodes        map[string]graph.Node
	edges        map[int64]graph.Edge
	deletedNodes []int64
	deletedEdges []int64
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{enabled: true, nodes: map[string]graph.Node{}, edges: map[int64]graph.Edge{}}
}

func (f *fakeGraph) Enabled() bool { return f.enabled }

func (f *fakeGraph) UpsertNode(_ context.Context, n graph.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n.Key] = n
	return nil
}

func (f *fakeGraph) UpsertEdge(_ context.Context, e graph.Edge, from, to graph.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[from.Key]; !ok {
		f.nodes[from.Key] = from
	}
	if _, ok := f.nodes[to.Key]; !ok {
		f.nodes[to.Key] = to
	}
	f.edges[e.ID] = e
	return nil
}

func (f *fakeGraph) DeleteNode(_ context.Context, entityID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedNodes = append(f.deletedNodes, entityID)
	return nil
}

func (f *fakeGraph) DeleteEdge(_ context.Context, connectionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.edges, connectionID)
	f.deletedEdges = append(f.deletedEdges, connectionID)
	return nil
}

func (f *fakeGraph) EnsureSchema(context.Context) error { return nil }
func (f *fakeGraph) Close(context.Context) error        { return nil }

type fixture struct {
	o        *Orchestrator
	src      *sql.DB
	jobs     *sql.DB
	search   *fakeSearch
	graph    *fakeGraph
	registry *async.HandlerRegistry
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		src:      seedSource(t),
		jobs:     prismtest.CreateTestDB(t),
		search:   newFakeSearch(),
		graph:    newFakeGraph(),
		registry: async.NewHandlerRegistry(),
	}
	cfg := Config{
		Source: source.New(f.src, source.DriverSQLite, nil),
		Queue:  async.NewQueue(f.jobs, async.RetryPolicy{MaxRetries: 1}),
		Search: f.search,
		Graph:  f.graph,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	o.Register(f.registry)
	f.o = o
	return f
}

func (f *fixture) queued(t *testing.T, queue string) []*async.Job {
	t.Helper()
	status := async.JobStatusQueued
	jobs, err := f.o.Queue().ListJobs(queue, &status, async.MaxJobsLimit)
	require.NoError(t, err)
	return jobs
}

// handlers returns the handler names of the queued jobs on queue.
func (f *fixture) handlers(t *testing.T, queue string) []string {
	t.Helper()
	var out []string
	for _, j := range f.queued(t, queue) {
		out = append(out, j.HandlerName+" "+string(j.Payload))
	}
	return out
}

// drain executes and completes every queued job on queue until none remain.
func (f *fixture) drain(t *testing.T, queue string) {
	t.Helper()
	ctx := context.Background()
	for range 20 {
		jobs := f.queued(t, queue)
		if len(jobs) == 0 {
			return
		}
		for _, job := range jobs {
			f.execute(t, ctx, job)
		}
	}
	t.Fatalf("queue %s did not drain", queue)
}

// execute runs one queued job the way a worker does, due or not.
func (f *fixture) execute(t *testing.T, ctx context.Context, job *async.Job) {
	t.Helper()
	job.Start()
	require.NoError(t, f.o.Queue().UpdateJob(job))
	require.NoError(t, f.registry.Execute(ctx, job), job.HandlerName)
	require.NoError(t, f.o.Queue().CompleteJob(job))
}

// step executes and completes the jobs queued on queue right now, once each.
// Jobs they enqueue stay queued.
func (f *fixture) step(t *testing.T, queue string) {
	t.Helper()
	ctx := context.Background()
	for _, job := range f.queued(t, queue) {
		f.execute(t, ctx, job)
	}
}

// run executes one unit handler directly.
func (f *fixture) run(t *testing.T, store string, kind projection.Kind, p UnitPayload) {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	job, err := async.NewJob(storeQueue(store), HandlerName(store, kind), "", raw)
	require.NoError(t, err)
	require.NoError(t, f.registry.Execute(context.Background(), job))
}
