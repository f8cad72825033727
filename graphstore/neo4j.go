package graphstore

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/teranos/prism/am"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/graph"
	"github.com/teranos/prism/logger"
)

// runner executes statements against the graph store, all of one call in a
// single write transaction.
type runner interface {
	write(ctx context.Context, stmts []statement) error
	close(ctx context.Context) error
}

type neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *neo4jRunner) write(ctx context.Context, stmts []statement) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: r.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			result, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *neo4jRunner) close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Neo4jSink writes nodes and edges to Neo4j.
type Neo4jSink struct {
	run runner
	log *zap.SugaredLogger
}

// Connect opens the graph store described by cfg. An unconfigured store
// yields a Nop sink.
func Connect(ctx context.Context, cfg am.GraphConfig, log *zap.SugaredLogger) (Sink, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if !cfg.Enabled() {
		return NewNop(log), nil
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid graph store uri %s", cfg.URI)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.WithHint(
			errors.Unavailable(err, "failed to connect to graph store at %s", cfg.URI),
			"check graph.uri, graph.username and PRISM_GRAPH_PASSWORD")
	}

	log.Infow("Connected to graph store", logger.FieldStore, StoreName, "uri", cfg.URI)
	return newNeo4jSink(&neo4jRunner{driver: driver, database: cfg.Database}, log), nil
}

func newNeo4jSink(r runner, log *zap.SugaredLogger) *Neo4jSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Neo4jSink{run: r, log: log}
}

func (s *Neo4jSink) Enabled() bool { return true }

func (s *Neo4jSink) UpsertNode(ctx context.Context, n graph.Node) error {
	if n.Key == "" {
		return errors.NewInvalidRequestError("node without public id")
	}
	start := time.Now()
	if err := s.run.write(ctx, nodeStatements(n)); err != nil {
		return errors.Unavailable(err, "failed to upsert node %s", n.Key)
	}
	s.log.Debugw("Upserted node", logger.FieldRecordID, n.Props["id"], "public_id", n.Key,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

func (s *Neo4jSink) UpsertEdge(ctx context.Context, e graph.Edge, from, to graph.Node) error {
	if e.From == "" || e.To == "" {
		return errors.NewInvalidRequestError("edge %d without endpoint public ids", e.ID)
	}
	start := time.Now()
	if err := s.run.write(ctx, edgeStatements(e, from, to)); err != nil {
		return errors.Unavailable(err, "failed to upsert edge %d", e.ID)
	}
	s.log.Debugw("Upserted edge", logger.FieldRecordID, e.ID, logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

func (s *Neo4jSink) DeleteNode(ctx context.Context, entityID int64) error {
	err := s.run.write(ctx, []statement{{cypher: deleteNode, params: map[string]any{"id": entityID}}})
	return errors.Unavailable(err, "failed to delete node %d", entityID)
}

func (s *Neo4jSink) DeleteEdge(ctx context.Context, connectionID int64) error {
	err := s.run.write(ctx, []statement{{cypher: deleteEdge, params: map[string]any{"id": connectionID}}})
	return errors.Unavailable(err, "failed to delete edge %d", connectionID)
}

// EnsureSchema runs each schema statement in its own transaction; Neo4j
// does not mix schema and data writes.
func (s *Neo4jSink) EnsureSchema(ctx context.Context) error {
	stmts := schemaStatements()
	for _, q := range stmts {
		if err := s.run.write(ctx, []statement{{cypher: q}}); err != nil {
			return errors.Unavailable(err, "failed to apply graph schema statement %q", q)
		}
	}
	s.log.Infow("Graph schema ensured", logger.FieldStore, StoreName, logger.FieldCount, len(stmts))
	return nil
}

func (s *Neo4jSink) Close(ctx context.Context) error {
	return s.run.close(ctx)
}
