package search

import (
	"context"
	"time"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"go.uber.org/zap"

	"github.com/teranos/prism/am"
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/visibility"
)

// conn is the slice of the SurrealDB client the sink uses.
type conn interface {
	upsert(ctx context.Context, rid models.RecordID, content map[string]any) error
	remove(ctx context.Context, rid models.RecordID) error
	exec(ctx context.Context, q string, vars map[string]any) error
	close(ctx context.Context) error
}

type surrealConn struct {
	db *surrealdb.DB
}

func (c *surrealConn) upsert(ctx context.Context, rid models.RecordID, content map[string]any) error {
	_, err := surrealdb.Upsert[map[string]any](ctx, c.db, rid, content)
	return err
}

func (c *surrealConn) remove(ctx context.Context, rid models.RecordID) error {
	_, err := surrealdb.Delete[map[string]any](ctx, c.db, rid)
	return err
}

func (c *surrealConn) exec(ctx context.Context, q string, vars map[string]any) error {
	results, err := surrealdb.Query[any](ctx, c.db, q, vars)
	if err != nil {
		return err
	}
	if results == nil {
		return nil
	}
	for i, r := range *results {
		if r.Status != "OK" {
			return errors.Newf("statement %d returned %s: %v", i, r.Status, r.Result)
		}
	}
	return nil
}

func (c *surrealConn) close(ctx context.Context) error {
	return c.db.Close(ctx)
}

// SurrealSink writes documents to SurrealDB.
type SurrealSink struct {
	conn conn
	log  *zap.SugaredLogger
}

// Connect opens the search store described by cfg. An unconfigured store
// yields a Nop sink.
func Connect(ctx context.Context, cfg am.SearchConfig, log *zap.SugaredLogger) (Sink, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if !cfg.Enabled() {
		return NewNop(log), nil
	}

	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, errors.Unavailable(err, "failed to connect to search store at %s", cfg.URL)
	}
	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}); err != nil {
			_ = db.Close(ctx)
			return nil, errors.WithHint(
				errors.Unavailable(err, "failed to sign in to search store as %s", cfg.Username),
				"check search.username and PRISM_SEARCH_PASSWORD")
		}
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, errors.Unavailable(err, "failed to select search namespace %s/%s", cfg.Namespace, cfg.Database)
	}

	log.Infow("Connected to search store", logger.FieldStore, StoreName, "url", cfg.URL,
		"namespace", cfg.Namespace, "database", cfg.Database)
	return newSurrealSink(&surrealConn{db: db}, log), nil
}

func newSurrealSink(c conn, log *zap.SugaredLogger) *SurrealSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SurrealSink{conn: c, log: log}
}

func (s *SurrealSink) Enabled() bool { return true }

// Upsert replaces the record. The document's id lives in the record id.
func (s *SurrealSink) Upsert(ctx context.Context, kind projection.Kind, v visibility.Variant, id int64, doc projection.Document) error {
	table := projection.Table(kind, v)
	content := make(map[string]any, len(doc))
	for k, val := range doc {
		if k == "id" {
			continue
		}
		content[k] = val
	}

	start := time.Now()
	if err := s.conn.upsert(ctx, models.NewRecordID(table, id), content); err != nil {
		return errors.Unavailable(err, "failed to upsert %s:%d", table, id)
	}
	s.log.Debugw("Upserted document", logger.FieldKind, kind, logger.FieldVariant, v,
		logger.FieldRecordID, id, logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

func (s *SurrealSink) Delete(ctx context.Context, kind projection.Kind, v visibility.Variant, id int64) error {
	table := projection.Table(kind, v)
	if err := s.conn.remove(ctx, models.NewRecordID(table, id)); err != nil {
		return errors.Unavailable(err, "failed to delete %s:%d", table, id)
	}
	s.log.Debugw("Deleted document", logger.FieldKind, kind, logger.FieldVariant, v, logger.FieldRecordID, id)
	return nil
}

func (s *SurrealSink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SchemaStatements() {
		if err := s.conn.exec(ctx, stmt, nil); err != nil {
			return errors.Unavailable(err, "failed to apply search schema statement %q", stmt)
		}
	}
	s.log.Infow("Search schema ensured", logger.FieldStore, StoreName, logger.FieldCount, len(projection.Kinds)*len(visibility.Variants))
	return nil
}

func (s *SurrealSink) EnsureAttributeField(ctx context.Context, a *eav.Attribute) error {
	stmts, err := AttributeFieldStatements(a)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := s.conn.exec(ctx, stmt, nil); err != nil {
			return errors.Unavailable(err, "failed to define field for attribute %s", a.StringID)
		}
	}
	return nil
}

func (s *SurrealSink) Close(ctx context.Context) error {
	return s.conn.close(ctx)
}
