package commands

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/prism/am"
	"github.com/teranos/prism/db"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/graphstore"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/metrics"
	"github.com/teranos/prism/orchestrator"
	"github.com/teranos/prism/pulse/async"
	"github.com/teranos/prism/pulse/schedule"
	"github.com/teranos/prism/search"
	"github.com/teranos/prism/source"
)

// openDatabase opens and migrates the job database.
// If dbPath is empty, the path comes from am config.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := am.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dbPath = "prism.db"
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}

// stack is everything a sync command needs, opened from config
type stack struct {
	cfg     *am.Config
	jobs    *sql.DB
	src     *source.Reader
	search  search.Sink
	graph   graphstore.Sink
	queue   *async.Queue
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
}

// openStack connects the job database, the source and both stores.
// Unconfigured stores come back as no-op sinks.
func openStack(ctx context.Context, cfg *am.Config, log *zap.SugaredLogger) (*stack, error) {
	s := &stack{cfg: cfg, metrics: metrics.New()}

	jobs, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.jobs = jobs

	s.src, err = source.Open(ctx, cfg.Source.Driver, cfg.Source.DSN, log)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	s.search, err = search.Connect(ctx, cfg.Search, log)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	s.graph, err = graphstore.Connect(ctx, cfg.Graph, log)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	s.queue = async.NewQueue(jobs, async.RetryPolicyFor(cfg.Pulse))
	maxSettle := cfg.Pulse.DeleteSettleAttempts
	if maxSettle == 0 {
		maxSettle = -1
	}
	s.orch, err = orchestrator.New(orchestrator.Config{
		Source:      s.src,
		Queue:       s.queue,
		Search:      s.search,
		Graph:       s.graph,
		Recorder:    s.metrics,
		Logger:      log,
		SettleDelay: time.Duration(cfg.Pulse.DeleteSettleSeconds) * time.Second,
		MaxSettle:   maxSettle,
	})
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Close releases whatever openStack managed to open
func (s *stack) Close(ctx context.Context) {
	if s.search != nil {
		if err := s.search.Close(ctx); err != nil {
			logger.Warnw("Failed to close search store", logger.FieldError, err)
		}
	}
	if s.graph != nil {
		if err := s.graph.Close(ctx); err != nil {
			logger.Warnw("Failed to close graph store", logger.FieldError, err)
		}
	}
	if s.src != nil {
		s.src.Close()
	}
	if s.jobs != nil {
		s.jobs.Close()
	}
}

// newReconciler builds the catch-up scan with the configured marker.
// The returned cleanup closes the redis client, if any.
func (s *stack) newReconciler(ctx context.Context, log *zap.SugaredLogger) (*orchestrator.Reconciler, func(), error) {
	var (
		marker  schedule.Marker
		cleanup = func() {}
	)
	switch s.cfg.Reconcile.Marker {
	case am.MarkerRedis:
		client, err := schedule.DialRedis(ctx, s.cfg.Reconcile.RedisURL)
		if err != nil {
			return nil, cleanup, err
		}
		marker = schedule.NewRedisMarker(client, schedule.DefaultMarkerName)
		cleanup = func() { client.Close() }
	default:
		marker = schedule.NewSQLMarker(s.jobs, schedule.DefaultMarkerName)
	}

	r, err := orchestrator.NewReconciler(s.orch, orchestrator.ReconcilerConfig{
		Marker:   marker,
		LockTTL:  time.Duration(s.cfg.Reconcile.LockTTLSeconds) * time.Second,
		Overlap:  time.Duration(s.cfg.Reconcile.OverlapSeconds) * time.Second,
		PageSize: s.cfg.Reconcile.PageSize,
		Recorder: s.metrics,
	}, log)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return r, cleanup, nil
}
