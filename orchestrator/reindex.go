package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/pulse"
	"github.com/teranos/prism/source"
)

// kindModels maps each document kind to the source table it is keyed by.
var kindModels = map[projection.Kind]source.Model{
	projection.KindEntity:               source.ModelEntity,
	projection.KindConnection:           source.ModelConnection,
	projection.KindAttribute:            source.ModelAttribute,
	projection.KindConnectionType:       source.ModelConnectionType,
	projection.KindCodebookValue:        source.ModelCodebookValue,
	projection.KindAttributeValueChange: source.ModelAttributeValueChange,
	projection.KindConnectionChange:     source.ModelConnectionChange,
}

// ReindexConfig configures a full re-index.
type ReindexConfig struct {
	PageSize int
	// RatePerSecond caps enqueued units across all kinds; 0 = unthrottled.
	RatePerSecond float64
	// Timeout is set on every enqueued job; 0 = unbounded.
	Timeout time.Duration
	// Progress receives one stage per kind; nil discards.
	Progress pulse.ProgressEmitter
}

// Reindexer enqueues a unit for every row of the requested kinds.
type Reindexer struct {
	o        *Orchestrator
	pageSize int
	timeout  time.Duration
	limiter  *rate.Limiter
	progress pulse.ProgressEmitter
	log      *zap.SugaredLogger
}

// NewReindexer creates a reindexer over o.
func NewReindexer(o *Orchestrator, cfg ReindexConfig, log *zap.SugaredLogger) *Reindexer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	limit, burst := rate.Inf, 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	progress := cfg.Progress
	if progress == nil {
		progress = pulse.NopProgress{}
	}
	return &Reindexer{
		o:        o,
		pageSize: pageSize,
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(limit, burst),
		progress: progress,
		log:      logger.AddSyncSymbol(log.Named("reindex")),
	}
}

// Run walks every requested kind in parallel and returns the rows enqueued
// per kind. No kinds means all of them.
func (r *Reindexer) Run(ctx context.Context, kinds ...projection.Kind) (map[projection.Kind]int, error) {
	if len(kinds) == 0 {
		kinds = projection.Kinds
	}
	for _, k := range kinds {
		if _, ok := kindModels[k]; !ok {
			return nil, errors.NewInvalidRequestError("unknown document kind %q", k)
		}
	}

	var mu sync.Mutex
	result := make(map[projection.Kind]int, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		g.Go(func() error {
			r.progress.EmitStage(string(kind), "enqueueing "+string(kindModels[kind])+" rows")
			n, err := r.kind(gctx, kind)
			mu.Lock()
			result[kind] = n
			mu.Unlock()
			if err != nil {
				r.progress.EmitError(string(kind), err)
				return errors.Wrapf(err, "reindex of %s stopped after %d rows", kind, n)
			}
			r.progress.EmitComplete(string(kind), map[string]interface{}{"enqueued": n})
			return nil
		})
	}
	err := g.Wait()
	return result, err
}

func (r *Reindexer) kind(ctx context.Context, kind projection.Kind) (int, error) {
	start := time.Now()
	model := kindModels[kind]
	var after int64
	total := 0
	for {
		ids, err := r.o.src.IDs(ctx, model, after, r.pageSize)
		if err != nil {
			return total, err
		}
		for _, id := range ids {
			if err := r.limiter.Wait(ctx); err != nil {
				return total, err
			}
			if _, err := r.o.EnqueueUnit(Unit{Kind: kind, UnitPayload: UnitPayload{ID: id}}, r.timeout); err != nil {
				return total, err
			}
			total++
		}
		if len(ids) < r.pageSize {
			break
		}
		after = ids[len(ids)-1]
		r.progress.EmitProgress(string(kind), total)
		r.log.Debugw("Reindex page enqueued", logger.FieldKind, kind, logger.FieldCount, total)
	}
	r.log.Infow("Reindex enqueued", logger.FieldKind, kind, logger.FieldCount, total,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return total, nil
}
