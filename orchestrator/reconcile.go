package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/metrics"
	"github.com/teranos/prism/pulse/schedule"
	"github.com/teranos/prism/source"
)

// releaseTimeout bounds the marker release after the run's own context ended.
const releaseTimeout = 10 * time.Second

// ReconcileRecorder receives reconcile outcomes. metrics.Metrics implements it.
type ReconcileRecorder interface {
	ObserveReconcile(result string, records int, finishedAt time.Time)
}

type nopReconcileRecorder struct{}

func (nopReconcileRecorder) ObserveReconcile(string, int, time.Time) {}

// ReconcilerConfig configures the catch-up scan.
type ReconcilerConfig struct {
	Marker schedule.Marker
	// Holder names this process in the marker; empty picks a random one.
	Holder   string
	LockTTL  time.Duration
	Overlap  time.Duration
	PageSize int
	Recorder ReconcileRecorder
}

// Reconciler re-triggers every source row modified since the last
// successful run. It implements schedule.Runner.
type Reconciler struct {
	o        *Orchestrator
	marker   schedule.Marker
	holder   string
	ttl      time.Duration
	overlap  time.Duration
	pageSize int
	recorder ReconcileRecorder
	log      *zap.SugaredLogger
}

// NewReconciler creates a reconciler over o.
func NewReconciler(o *Orchestrator, cfg ReconcilerConfig, log *zap.SugaredLogger) (*Reconciler, error) {
	if cfg.Marker == nil {
		return nil, errors.NewInvalidRequestError("reconciler needs a marker")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Reconciler{
		o:        o,
		marker:   cfg.Marker,
		holder:   cfg.Holder,
		ttl:      cfg.LockTTL,
		overlap:  cfg.Overlap,
		pageSize: cfg.PageSize,
		recorder: cfg.Recorder,
		log:      logger.AddPulseSymbol(log.Named("reconcile")),
	}
	if r.holder == "" {
		r.holder = uuid.NewString()
	}
	if r.ttl <= 0 {
		r.ttl = 15 * time.Minute
	}
	if r.pageSize <= 0 {
		r.pageSize = 500
	}
	if r.recorder == nil {
		r.recorder = nopReconcileRecorder{}
	}
	return r, nil
}

// Run performs one pass. It returns errors.ErrMarkerHeld when another pass
// holds the marker; the watermark only advances when the scan completes.
func (r *Reconciler) Run(ctx context.Context) error {
	start := time.Now().UTC()

	if err := r.marker.Acquire(ctx, r.holder, r.ttl); err != nil {
		if errors.Is(err, errors.ErrMarkerHeld) {
			r.recorder.ObserveReconcile(metrics.ResultSkipped, 0, start)
		}
		return err
	}

	watermark, err := r.marker.Watermark(ctx)
	if err != nil {
		r.release(ctx, time.Time{})
		r.recorder.ObserveReconcile(metrics.ResultFailed, 0, time.Now())
		return err
	}

	var since time.Time
	if !watermark.IsZero() {
		since = watermark.Add(-r.overlap)
	}

	r.log.Infow("Reconcile started", logger.FieldWatermark, watermark, "since", since, "holder", r.holder)
	n, scanErr := r.scan(ctx, since)

	advance := start
	if scanErr != nil {
		advance = time.Time{}
	}
	if err := r.release(ctx, advance); err != nil && scanErr == nil {
		r.recorder.ObserveReconcile(metrics.ResultFailed, n, time.Now())
		return err
	}
	if scanErr != nil {
		r.recorder.ObserveReconcile(metrics.ResultFailed, n, time.Now())
		return errors.Wrapf(scanErr, "reconcile stopped after %d records", n)
	}

	r.recorder.ObserveReconcile(metrics.ResultOK, n, time.Now())
	r.log.Infow("Reconcile finished", logger.FieldCount, n, logger.FieldWatermark, start,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

// release frees the marker even when ctx is already cancelled.
func (r *Reconciler) release(ctx context.Context, advance time.Time) error {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	err := r.marker.Release(relCtx, r.holder, advance)
	if err != nil {
		r.log.Warnw("Failed to release reconcile marker", logger.FieldError, err)
	}
	return err
}

// scan triggers a saved mutation for every row modified at or after since,
// model by model in id order.
func (r *Reconciler) scan(ctx context.Context, since time.Time) (int, error) {
	total := 0
	for _, model := range source.Models {
		var after int64
		for {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			ids, err := r.o.src.ModifiedSince(ctx, model, since, after, r.pageSize)
			if err != nil {
				return total, err
			}
			for _, id := range ids {
				if err := r.o.Trigger(ctx, Mutation{Model: model, ID: id, Op: OpSaved}); err != nil {
					return total, err
				}
				total++
			}
			if len(ids) < r.pageSize {
				break
			}
			after = ids[len(ids)-1]
		}
	}
	return total, nil
}

var _ schedule.Runner = (*Reconciler)(nil)
