// Package orchestrator keeps the search and graph stores in step with the
// relational source.
//
// A mutation only enqueues a fan-out job. The fan-out job re-derives attribute
// flags and last_in_log, plans the affected units and enqueues one job per
// unit per enabled store. Unit jobs re-read the source when they run and write
// full replacements, so they are safe to run late, out of order or twice.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/graphstore"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/pep"
	"github.com/teranos/prism/pulse/async"
	"github.com/teranos/prism/search"
	"github.com/teranos/prism/source"
	"github.com/teranos/prism/tracing"
)

const tracerName = "github.com/teranos/prism/orchestrator"

// Recorder receives fan-out sizes. metrics.Metrics implements it.
type Recorder interface {
	ObserveFanout(model string, units int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFanout(string, int) {}

// Deletion units whose row is still in the source wait this long between
// checks, at most this many times.
const (
	DefaultSettleDelay = 5 * time.Second
	DefaultMaxSettle   = 12
)

// Config wires an Orchestrator. Nil sinks are replaced by no-op sinks.
type Config struct {
	Source   *source.Reader
	Queue    *async.Queue
	Search   search.Sink
	Graph    graphstore.Sink
	Recorder Recorder
	Logger   *zap.SugaredLogger

	// SettleDelay and MaxSettle bound how long a deletion unit waits for
	// the delete to commit. Zero values take the defaults; with a negative
	// MaxSettle a row still present is re-rendered at once.
	SettleDelay time.Duration
	MaxSettle   int
}

// Orchestrator triggers and applies synchronization.
type Orchestrator struct {
	src      *source.Reader
	queue    *async.Queue
	search   search.Sink
	graph    graphstore.Sink
	pep      *pep.Evaluator
	recorder Recorder
	log      *zap.SugaredLogger

	settleDelay time.Duration
	maxSettle   int

	// flagsMu serializes load, recompute and save of attribute flags
	flagsMu sync.Mutex
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil || cfg.Queue == nil {
		return nil, errors.NewInvalidRequestError("orchestrator needs a source and a queue")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	o := &Orchestrator{
		src:      cfg.Source,
		queue:    cfg.Queue,
		search:   cfg.Search,
		graph:    cfg.Graph,
		pep:      pep.New(cfg.Source),
		recorder: cfg.Recorder,
		log:      logger.AddSyncSymbol(log.Named("orchestrator")),

		settleDelay: cfg.SettleDelay,
		maxSettle:   cfg.MaxSettle,
	}
	if o.settleDelay <= 0 {
		o.settleDelay = DefaultSettleDelay
	}
	if o.maxSettle == 0 {
		o.maxSettle = DefaultMaxSettle
	}
	if o.search == nil {
		o.search = search.NewNop(log)
	}
	if o.graph == nil {
		o.graph = graphstore.NewNop(log)
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	return o, nil
}

// Source returns the source reader.
func (o *Orchestrator) Source() *source.Reader { return o.src }

// Queue returns the job queue.
func (o *Orchestrator) Queue() *async.Queue { return o.queue }

// Trigger enqueues the synchronization of one mutation and returns.
// OpDeleting plans and enqueues at once, before the delete commits; its
// units wait while the row is still in the source. Callers that can defer
// the enqueue until their delete commits should use PrepareDelete instead.
func (o *Orchestrator) Trigger(ctx context.Context, m Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Op == OpDeleting {
		d, err := o.PrepareDelete(ctx, m)
		if err != nil {
			return err
		}
		return d.Commit(ctx)
	}
	_, err := o.enqueueFanout(fanoutPayload{Mutation: m}, m.dedupeKey())
	return err
}

// Deletion is the blast radius of a row about to be deleted, captured while
// the row and its children still exist.
type Deletion struct {
	o       *Orchestrator
	payload fanoutPayload
}

// PrepareDelete plans the deletion of m's row. Nothing is enqueued until Commit.
func (o *Orchestrator) PrepareDelete(ctx context.Context, m Mutation) (*Deletion, error) {
	m.Op = OpDeleting
	if err := m.Validate(); err != nil {
		return nil, err
	}
	units, err := Plan(ctx, o.src, m)
	if err != nil {
		return nil, err
	}
	payload := fanoutPayload{Mutation: Mutation{Model: m.Model, ID: m.ID, Op: opDeleted}, Units: units}

	if m.Model == source.ModelChangeset {
		cols, err := o.src.Related(ctx, source.ModelChangeset, m.ID, source.ModelCollection)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to capture collection of changeset %d", m.ID)
		}
		payload.Collections = cols
	}
	return &Deletion{o: o, payload: payload}, nil
}

// Units returns the captured units.
func (d *Deletion) Units() []Unit { return d.payload.Units }

// Commit enqueues the captured fan-out. Call it once the delete has committed.
func (d *Deletion) Commit(ctx context.Context) error {
	_, err := d.o.enqueueFanout(d.payload, "")
	return err
}

func (o *Orchestrator) enqueueFanout(p fanoutPayload, dedupeKey string) (bool, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode fan-out payload")
	}
	job, err := async.NewJob(async.QueueFanout, HandlerFanout, dedupeKey, raw)
	if err != nil {
		return false, err
	}
	created, err := o.queue.Enqueue(job)
	if err != nil {
		return false, errors.Wrapf(err, "failed to enqueue fan-out of %s", p.Mutation)
	}
	if created {
		o.log.Debugw("Fan-out enqueued", logger.FieldModel, p.Model, logger.FieldRecordID, p.ID,
			logger.FieldOp, p.Op, logger.FieldJobID, job.ID)
	}
	return created, nil
}

// stores lists the enabled target stores. Disabled stores get no jobs.
func (o *Orchestrator) stores() []string {
	var out []string
	if o.search.Enabled() {
		out = append(out, StoreSearch)
	}
	if o.graph.Enabled() {
		out = append(out, StoreGraph)
	}
	return out
}

// EnqueueUnit enqueues u on every enabled store holding its kind and returns
// how many jobs were created. A zero timeout leaves the pool default.
func (o *Orchestrator) EnqueueUnit(u Unit, timeout time.Duration) (int, error) {
	raw, err := json.Marshal(u.UnitPayload)
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode unit payload")
	}
	created := 0
	for _, store := range o.stores() {
		if !storeHolds(store, u.Kind) {
			continue
		}
		job, err := async.NewJob(storeQueue(store), HandlerName(store, u.Kind), u.Key(), raw)
		if err != nil {
			return created, err
		}
		job.Timeout = timeout
		ok, err := o.queue.Enqueue(job)
		if err != nil {
			return created, errors.Wrapf(err, "failed to enqueue %s on %s", u, store)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// Register adds the fan-out handler and every unit handler to registry.
func (o *Orchestrator) Register(registry *async.HandlerRegistry) {
	registry.Register(&fanoutHandler{o: o, tracer: tracing.Tracer(tracerName)})
	registry.Register(o.unitHandlers()...)
}
