package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/pulse/async"
	"github.com/teranos/prism/source"
	"github.com/teranos/prism/tracing"
)

// applyFunc applies one unit to one store.
type applyFunc func(ctx context.Context, p UnitPayload) error

// unitHandler adapts one (kind, store) apply function to async.JobHandler.
type unitHandler struct {
	o      *Orchestrator
	store  string
	kind   projection.Kind
	apply  applyFunc
	tracer trace.Tracer
}

func (h *unitHandler) Name() string { return HandlerName(h.store, h.kind) }

func (h *unitHandler) Execute(ctx context.Context, job *async.Job) (err error) {
	p, err := decodeUnit(job)
	if err != nil {
		return err
	}
	ctx, span := h.tracer.Start(ctx, h.Name(), trace.WithAttributes(
		attribute.String(logger.FieldStore, h.store),
		attribute.String(logger.FieldKind, string(h.kind)),
		attribute.Int64(logger.FieldRecordID, p.ID),
		attribute.Bool("remove", p.Remove),
		attribute.Int("attempt", job.Attempt()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx = source.WithCatalog(ctx)
	if p.fromDeletion() {
		pending, err := h.deletePending(ctx, p)
		if err != nil {
			return err
		}
		if pending {
			if p.Settle < h.o.maxSettle {
				span.SetAttributes(attribute.Int("settle", p.Settle+1))
				return h.settle(job, p)
			}
			// The delete never committed; render whatever the source holds now
			h.o.log.Warnw("Deleted row still present, re-rendering",
				logger.FieldStore, h.store, logger.FieldKind, h.kind, logger.FieldRecordID, p.ID)
			p = UnitPayload{ID: p.ID}
		}
	}
	return h.apply(ctx, p)
}

// deletePending reports whether a row the unit was planned around is still
// in the source, meaning its delete has not committed yet.
func (h *unitHandler) deletePending(ctx context.Context, p UnitPayload) (bool, error) {
	check := func(model source.Model, id int64) (bool, error) {
		if id == 0 {
			return false, nil
		}
		return h.o.src.Exists(ctx, model, id)
	}
	if p.Remove {
		return check(kindModels[h.kind], p.ID)
	}
	if ok, err := check(source.ModelEntity, p.ExcludeEntityID); ok || err != nil {
		return ok, err
	}
	return check(source.ModelConnection, p.ExcludeConnectionID)
}

// settle re-enqueues the unit to run once more after the settle delay.
func (h *unitHandler) settle(job *async.Job, p UnitPayload) error {
	p.Settle++
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode unit payload")
	}
	next, err := async.NewJob(job.Queue, job.HandlerName, p.Key(), raw)
	if err != nil {
		return err
	}
	next.Timeout = job.Timeout
	next.RunAfter = time.Now().UTC().Add(h.o.settleDelay)
	if _, err := h.o.queue.Enqueue(next); err != nil {
		return errors.Wrapf(err, "failed to defer %s", h.Name())
	}
	h.o.log.Debugw("Unit deferred until delete commits",
		logger.FieldStore, h.store, logger.FieldKind, h.kind, logger.FieldRecordID, p.ID, "settle", p.Settle)
	return nil
}

func (o *Orchestrator) unitHandlers() []async.JobHandler {
	tracer := tracing.Tracer(tracerName)
	search := map[projection.Kind]applyFunc{
		projection.KindEntity:               o.searchEntity,
		projection.KindConnection:           o.searchConnection,
		projection.KindAttribute:            o.searchAttribute,
		projection.KindConnectionType:       o.searchConnectionType,
		projection.KindCodebookValue:        o.searchCodebookValue,
		projection.KindAttributeValueChange: o.searchAttributeValueChange,
		projection.KindConnectionChange:     o.searchConnectionChange,
	}
	graph := map[projection.Kind]applyFunc{
		projection.KindEntity:     o.graphEntity,
		projection.KindConnection: o.graphConnection,
	}

	var out []async.JobHandler
	for _, kind := range storeKinds[StoreSearch] {
		out = append(out, &unitHandler{o: o, store: StoreSearch, kind: kind, apply: search[kind], tracer: tracer})
	}
	for _, kind := range storeKinds[StoreGraph] {
		out = append(out, &unitHandler{o: o, store: StoreGraph, kind: kind, apply: graph[kind], tracer: tracer})
	}
	return out
}
