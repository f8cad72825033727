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
	"github.com/teranos/prism/pulse/async"
	"github.com/teranos/prism/source"
	"github.com/teranos/prism/visibility"
)

// fanoutHandler applies the derived-artifact writes of one mutation and
// enqueues its units.
type fanoutHandler struct {
	o      *Orchestrator
	tracer trace.Tracer
}

func (h *fanoutHandler) Name() string { return HandlerFanout }

func (h *fanoutHandler) Execute(ctx context.Context, job *async.Job) (err error) {
	var p fanoutPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return errors.NewInvalidRequestError("malformed fan-out payload: %v", err)
	}

	ctx, span := h.tracer.Start(ctx, "fanout", trace.WithAttributes(
		attribute.String(logger.FieldModel, string(p.Model)),
		attribute.Int64(logger.FieldRecordID, p.ID),
		attribute.String(logger.FieldOp, string(p.Op)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return h.o.fanout(ctx, p)
}

// fanout runs the four fan-out steps. Unit enqueue failures do not stop the
// remaining units; the job fails afterwards and its retry re-enqueues only
// what is not already queued. A search mapping that cannot be defined does
// not stop them either.
func (o *Orchestrator) fanout(ctx context.Context, p fanoutPayload) error {
	start := time.Now()

	tree, err := o.refreshFlags(ctx, p)
	if err != nil {
		return err
	}
	if err := o.refreshLastInLog(ctx, p); err != nil {
		return err
	}

	units := p.Units
	if p.Op == OpSaved {
		exists, err := o.src.Exists(ctx, p.Model, p.ID)
		if err != nil {
			return errors.Wrapf(err, "failed to check %s", p.Mutation)
		}
		if !exists {
			// Deleted after it was triggered; the deletion's own fan-out covers it
			o.log.Debugw("Fan-out skipped, row gone", logger.FieldModel, p.Model, logger.FieldRecordID, p.ID)
			return nil
		}
		planned, err := Plan(ctx, o.src, p.Mutation)
		if err != nil {
			return err
		}
		units = planned
	}

	var failed []error
	if err := o.defineAttributeField(ctx, p, tree); err != nil {
		failed = append(failed, err)
	}
	created := 0
	for _, u := range units {
		n, err := o.EnqueueUnit(u, 0)
		created += n
		if err != nil {
			failed = append(failed, err)
		}
	}
	o.recorder.ObserveFanout(string(p.Model), len(units))
	o.log.Infow("Fan-out planned",
		logger.FieldModel, p.Model,
		logger.FieldRecordID, p.ID,
		logger.FieldOp, p.Op,
		logger.FieldUnits, len(units),
		logger.FieldCount, created,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	if len(failed) > 0 {
		err := errors.Wrapf(failed[0], "%d steps of %d units failed", len(failed), len(units))
		return errors.Unavailable(err, "fan-out of %s incomplete", p.Mutation)
	}
	return nil
}

// refreshFlags re-derives and persists attribute flags when the mutation can
// move them. A saved attribute walks its own subtree; anything else walks the
// whole tree. The loaded tree is returned for reuse, nil when none was needed.
// Across processes the single fanout worker keeps writes ordered.
func (o *Orchestrator) refreshFlags(ctx context.Context, p fanoutPayload) (*visibility.Tree, error) {
	if !p.touchesFlags() {
		return nil, nil
	}
	o.flagsMu.Lock()
	defer o.flagsMu.Unlock()

	tree, err := o.src.AttributeTree(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load attribute tree")
	}
	_, present := tree.Attribute(p.ID)

	var changes []visibility.Change
	if p.Model == source.ModelAttribute && p.Op == OpSaved && present {
		changes = tree.RecomputeFrom(p.ID)
	} else {
		changes = tree.Recompute()
	}
	if err := o.src.SaveAttributeFlags(ctx, changes); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		o.log.Infow("Attribute flags recomputed", logger.FieldModel, p.Model, logger.FieldRecordID, p.ID,
			logger.FieldCount, len(changes))
	}
	return tree, nil
}

// defineAttributeField adds the search mapping of a saved root attribute.
// An attribute whose string_id cannot name a field is logged and skipped;
// its documents are still written, only the typed index is missing.
func (o *Orchestrator) defineAttributeField(ctx context.Context, p fanoutPayload, tree *visibility.Tree) error {
	if p.Model != source.ModelAttribute || p.Op != OpSaved || !o.search.Enabled() {
		return nil
	}
	if tree == nil {
		var err error
		if tree, err = o.src.AttributeTree(ctx); err != nil {
			return errors.Wrap(err, "failed to load attribute tree")
		}
	}
	a, ok := tree.Attribute(p.ID)
	if !ok {
		return nil
	}
	err := o.search.EnsureAttributeField(ctx, a)
	if errors.IsInvalidRequestError(err) {
		o.log.Warnw("Search mapping not defined", logger.FieldRecordID, p.ID,
			"string_id", a.StringID, logger.FieldError, err)
		return nil
	}
	return err
}

// refreshLastInLog maintains last_in_log bottom-up for changeset mutations.
func (o *Orchestrator) refreshLastInLog(ctx context.Context, p fanoutPayload) error {
	if p.Model != source.ModelChangeset {
		return nil
	}
	collections := p.Collections
	if p.Op == OpSaved {
		cols, err := o.src.Related(ctx, source.ModelChangeset, p.ID, source.ModelCollection)
		if err != nil {
			return err
		}
		collections = cols
	}
	for _, c := range collections {
		if _, err := o.src.SaveLastInLog(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
