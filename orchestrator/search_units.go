package orchestrator

import (
	"context"

	"github.com/teranos/prism/counts"
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/pep"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/visibility"
)

type buildFunc func(v visibility.Variant) (projection.Document, bool, error)

// writeVariants upserts or deletes kind/id in both variants.
func (o *Orchestrator) writeVariants(ctx context.Context, kind projection.Kind, id int64, build buildFunc) error {
	for _, v := range visibility.Variants {
		doc, ok, err := build(v)
		if err != nil {
			return err
		}
		if ok {
			err = o.search.Upsert(ctx, kind, v, id, doc)
		} else {
			err = o.search.Delete(ctx, kind, v, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) removeDocuments(ctx context.Context, kind projection.Kind, id int64) error {
	for _, v := range visibility.Variants {
		if err := o.search.Delete(ctx, kind, v, id); err != nil {
			return err
		}
	}
	o.log.Debugw("Documents removed", logger.FieldKind, kind, logger.FieldRecordID, id)
	return nil
}

func (p UnitPayload) pepOptions() pep.Options {
	return pep.Options{ExcludeConnectionID: p.ExcludeConnectionID, ExcludeEntityID: p.ExcludeEntityID}
}

func (p UnitPayload) countOptions() counts.Options {
	return counts.Options{ExcludeConnectionID: p.ExcludeConnectionID, ExcludeEntityID: p.ExcludeEntityID}
}

// endpoint loads what an endpoint summary needs.
func (o *Orchestrator) endpoint(ctx context.Context, tree *visibility.Tree, e *eav.Entity, p UnitPayload) (projection.Endpoint, error) {
	if e == nil {
		return projection.Endpoint{}, nil
	}
	vals, err := o.src.EntityValues(ctx, tree, e.ID)
	if err != nil {
		return projection.Endpoint{}, err
	}
	flag, err := o.pep.Classify(ctx, e, p.pepOptions())
	if err != nil {
		return projection.Endpoint{}, err
	}
	return projection.Endpoint{Entity: e, PEP: flag, Values: vals}, nil
}

func (o *Orchestrator) searchEntity(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.removeDocuments(ctx, projection.KindEntity, p.ID)
	}
	e, err := o.src.Entity(ctx, p.ID)
	if errors.IsNotFoundError(err) {
		return o.removeDocuments(ctx, projection.KindEntity, p.ID)
	}
	if err != nil {
		return err
	}
	tree, err := o.src.AttributeTree(ctx)
	if err != nil {
		return err
	}
	ep, err := o.endpoint(ctx, tree, e, p)
	if err != nil {
		return err
	}
	categories, err := o.src.Categories(ctx)
	if err != nil {
		return err
	}
	conns, err := o.src.ConnectionsOf(ctx, e.ID)
	if err != nil {
		return err
	}
	in := projection.EntityInput{
		Entity:      e,
		Tree:        tree,
		Values:      ep.Values,
		PEP:         ep.PEP,
		Categories:  categories,
		Connections: conns,
		Exclude:     p.countOptions(),
	}
	return o.writeVariants(ctx, projection.KindEntity, e.ID, func(v visibility.Variant) (projection.Document, bool, error) {
		return projection.Entity(in, v)
	})
}

func (o *Orchestrator) searchConnection(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.removeDocuments(ctx, projection.KindConnection, p.ID)
	}
	c, err := o.src.Connection(ctx, p.ID)
	if errors.IsNotFoundError(err) {
		return o.removeDocuments(ctx, projection.KindConnection, p.ID)
	}
	if err != nil {
		return err
	}
	in, err := o.connectionInput(ctx, c, p)
	if err != nil {
		return err
	}
	return o.writeVariants(ctx, projection.KindConnection, c.ID, func(v visibility.Variant) (projection.Document, bool, error) {
		return projection.Connection(in, v)
	})
}

func (o *Orchestrator) connectionInput(ctx context.Context, c *eav.Connection, p UnitPayload) (projection.ConnectionInput, error) {
	tree, err := o.src.AttributeTree(ctx)
	if err != nil {
		return projection.ConnectionInput{}, err
	}
	vals, err := o.src.ConnectionValues(ctx, tree, c.ID)
	if err != nil {
		return projection.ConnectionInput{}, err
	}
	a, err := o.endpoint(ctx, tree, c.EntityA, p)
	if err != nil {
		return projection.ConnectionInput{}, err
	}
	b, err := o.endpoint(ctx, tree, c.EntityB, p)
	if err != nil {
		return projection.ConnectionInput{}, err
	}
	return projection.ConnectionInput{Connection: c, Tree: tree, Values: vals, A: a, B: b}, nil
}

func (o *Orchestrator) searchAttribute(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.removeDocuments(ctx, projection.KindAttribute, p.ID)
	}
	tree, err := o.src.AttributeTree(ctx)
	if err != nil {
		return err
	}
	if _, ok := tree.Attribute(p.ID); !ok {
		return o.removeDocuments(ctx, projection.KindAttribute, p.ID)
	}
	return o.writeVariants(ctx, projection.KindAttribute, p.ID, func(v visibility.Variant) (projection.Document, bool, error) {
		return projection.Attribute(tree, p.ID, v)
	})
}

func (o *Orchestrator) searchConnectionType(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.removeDocuments(ctx, projection.KindConnectionType, p.ID)
	}
	t, err := o.src.ConnectionType(ctx, p.ID)
	if errors.IsNotFoundError(err) {
		return o.removeDocuments(ctx, projection.KindConnectionType, p.ID)
	}
	if err != nil {
		return err
	}
	return o.writeVariants(ctx, projection.KindConnectionType, p.ID, func(v visibility.Variant) (projection.Document, bool, error) {
		return projection.ConnectionType(t, v)
	})
}

func (o *Orchestrator) searchCodebookValue(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.removeDocuments(ctx, projection.KindCodebookValue, p.ID)
	}
	cv, err := o.src.CodebookValue(ctx, p.ID)
	if errors.IsNotFoundError(err) {
		return o.removeDocuments(ctx, projection.KindCodebookValue, p.ID)
	}
	if err != nil {
		return err
	}
	return o.writeVariants(ctx, projection.KindCodebookValue, p.ID, func(v visibility.Variant) (projection.Document, bool, error) {
		return projection.CodebookValue(cv, v)
	})
}

func (o *Orchestrator) searchAttributeValueChange(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.removeDocuments(ctx, projection.KindAttributeValueChange, p.ID)
	}
	tree, err := o.src.AttributeTree(ctx)
	if err != nil {
		return err
	}
	c, err := o.src.AttributeValueChange(ctx, tree, p.ID)
	if errors.IsNotFoundError(err) {
		return o.removeDocuments(ctx, projection.KindAttributeValueChange, p.ID)
	}
	if err != nil {
		return err
	}
	return o.writeVariants(ctx, projection.KindAttributeValueChange, p.ID, func(v visibility.Variant) (projection.Document, bool, error) {
		return projection.AttributeValueChange(c, v)
	})
}

func (o *Orchestrator) searchConnectionChange(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.removeDocuments(ctx, projection.KindConnectionChange, p.ID)
	}
	c, err := o.src.ConnectionChange(ctx, p.ID)
	if errors.IsNotFoundError(err) {
		return o.removeDocuments(ctx, projection.KindConnectionChange, p.ID)
	}
	if err != nil {
		return err
	}
	return o.writeVariants(ctx, projection.KindConnectionChange, p.ID, func(v visibility.Variant) (projection.Document, bool, error) {
		return projection.ConnectionChange(c, v)
	})
}
