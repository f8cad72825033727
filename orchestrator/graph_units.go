package orchestrator

import (
	"context"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/graph"
)

func (o *Orchestrator) graphEntity(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.graph.DeleteNode(ctx, p.ID)
	}
	e, err := o.src.Entity(ctx, p.ID)
	if errors.IsNotFoundError(err) {
		return o.graph.DeleteNode(ctx, p.ID)
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
	node, err := graph.BuildNode(graph.NodeInput{Entity: e, Tree: tree, Values: ep.Values, PEP: ep.PEP})
	if err != nil {
		return err
	}
	return o.graph.UpsertNode(ctx, node)
}

func (o *Orchestrator) graphConnection(ctx context.Context, p UnitPayload) error {
	if p.Remove {
		return o.graph.DeleteEdge(ctx, p.ID)
	}
	c, err := o.src.Connection(ctx, p.ID)
	if errors.IsNotFoundError(err) {
		return o.graph.DeleteEdge(ctx, p.ID)
	}
	if err != nil {
		return err
	}
	if c.EntityA == nil || c.EntityB == nil {
		return o.graph.DeleteEdge(ctx, p.ID)
	}
	in, err := o.connectionInput(ctx, c, p)
	if err != nil {
		return err
	}
	edge, err := graph.BuildEdge(graph.EdgeInput{Connection: c, Tree: in.Tree, Values: in.Values, A: in.A, B: in.B})
	if err != nil {
		return err
	}
	return o.graph.UpsertEdge(ctx, edge, graph.StubNode(c.EntityA), graph.StubNode(c.EntityB))
}
