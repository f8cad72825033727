// Package graphstore writes entity nodes and connection edges to the
// property-graph store.
//
// Nodes are merged on public_id and their property set is replaced whole.
// Edges are deleted and recreated on every write, which keeps them correct
// when a connection moves to a different endpoint.
package graphstore

import (
	"context"

	"github.com/teranos/prism/graph"
)

// StoreName identifies this store in logs, queues and job handler names.
const StoreName = "graph"

// Sink is the write side of the graph store.
type Sink interface {
	Enabled() bool
	// UpsertNode replaces the node's properties, creating it if needed.
	UpsertNode(ctx context.Context, n graph.Node) error
	// UpsertEdge replaces edge e. from and to are stubs merged for
	// endpoints not written yet.
	UpsertEdge(ctx context.Context, e graph.Edge, from, to graph.Node) error
	// DeleteNode removes the node with source id and its edges.
	DeleteNode(ctx context.Context, entityID int64) error
	// DeleteEdge removes the edge with connection id.
	DeleteEdge(ctx context.Context, connectionID int64) error
	// EnsureSchema creates the key constraint and secondary indexes.
	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}
