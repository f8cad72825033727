package graphstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/prism/graph"
	"github.com/teranos/prism/logger"
)

// Nop stands in for an unconfigured graph store.
type Nop struct {
	log  *zap.SugaredLogger
	once sync.Once
}

// NewNop returns a sink that drops all writes, logging the first one.
func NewNop(log *zap.SugaredLogger) *Nop {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Nop{log: log}
}

func (n *Nop) notice() {
	n.once.Do(func() {
		n.log.Infow("Graph store not configured, skipping writes", logger.FieldStore, StoreName)
	})
}

func (n *Nop) Enabled() bool { return false }

func (n *Nop) UpsertNode(context.Context, graph.Node) error {
	n.notice()
	return nil
}

func (n *Nop) UpsertEdge(context.Context, graph.Edge, graph.Node, graph.Node) error {
	n.notice()
	return nil
}

func (n *Nop) DeleteNode(context.Context, int64) error {
	n.notice()
	return nil
}

func (n *Nop) DeleteEdge(context.Context, int64) error {
	n.notice()
	return nil
}

func (n *Nop) EnsureSchema(context.Context) error {
	n.notice()
	return nil
}

func (n *Nop) Close(context.Context) error { return nil }
