package search

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/visibility"
)

// Nop stands in for an unconfigured search store. Every call succeeds and
// the first one logs a notice.
type Nop struct {
	log  *zap.SugaredLogger
	once sync.Once
}

// NewNop returns a sink that drops all writes.
func NewNop(log *zap.SugaredLogger) *Nop {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Nop{log: log}
}

func (n *Nop) notice() {
	n.once.Do(func() {
		n.log.Infow("Search store not configured, skipping writes", logger.FieldStore, StoreName)
	})
}

func (n *Nop) Enabled() bool { return false }

func (n *Nop) Upsert(context.Context, projection.Kind, visibility.Variant, int64, projection.Document) error {
	n.notice()
	return nil
}

func (n *Nop) Delete(context.Context, projection.Kind, visibility.Variant, int64) error {
	n.notice()
	return nil
}

func (n *Nop) EnsureSchema(context.Context) error {
	n.notice()
	return nil
}

func (n *Nop) EnsureAttributeField(context.Context, *eav.Attribute) error {
	n.notice()
	return nil
}

func (n *Nop) Close(context.Context) error { return nil }
