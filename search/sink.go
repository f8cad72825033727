// Package search writes projected documents to the search store.
//
// Each document kind lives in two tables, one per variant (entity_live,
// entity_all, ...). Records are keyed by the source primary key and every
// write replaces the whole record, so jobs may run twice or out of order.
package search

import (
	"context"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/visibility"
)

// StoreName identifies this store in logs, queues and job handler names.
const StoreName = "search"

// Sink is the write side of the search store.
type Sink interface {
	// Enabled reports whether writes reach a real store.
	Enabled() bool
	// Upsert replaces the record id of kind in variant v with doc.
	Upsert(ctx context.Context, kind projection.Kind, v visibility.Variant, id int64, doc projection.Document) error
	// Delete removes the record; deleting a missing record is not an error.
	Delete(ctx context.Context, kind projection.Kind, v visibility.Variant, id int64) error
	// EnsureSchema defines tables, the text analyzer and indexes.
	EnsureSchema(ctx context.Context) error
	// EnsureAttributeField adds the field definition for a new attribute.
	EnsureAttributeField(ctx context.Context, a *eav.Attribute) error
	Close(ctx context.Context) error
}
