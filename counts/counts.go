// Package counts aggregates an entity's connections per connection-type category.
package counts

import (
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/visibility"
)

// FieldPrefix starts every count field name on entity documents.
const FieldPrefix = "connection_count_"

// Options restrict what is counted.
type Options struct {
	// VisibleOnly counts only currently visible connections.
	VisibleOnly bool
	// ExcludeEntityID drops connections whose other endpoint is this entity.
	ExcludeEntityID int64
	// ExcludeConnectionID drops one connection, as if already removed.
	ExcludeConnectionID int64
}

// Variant returns the options matching a document variant.
func Variant(v visibility.Variant, exclude Options) Options {
	exclude.VisibleOnly = v == visibility.Live
	return exclude
}

// Count returns, for every category, the number of distinct outbound plus
// distinct inbound connections of entityID. A self-loop counts once in each
// direction. Connections without a type or category are ignored.
func Count(entityID int64, categories []*eav.Category, conns []*eav.Connection, opts Options) map[string]int {
	out := make(map[string]int, len(categories))
	byID := make(map[int64]string, len(categories))
	for _, c := range categories {
		out[c.StringID] = 0
		byID[c.ID] = c.StringID
	}

	outbound := map[int64]bool{}
	inbound := map[int64]bool{}
	for _, c := range conns {
		if c == nil || c.Type == nil || c.Type.Category == nil {
			continue
		}
		if opts.ExcludeConnectionID != 0 && c.ID == opts.ExcludeConnectionID {
			continue
		}
		if opts.ExcludeEntityID != 0 {
			if other := c.Other(entityID); other != nil && other.ID == opts.ExcludeEntityID {
				continue
			}
		}
		if opts.VisibleOnly && !visibility.Connection(c).Visible() {
			continue
		}
		sid, ok := byID[c.Type.Category.ID]
		if !ok {
			continue
		}
		if c.EntityA != nil && c.EntityA.ID == entityID && !outbound[c.ID] {
			outbound[c.ID] = true
			out[sid]++
		}
		if c.EntityB != nil && c.EntityB.ID == entityID && !inbound[c.ID] {
			inbound[c.ID] = true
			out[sid]++
		}
	}
	return out
}

// Fields renders counts as document fields.
func Fields(counts map[string]int) map[string]any {
	out := make(map[string]any, len(counts))
	for sid, n := range counts {
		out[FieldPrefix+sid] = n
	}
	return out
}
