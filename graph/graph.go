// Package graph builds flat property sets for graph-store nodes and edges.
//
// Property values are primitives or primitive arrays only. Edges duplicate
// the endpoint metadata edge-only queries filter on, so those queries need
// no node join.
package graph

import (
	"github.com/teranos/prism/codec"
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/visibility"
)

// Labels used in the graph store.
const (
	NodeLabel = "Entity"
	EdgeType  = "CONNECTION"
)

// Node is one entity node, keyed by public id.
type Node struct {
	Key   string
	Props map[string]any
}

// Edge is one connection edge, keyed by connection id.
type Edge struct {
	ID    int64
	From  string
	To    string
	Props map[string]any
}

// NodeInput is everything an entity node is built from.
type NodeInput struct {
	Entity *eav.Entity
	Tree   *visibility.Tree
	Values []*eav.AttributeValue
	PEP    *bool
}

// BuildNode builds the property set of an entity node. Nodes exist for every
// entity still present in the source; visibility is carried as properties.
func BuildNode(in NodeInput) (Node, error) {
	e := in.Entity
	if e == nil {
		return Node{}, errors.NewInvalidRequestError("node input without entity")
	}
	vals := codec.Index(in.Values)
	typeID := e.Type.ID
	props, err := codec.Flatten(projection.Roots(in.Tree, vals, &typeID), vals, in.Tree)
	if err != nil {
		return Node{}, errors.Wrapf(err, "entity %d", e.ID)
	}

	info := projection.Describe(projection.Endpoint{Entity: e, PEP: in.PEP, Values: in.Values}, in.Tree, visibility.Live)
	put(props, "id", e.ID)
	put(props, "public_id", e.PublicID)
	put(props, "type", string(e.Type.Name))
	put(props, "type_id", e.Type.ID)
	put(props, "force_pep", e.ForcePEP)
	put(props, "linked_potentially_pep", e.LinkedPotentiallyPEP)
	put(props, "name", info.Name)
	endpointProps(props, "", info)
	return Node{Key: e.PublicID, Props: props}, nil
}

// EdgeInput is everything a connection edge is built from.
type EdgeInput struct {
	Connection *eav.Connection
	Tree       *visibility.Tree
	Values     []*eav.AttributeValue
	A          projection.Endpoint
	B          projection.Endpoint
}

// BuildEdge builds the property set of a connection edge.
func BuildEdge(in EdgeInput) (Edge, error) {
	c := in.Connection
	if c == nil {
		return Edge{}, errors.NewInvalidRequestError("edge input without connection")
	}
	if c.EntityA == nil || c.EntityB == nil {
		return Edge{}, errors.NewNotFoundError("connection %d endpoint missing", c.ID)
	}
	vals := codec.Index(in.Values)
	props, err := codec.Flatten(projection.Roots(in.Tree, vals, nil), vals, in.Tree)
	if err != nil {
		return Edge{}, errors.Wrapf(err, "connection %d", c.ID)
	}

	st := visibility.Connection(c)
	put(props, "id", c.ID)
	put(props, "published", st.Published)
	put(props, "deleted", st.Deleted)
	if t := c.Type; t != nil {
		put(props, "type_id", t.ID)
		put(props, "type", t.Name)
		put(props, "reverse_type", t.ReverseName)
		put(props, "potentially_pep_type", t.PotentiallyPEP)
		if t.Category != nil {
			put(props, "category", t.Category.StringID)
		}
	}
	put(props, "valid_from", codec.Date(c.ValidFrom))
	put(props, "valid_to", codec.Date(c.ValidTo))
	put(props, "transaction_amount", codec.Fixed(c.TransactionAmount, eav.TransactionDecimalPlaces))
	if c.TransactionCurrency != nil {
		put(props, "transaction_currency", c.TransactionCurrency.Code)
	}
	put(props, "transaction_date", codec.Date(c.TransactionDate))

	a := withEntity(in.A, c.EntityA)
	b := withEntity(in.B, c.EntityB)
	endpointProps(props, "a_", projection.Describe(a, in.Tree, visibility.Live))
	endpointProps(props, "b_", projection.Describe(b, in.Tree, visibility.Live))

	return Edge{ID: c.ID, From: c.EntityA.PublicID, To: c.EntityB.PublicID, Props: props}, nil
}

// StubNode is the minimal node merged for an edge endpoint that has not been
// written yet; the full node write replaces it.
func StubNode(e *eav.Entity) Node {
	props := map[string]any{}
	put(props, "id", e.ID)
	put(props, "public_id", e.PublicID)
	put(props, "type", string(e.Type.Name))
	return Node{Key: e.PublicID, Props: props}
}

func endpointProps(props map[string]any, prefix string, info projection.EndpointInfo) {
	if prefix != "" {
		put(props, prefix+"id", info.ID)
		put(props, prefix+"public_id", info.PublicID)
		put(props, prefix+"type", string(info.Type.Name))
	}
	put(props, prefix+"published", info.Status.Published)
	put(props, prefix+"deleted", info.Status.Deleted)
	if info.PEP != nil {
		put(props, prefix+"potentially_pep", *info.PEP)
	}
	if info.Type.Name == eav.LegalEntity {
		put(props, prefix+"legal_entity_type_ids", info.LegalEntityTypeIDs)
	}
}

func withEntity(ep projection.Endpoint, e *eav.Entity) projection.Endpoint {
	if ep.Entity == nil {
		ep.Entity = e
	}
	return ep
}

// put sets a property unless v is nil; graph stores treat null as removal.
func put(props map[string]any, key string, v any) {
	if v == nil {
		return
	}
	props[key] = v
}
