package projection

import (
	"github.com/teranos/prism/codec"
	"github.com/teranos/prism/counts"
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// EntityInput is everything an entity document is built from.
type EntityInput struct {
	Entity *eav.Entity
	// Tree holds every attribute definition, derived flags current.
	Tree   *visibility.Tree
	Values []*eav.AttributeValue
	// PEP is the classification; nil for non-persons.
	PEP         *bool
	Categories  []*eav.Category
	Connections []*eav.Connection
	// Exclude applies to the connection counts only.
	Exclude counts.Options
}

// Entity builds the entity document for v.
func Entity(in EntityInput, v visibility.Variant) (Document, bool, error) {
	e := in.Entity
	if e == nil {
		return nil, false, errors.NewInvalidRequestError("entity input without entity")
	}
	st := visibility.Entity(e)
	if !v.Includes(st) {
		return nil, false, nil
	}

	vals := codec.Index(in.Values)
	typeID := e.Type.ID
	attrs, err := codec.Document{Variant: v, Tree: in.Tree}.Attributes(Roots(in.Tree, vals, &typeID), vals)
	if err != nil {
		return nil, false, errors.Wrapf(err, "entity %d", e.ID)
	}

	doc := Document{
		"id":                     e.ID,
		"public_id":              e.PublicID,
		"type":                   entityTypeObject(e.Type),
		"force_pep":              e.ForcePEP,
		"linked_potentially_pep": e.LinkedPotentiallyPEP,
		"attributes":             attrs,
		"search":                 SearchText(Names(in.Tree, vals, v)),
	}
	if e.IsPerson() {
		doc["potentially_pep"] = boolOrNil(in.PEP)
	}
	status(doc, st)

	for k, n := range counts.Fields(counts.Count(e.ID, in.Categories, in.Connections, counts.Variant(v, in.Exclude))) {
		doc[k] = n
	}
	return doc, true, nil
}

// Endpoint is one side of a connection with what its summary needs.
type Endpoint struct {
	Entity *eav.Entity
	PEP    *bool
	Values []*eav.AttributeValue
}

// EndpointInfo is the endpoint metadata copied onto connection documents and edges.
type EndpointInfo struct {
	ID                 int64
	PublicID           string
	Type               eav.EntityTypeRef
	PEP                *bool
	Name               string
	LegalEntityTypeIDs []int64
	Status             visibility.Status
}

// Describe summarizes an endpoint. Names and legal-entity types follow the
// variant's visibility filter.
func Describe(ep Endpoint, tree *visibility.Tree, v visibility.Variant) EndpointInfo {
	if ep.Entity == nil {
		return EndpointInfo{Status: visibility.Hidden}
	}
	vals := codec.Index(ep.Values)
	info := EndpointInfo{
		ID:       ep.Entity.ID,
		PublicID: ep.Entity.PublicID,
		Type:     ep.Entity.Type,
		Name:     eav.DisplayName(Names(tree, vals, v)),
		Status:   visibility.Entity(ep.Entity),
	}
	if ep.Entity.IsPerson() {
		info.PEP = ep.PEP
	}
	if ep.Entity.Type.Name == eav.LegalEntity {
		info.LegalEntityTypeIDs = LegalEntityTypeIDs(tree, vals, v)
	}
	return info
}

func (i EndpointInfo) object() map[string]any {
	obj := map[string]any{
		"id":        i.ID,
		"public_id": i.PublicID,
		"type":      entityTypeObject(i.Type),
		"name":      i.Name,
		"published": i.Status.Published,
		"deleted":   i.Status.Deleted,
	}
	if i.Type.Name == eav.Person {
		obj["potentially_pep"] = boolOrNil(i.PEP)
	}
	if i.LegalEntityTypeIDs != nil {
		obj["legal_entity_type_ids"] = i.LegalEntityTypeIDs
	}
	return obj
}

func boolOrNil(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
