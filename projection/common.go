package projection

import (
	"strings"

	"github.com/teranos/prism/codec"
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/visibility"
)

// Roots returns the root attributes a document lists: every root declared
// for the owner, plus any other root the owner holds rows for. Connections
// pass a nil entityTypeID and declare the roots without an entity type.
// Declared roots without rows are encoded as null.
func Roots(tree *visibility.Tree, vals *codec.Values, entityTypeID *int64) []*eav.Attribute {
	var out []*eav.Attribute
	for _, a := range tree.Roots() {
		var declared bool
		if entityTypeID == nil {
			declared = a.EntityType == nil
		} else {
			declared = a.EntityType != nil && a.EntityType.ID == *entityTypeID
		}
		if declared || vals.Has(a.ID) {
			out = append(out, a)
		}
	}
	return out
}

// Names collects the string values of name-bearing root attributes.
func Names(tree *visibility.Tree, vals *codec.Values, v visibility.Variant) map[string][]string {
	out := map[string][]string{}
	for _, a := range tree.Roots() {
		if !eav.IsNameAttribute(a.StringID) {
			continue
		}
		for _, row := range vals.Top(a.ID) {
			if !v.Includes(visibility.Value(row)) {
				continue
			}
			switch {
			case row.String != nil:
				out[a.StringID] = append(out[a.StringID], *row.String)
			case row.Text != nil:
				out[a.StringID] = append(out[a.StringID], *row.Text)
			}
		}
	}
	return out
}

// SearchText joins the allowlisted name values in allowlist order.
func SearchText(names map[string][]string) string {
	var parts []string
	for _, id := range eav.SearchAttributes {
		for _, s := range names[id] {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

// LegalEntityTypeIDs returns the codebook value ids of the legal-entity-type
// attribute. A legal entity can carry several.
func LegalEntityTypeIDs(tree *visibility.Tree, vals *codec.Values, v visibility.Variant) []int64 {
	ids := []int64{}
	for _, a := range tree.Roots() {
		if a.StringID != eav.AttrLegalEntityType {
			continue
		}
		for _, row := range vals.Top(a.ID) {
			if row.CodebookValue != nil && v.Includes(visibility.Value(row)) {
				ids = append(ids, row.CodebookValue.ID)
			}
		}
	}
	return ids
}

func entityTypeObject(t eav.EntityTypeRef) map[string]any {
	return map[string]any{"id": t.ID, "name": string(t.Name)}
}

func sourceObject(s *eav.Source) any {
	if s == nil {
		return nil
	}
	return map[string]any{"id": s.ID, "name": s.Name, "quality": s.Quality}
}

func collectionObject(c *eav.Collection) any {
	if c == nil {
		return nil
	}
	return map[string]any{
		"id":      c.ID,
		"name":    c.Name,
		"quality": c.Quality,
		"source":  sourceObject(c.Source),
	}
}

func codebookObject(cb *eav.Codebook) any {
	if cb == nil {
		return nil
	}
	return map[string]any{"id": cb.ID, "name": cb.Name, "is_open": cb.Open}
}

func categoryObject(c *eav.Category) any {
	if c == nil {
		return nil
	}
	return map[string]any{"id": c.ID, "string_id": c.StringID, "name": c.Name}
}

func connectionTypeObject(t *eav.ConnectionType) any {
	if t == nil {
		return nil
	}
	return map[string]any{
		"id":              t.ID,
		"name":            t.Name,
		"reverse_name":    t.ReverseName,
		"potentially_pep": t.PotentiallyPEP,
		"category":        categoryObject(t.Category),
	}
}

func changesetObject(cs *eav.Changeset) any {
	if cs == nil {
		return nil
	}
	var changeType any
	if cs.ChangeType != nil {
		changeType = map[string]any{"id": cs.ChangeType.ID, "name": cs.ChangeType.Name}
	}
	return map[string]any{
		"id":          cs.ID,
		"created_at":  codec.DateTime(&cs.CreatedAt),
		"change_type": changeType,
		"collection":  collectionObject(cs.Collection),
	}
}

func transactionAmount(n *int64) any {
	return codec.Fixed(n, eav.TransactionDecimalPlaces)
}
