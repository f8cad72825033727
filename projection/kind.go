// Package projection builds search-store documents from loaded source records.
//
// Every builder takes fully loaded inputs and a variant and returns the
// complete replacement document, or ok=false when the variant must not hold
// the record (the caller deletes it). Builders never read the database.
package projection

import (
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// Kind is a projected document kind.
type Kind string

const (
	KindEntity               Kind = "entity"
	KindConnection           Kind = "connection"
	KindAttribute            Kind = "attribute"
	KindConnectionType       Kind = "connection_type"
	KindCodebookValue        Kind = "codebook_value"
	KindAttributeValueChange Kind = "attribute_value_change"
	KindConnectionChange     Kind = "entity_entity_change"
)

// Kinds lists every document kind.
var Kinds = []Kind{
	KindEntity,
	KindConnection,
	KindAttribute,
	KindConnectionType,
	KindCodebookValue,
	KindAttributeValueChange,
	KindConnectionChange,
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.NewInvalidRequestError("unknown document kind %q", s)
}

// Table names the search-store table holding kind in variant.
func Table(k Kind, v visibility.Variant) string {
	return string(k) + "_" + string(v)
}

// Document is one built body, keyed by the source primary key.
type Document map[string]any

func status(doc Document, st visibility.Status) {
	doc["published"] = st.Published
	doc["deleted"] = st.Deleted
}
