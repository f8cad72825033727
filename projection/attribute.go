package projection

import (
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// Attribute builds the definition document for the attribute id in tree,
// with children nested recursively. The live variant drops definitions that
// are not effectively visible, at every level.
func Attribute(tree *visibility.Tree, id int64, v visibility.Variant) (Document, bool, error) {
	a, ok := tree.Attribute(id)
	if !ok {
		return nil, false, errors.NewNotFoundError("attribute %d", id)
	}
	return attributeDoc(tree, a, v, map[int64]bool{})
}

func attributeDoc(tree *visibility.Tree, a *eav.Attribute, v visibility.Variant, seen map[int64]bool) (Document, bool, error) {
	st := visibility.Attribute(a)
	if !v.Includes(st) {
		return nil, false, nil
	}
	seen[a.ID] = true

	children := []Document{}
	for _, child := range tree.Children(a.ID) {
		if seen[child.ID] {
			continue
		}
		doc, ok, err := attributeDoc(tree, child, v, seen)
		if err != nil {
			return nil, false, err
		}
		if ok {
			children = append(children, doc)
		}
	}

	var entityType any
	if a.EntityType != nil {
		entityType = entityTypeObject(*a.EntityType)
	}
	doc := Document{
		"id":             a.ID,
		"string_id":      a.StringID,
		"name":           a.Name,
		"entity_type":    entityType,
		"collection":     collectionObject(a.Collection),
		"attribute_type": attributeTypeObject(a.Type),
		"order_number":   a.OrderNumber,
		"parent_id":      a.ParentID,
		"children":       children,
		"search":         a.Name,
	}
	status(doc, st)
	return doc, true, nil
}

func attributeTypeObject(t *eav.AttributeType) any {
	if t == nil {
		return nil
	}
	return map[string]any{
		"id":                         t.ID,
		"name":                       t.Name,
		"data_type":                  string(t.DataType),
		"codebook":                   codebookObject(t.Codebook),
		"fixed_point_decimal_places": t.FixedPointDecimalPlaces,
		"range_from_inclusive":       t.RangeFromInclusive,
		"range_to_inclusive":         t.RangeToInclusive,
		"input_format":               t.InputFormat,
		"values_separator":           t.ValuesSeparator,
	}
}
