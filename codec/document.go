package codec

import (
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// Document builds search-store value objects for one variant.
type Document struct {
	Variant visibility.Variant
	Tree    *visibility.Tree
}

// Attributes encodes every root attribute in roots. An attribute without
// any row maps to an explicit nil; an attribute whose rows are all excluded
// by the variant is left out entirely.
func (d Document) Attributes(roots []*eav.Attribute, vals *Values) (map[string]any, error) {
	out := make(map[string]any, len(roots))
	for _, a := range roots {
		if !d.includesAttribute(a) {
			continue
		}
		entry, ok, err := d.attribute(a, vals.Top(a.ID), vals)
		if err != nil {
			return nil, err
		}
		if ok {
			out[a.StringID] = entry
		}
	}
	return out, nil
}

// Collections renders the provenance of a fact. The live variant lists only
// memberships that currently back it.
func (d Document) Collections(ms []eav.Membership) []map[string]any {
	if d.Variant == visibility.Live {
		ms = visibility.VisibleMemberships(ms)
	}
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		if m.Collection == nil {
			continue
		}
		c := m.Collection
		obj := map[string]any{
			"id":         c.ID,
			"name":       c.Name,
			"quality":    c.Quality,
			"valid_from": Date(m.ValidFrom),
			"valid_to":   Date(m.ValidTo),
			"source":     sourceObject(c.Source),
		}
		if d.Variant == visibility.All {
			st := visibility.Membership(m)
			obj["published"] = st.Published
			obj["deleted"] = st.Deleted
		}
		out = append(out, obj)
	}
	return out
}

func sourceObject(s *eav.Source) any {
	if s == nil {
		return nil
	}
	return map[string]any{"id": s.ID, "name": s.Name, "quality": s.Quality}
}

// includesAttribute skips definitions that cannot be encoded (dangling type)
// and, in the live variant, definitions that are not effectively visible.
func (d Document) includesAttribute(a *eav.Attribute) bool {
	if a == nil || a.Type == nil {
		return false
	}
	return d.Variant.Includes(visibility.Attribute(a))
}

func (d Document) attribute(a *eav.Attribute, rows []*eav.AttributeValue, vals *Values) (any, bool, error) {
	if len(rows) == 0 {
		return nil, true, nil
	}
	objs := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		st := visibility.Value(row)
		if !d.Variant.Includes(st) {
			continue
		}
		obj, err := d.value(a, row, vals, st)
		if err != nil {
			return nil, false, errors.Wrapf(err, "attribute %s value %d", a.StringID, row.ID)
		}
		objs = append(objs, obj)
	}
	if len(objs) == 0 {
		return nil, false, nil
	}
	return objs, true, nil
}

func (d Document) value(a *eav.Attribute, row *eav.AttributeValue, vals *Values, st visibility.Status) (map[string]any, error) {
	obj := map[string]any{"id": row.ID}
	if a.DataType() == eav.Complex {
		sub, err := d.complex(a, row, vals)
		if err != nil {
			return nil, err
		}
		obj["value"] = sub
	} else {
		sc, err := Encode(row.Slot, a.Type)
		if err != nil {
			return nil, err
		}
		obj["value"] = sc.Value
		if sc.ValueID != nil {
			obj["value_id"] = *sc.ValueID
		}
		if a.DataType().HasCurrency() {
			obj["currency"] = CurrencyObject(sc.Currency)
		}
	}
	obj["collections"] = d.Collections(row.Memberships)
	if d.Variant == visibility.All {
		obj["published"] = st.Published
		obj["deleted"] = st.Deleted
	}
	return obj, nil
}

func (d Document) complex(a *eav.Attribute, row *eav.AttributeValue, vals *Values) (map[string]any, error) {
	if d.Tree == nil {
		return nil, errors.Unsupported("complex attribute %d encoded without an attribute tree", a.ID)
	}
	out := map[string]any{}
	for _, child := range d.Tree.Children(a.ID) {
		if !d.includesAttribute(child) {
			continue
		}
		entry, ok, err := d.attribute(child, vals.Children(row.ID, child.ID), vals)
		if err != nil {
			return nil, err
		}
		if ok {
			out[child.StringID] = entry
		}
	}
	return out, nil
}
