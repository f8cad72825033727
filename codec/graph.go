package codec

import (
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// PropPrefix starts every flattened attribute property name.
const PropPrefix = "attr_"

// Flatten encodes the visible values of roots as graph properties. Each
// attribute becomes one or more primitive arrays; complex attributes nest by
// joining string ids with "__". Nil slot columns are skipped since graph
// arrays cannot hold nulls.
func Flatten(roots []*eav.Attribute, vals *Values, tree *visibility.Tree) (map[string]any, error) {
	f := &flattener{props: map[string]any{}, vals: vals, tree: tree}
	for _, a := range roots {
		if err := f.attribute(PropPrefix+a.StringID, a, vals.Top(a.ID)); err != nil {
			return nil, err
		}
	}
	return f.props, nil
}

type flattener struct {
	props map[string]any
	vals  *Values
	tree  *visibility.Tree
}

func (f *flattener) attribute(key string, a *eav.Attribute, rows []*eav.AttributeValue) error {
	if a == nil || a.Type == nil || !visibility.Attribute(a).Visible() {
		return nil
	}
	for _, row := range rows {
		if !visibility.Value(row).Visible() {
			continue
		}
		if err := f.value(key, a, row); err != nil {
			return errors.Wrapf(err, "attribute %s value %d", a.StringID, row.ID)
		}
	}
	return nil
}

func (f *flattener) value(key string, a *eav.Attribute, row *eav.AttributeValue) error {
	if a.DataType() == eav.Complex {
		if f.tree == nil {
			return errors.Unsupported("complex attribute %d flattened without an attribute tree", a.ID)
		}
		for _, child := range f.tree.Children(a.ID) {
			if err := f.attribute(key+"__"+child.StringID, child, f.vals.Children(row.ID, child.ID)); err != nil {
				return err
			}
		}
		return nil
	}

	sc, err := Encode(row.Slot, a.Type)
	if err != nil {
		return err
	}
	switch v := sc.Value.(type) {
	case nil:
		return nil
	case map[string]any:
		if lat, ok := v["lat"]; ok {
			f.add(key+"_lat", lat)
			f.add(key+"_lon", v["lon"])
		} else {
			f.add(key+"_from", v["from"])
			f.add(key+"_to", v["to"])
		}
	default:
		f.add(key, v)
	}
	if sc.ValueID != nil {
		f.add(key+"_id", *sc.ValueID)
	}
	if a.DataType().HasCurrency() {
		code := ""
		if sc.Currency != nil {
			code = sc.Currency.Code
		}
		f.add(key+"_currency", code)
	}
	return nil
}

func (f *flattener) add(key string, v any) {
	if v == nil {
		return
	}
	arr, _ := f.props[key].([]any)
	f.props[key] = append(arr, v)
}
