package codec

import (
	"sort"

	"github.com/teranos/prism/eav"
)

// Values indexes the attribute values of one owner (an entity or a connection).
type Values struct {
	top      map[int64][]*eav.AttributeValue
	children map[int64]map[int64][]*eav.AttributeValue
}

// Index groups values by attribute, and sub-values by parent value.
func Index(values []*eav.AttributeValue) *Values {
	v := &Values{
		top:      map[int64][]*eav.AttributeValue{},
		children: map[int64]map[int64][]*eav.AttributeValue{},
	}
	sorted := append([]*eav.AttributeValue(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, val := range sorted {
		if val == nil || val.Attribute == nil {
			continue
		}
		if val.ParentValueID == nil {
			v.top[val.Attribute.ID] = append(v.top[val.Attribute.ID], val)
			continue
		}
		byAttr := v.children[*val.ParentValueID]
		if byAttr == nil {
			byAttr = map[int64][]*eav.AttributeValue{}
			v.children[*val.ParentValueID] = byAttr
		}
		byAttr[val.Attribute.ID] = append(byAttr[val.Attribute.ID], val)
	}
	return v
}

// Top returns the root-level rows for an attribute.
func (v *Values) Top(attributeID int64) []*eav.AttributeValue {
	return v.top[attributeID]
}

// Children returns the sub-values of parentValueID for one sub-attribute.
func (v *Values) Children(parentValueID, attributeID int64) []*eav.AttributeValue {
	return v.children[parentValueID][attributeID]
}

// Has reports whether any root-level row exists for an attribute.
func (v *Values) Has(attributeID int64) bool {
	return len(v.top[attributeID]) > 0
}

// AttributeIDs returns the attributes with root-level rows, ascending.
func (v *Values) AttributeIDs() []int64 {
	ids := make([]int64, 0, len(v.top))
	for id := range v.top {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
