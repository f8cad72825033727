package visibility

import (
	"sort"

	"github.com/teranos/prism/eav"
)

// Tree is an attribute family resolved by id lookup. Nodes reference each
// other by arena index; nothing points back into the attributes themselves
// until Recompute writes the derived flags.
type Tree struct {
	nodes []node
	index map[int64]int
}

type node struct {
	attr     *eav.Attribute
	parent   int
	children []int
}

const noParent = -1

// Change is one attribute whose derived flags moved during a recompute.
type Change struct {
	AttributeID int64
	Before      eav.Derived
	After       eav.Derived
}

// NewTree indexes attrs. Parents are resolved by id; a sub-attribute whose
// parent is missing from attrs is treated as orphaned.
func NewTree(attrs []*eav.Attribute) *Tree {
	t := &Tree{index: make(map[int64]int, len(attrs))}
	for _, a := range attrs {
		if a == nil {
			continue
		}
		if _, dup := t.index[a.ID]; dup {
			continue
		}
		t.index[a.ID] = len(t.nodes)
		t.nodes = append(t.nodes, node{attr: a, parent: noParent})
	}
	for i := range t.nodes {
		a := t.nodes[i].attr
		if a.ParentID == nil {
			continue
		}
		if p, ok := t.index[*a.ParentID]; ok && p != i {
			t.nodes[i].parent = p
			t.nodes[p].children = append(t.nodes[p].children, i)
		}
	}
	for i := range t.nodes {
		children := t.nodes[i].children
		sort.SliceStable(children, func(x, y int) bool {
			cx, cy := t.nodes[children[x]].attr, t.nodes[children[y]].attr
			if cx.OrderNumber != cy.OrderNumber {
				return cx.OrderNumber < cy.OrderNumber
			}
			return cx.ID < cy.ID
		})
	}
	return t
}

// Attribute returns the attribute with the given id, if indexed.
func (t *Tree) Attribute(id int64) (*eav.Attribute, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.nodes[i].attr, true
}

// Children returns the direct children of id ordered by order number.
func (t *Tree) Children(id int64) []*eav.Attribute {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	out := make([]*eav.Attribute, 0, len(t.nodes[i].children))
	for _, c := range t.nodes[i].children {
		out = append(out, t.nodes[c].attr)
	}
	return out
}

// All returns every attribute in load order.
func (t *Tree) All() []*eav.Attribute {
	out := make([]*eav.Attribute, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = n.attr
	}
	return out
}

// Roots returns the attributes with no resolved parent and no parent id.
func (t *Tree) Roots() []*eav.Attribute {
	var out []*eav.Attribute
	for _, n := range t.nodes {
		if n.attr.ParentID == nil {
			out = append(out, n.attr)
		}
	}
	return out
}

// Subtree returns id and all of its descendants, parents before children.
func (t *Tree) Subtree(id int64) []int64 {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []int64
	t.walk(i, func(n int) { out = append(out, t.nodes[n].attr.ID) })
	return out
}

// Ancestors returns the parent chain of id, nearest first.
func (t *Tree) Ancestors(id int64) []int64 {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []int64
	seen := map[int]bool{i: true}
	for p := t.nodes[i].parent; p != noParent && !seen[p]; p = t.nodes[p].parent {
		seen[p] = true
		out = append(out, t.nodes[p].attr.ID)
	}
	return out
}

// Recompute derives the flags of every attribute in the tree from scratch,
// writes them onto the attributes and reports the ones that changed.
func (t *Tree) Recompute() []Change {
	var changes []Change
	reached := make([]bool, len(t.nodes))
	for i, n := range t.nodes {
		if n.parent != noParent {
			continue
		}
		orphan := n.attr.ParentID != nil
		t.walk(i, func(c int) {
			reached[c] = true
			if ch, moved := t.derive(c, orphan && c == i); moved {
				changes = append(changes, ch)
			}
		})
	}
	// Nodes caught in a parent cycle are never reached from a root
	for i := range t.nodes {
		if !reached[i] {
			if ch, moved := t.setDerived(i, orphanDerived(t.nodes[i].attr)); moved {
				changes = append(changes, ch)
			}
		}
	}
	return changes
}

// RecomputeFrom re-derives id and its descendants, trusting the flags already
// held by id's ancestors.
func (t *Tree) RecomputeFrom(id int64) []Change {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var changes []Change
	orphan := t.nodes[i].parent == noParent && t.nodes[i].attr.ParentID != nil
	t.walk(i, func(c int) {
		if ch, moved := t.derive(c, orphan && c == i); moved {
			changes = append(changes, ch)
		}
	})
	return changes
}

// walk visits start and its descendants breadth-first, parents first.
func (t *Tree) walk(start int, visit func(int)) {
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visit(n)
		for _, c := range t.nodes[n].children {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
}

func (t *Tree) derive(i int, orphan bool) (Change, bool) {
	a := t.nodes[i].attr
	if orphan {
		return t.setDerived(i, orphanDerived(a))
	}

	anyRelDel, allRelPub := Related(a)
	d := eav.Derived{
		AllParentsPublished:           true,
		AnyRelatedDeleted:             anyRelDel,
		AllRelatedPublished:           allRelPub,
		AllParentsAllRelatedPublished: true,
	}
	if p := t.nodes[i].parent; p != noParent {
		pa := t.nodes[p].attr
		d.AnyParentDeleted = pa.Deleted || pa.AnyParentDeleted
		d.AllParentsPublished = pa.Published && pa.AllParentsPublished
		d.AnyParentAnyRelatedDeleted = pa.AnyRelatedDeleted || pa.AnyParentAnyRelatedDeleted
		d.AllParentsAllRelatedPublished = pa.AllRelatedPublished && pa.AllParentsAllRelatedPublished
	}
	return t.setDerived(i, d)
}

func (t *Tree) setDerived(i int, d eav.Derived) (Change, bool) {
	a := t.nodes[i].attr
	before := a.Derived
	a.Derived = d
	return Change{AttributeID: a.ID, Before: before, After: d}, before != d
}

// orphanDerived hides an attribute whose parent chain cannot be resolved.
func orphanDerived(a *eav.Attribute) eav.Derived {
	anyRelDel, allRelPub := Related(a)
	return eav.Derived{
		AnyParentDeleted:              true,
		AllParentsPublished:           false,
		AnyRelatedDeleted:             anyRelDel,
		AllRelatedPublished:           allRelPub,
		AnyParentAnyRelatedDeleted:    true,
		AllParentsAllRelatedPublished: false,
	}
}

// Related folds an attribute's non-ancestor dependencies: its attribute type,
// the type's codebook, and its owning collection with that collection's source.
func Related(a *eav.Attribute) (anyDeleted, allPublished bool) {
	allPublished = true

	typ := a.Type
	if typ == nil {
		return true, false
	}
	anyDeleted = typ.Deleted
	allPublished = typ.Published

	if typ.Codebook != nil {
		anyDeleted = anyDeleted || typ.Codebook.Deleted
		allPublished = allPublished && typ.Codebook.Published
	} else if typ.DataType == eav.CodebookRef {
		anyDeleted, allPublished = true, false
	}

	if a.Collection != nil {
		st := Collection(a.Collection)
		anyDeleted = anyDeleted || st.Deleted
		allPublished = allPublished && st.Published
	}
	return anyDeleted, allPublished
}
