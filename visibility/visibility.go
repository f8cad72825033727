// Package visibility computes effective published/deleted status.
//
// Deletion folds pessimistically (any deleted dependency hides a fact),
// publication optimistically across collection memberships (one published
// membership is enough) and conjunctively everywhere else. Dangling
// references never raise errors; they resolve to invisible.
package visibility

import "github.com/teranos/prism/eav"

// Status is an effective visibility result.
type Status struct {
	Published bool
	Deleted   bool
}

// Visible reports published and not deleted.
func (s Status) Visible() bool { return s.Published && !s.Deleted }

// And folds another dependency into s.
func (s Status) And(o Status) Status {
	return Status{Published: s.Published && o.Published, Deleted: s.Deleted || o.Deleted}
}

// Hidden is the status of a missing dependency.
var Hidden = Status{Published: false, Deleted: true}

// Own lifts a record's own flags.
func Own(f eav.Flags) Status {
	return Status{Published: f.Published, Deleted: f.Deleted}
}

// Entity returns the status of an entity; entities have no ancestors.
func Entity(e *eav.Entity) Status {
	if e == nil {
		return Hidden
	}
	return Own(e.Flags)
}

// Collection folds a collection with its source.
func Collection(c *eav.Collection) Status {
	if c == nil || c.Source == nil {
		return Hidden
	}
	return Own(c.Flags).And(Own(c.Source.Flags))
}

// Membership folds one membership with its collection and source.
func Membership(m eav.Membership) Status {
	return Own(m.Flags).And(Collection(m.Collection))
}

// Memberships folds a membership set: deleted only if every membership is
// deleted or unpublished, published if any is published and not deleted. A
// membership counts toward the set only while it is itself visible, so an
// empty or entirely invisible set is deleted and unpublished.
func Memberships(ms []eav.Membership) Status {
	out := Status{Published: false, Deleted: true}
	for _, m := range ms {
		st := Membership(m)
		out.Published = out.Published || st.Visible()
		out.Deleted = out.Deleted && !st.Visible()
	}
	return out
}

// VisibleMemberships returns the memberships that currently back a fact.
func VisibleMemberships(ms []eav.Membership) []eav.Membership {
	var out []eav.Membership
	for _, m := range ms {
		if Membership(m).Visible() {
			out = append(out, m)
		}
	}
	return out
}

// Connection recomputes a connection's status from its own flags, both
// endpoints and its collection memberships.
func Connection(c *eav.Connection) Status {
	if c == nil {
		return Hidden
	}
	return Own(c.Flags).
		And(Entity(c.EntityA)).
		And(Entity(c.EntityB)).
		And(Memberships(c.Memberships))
}

// Value recomputes an attribute value's status from its own flags, its
// attribute's effective flags, its memberships and any codebook reference.
// The owning entity or connection is folded in by the caller.
func Value(v *eav.AttributeValue) Status {
	if v == nil || v.Attribute == nil {
		return Hidden
	}
	st := Own(v.Flags).And(Attribute(v.Attribute)).And(Memberships(v.Memberships))
	if v.Attribute.DataType() == eav.CodebookRef {
		st = st.And(CodebookValue(v.CodebookValue))
	}
	return st
}

// Attribute lifts an attribute's persisted effective flags.
func Attribute(a *eav.Attribute) Status {
	if a == nil {
		return Hidden
	}
	return Status{Published: a.FinallyPublished(), Deleted: a.FinallyDeleted()}
}

// CodebookValue conjoins a value with its codebook.
func CodebookValue(v *eav.CodebookValue) Status {
	if v == nil || v.Codebook == nil {
		return Hidden
	}
	return Own(v.Flags).And(Own(v.Codebook.Flags))
}

// ConnectionType conjoins a connection type with its category.
func ConnectionType(t *eav.ConnectionType) Status {
	if t == nil || t.Category == nil {
		return Hidden
	}
	return Own(t.Flags).And(Own(t.Category.Flags))
}

// Changeset folds a changeset with its collection and source.
func Changeset(cs *eav.Changeset) Status {
	if cs == nil {
		return Hidden
	}
	return Own(cs.Flags).And(Collection(cs.Collection))
}

// ValueChange folds a change row with its changeset chain, attribute and owner.
func ValueChange(c *eav.AttributeValueChange) Status {
	if c == nil {
		return Hidden
	}
	st := Own(c.Flags).And(Changeset(c.Changeset)).And(Attribute(c.Attribute))
	switch {
	case c.Entity != nil:
		st = st.And(Entity(c.Entity))
	case c.Connection != nil:
		st = st.And(Connection(c.Connection))
	default:
		st = Hidden
	}
	return st
}

// ConnectionChange folds a connection change row with its changeset chain and connection.
func ConnectionChange(c *eav.ConnectionChange) Status {
	if c == nil {
		return Hidden
	}
	return Own(c.Flags).And(Changeset(c.Changeset)).And(Connection(c.Connection))
}

// Variant selects which records a projection includes.
type Variant string

const (
	// Live holds currently visible records only.
	Live Variant = "live"
	// All holds every existing record regardless of visibility.
	All Variant = "all"
)

// Variants lists both variants in write order.
var Variants = []Variant{Live, All}

// Includes reports whether a record with status s belongs in v.
func (v Variant) Includes(s Status) bool {
	return v == All || s.Visible()
}
