package eav

import "time"

// DataType names a value-slot family.
type DataType string

const (
	Boolean         DataType = "boolean"
	Int             DataType = "int"
	FixedPoint      DataType = "fixed_point"
	Float           DataType = "float"
	String          DataType = "string"
	Text            DataType = "text"
	DateTime        DataType = "datetime"
	Date            DataType = "date"
	CodebookRef     DataType = "codebook"
	Geo             DataType = "geo"
	RangeInt        DataType = "range_int"
	RangeFixedPoint DataType = "range_fixed_point"
	RangeFloat      DataType = "range_float"
	RangeDate       DataType = "range_date"
	Complex         DataType = "complex"
)

// HasCurrency reports whether values of this family may carry a currency.
func (d DataType) HasCurrency() bool { return d == FixedPoint || d == RangeFixedPoint }

// AttributeType describes the shape of an attribute's values.
type AttributeType struct {
	ID                      int64
	Name                    string
	DataType                DataType
	Codebook                *Codebook
	FixedPointDecimalPlaces int
	RangeFromInclusive      bool
	RangeToInclusive        bool
	InputFormat             string
	ValuesSeparator         string
	Flags
}

// Derived holds the denormalized visibility booleans persisted on each attribute.
type Derived struct {
	AnyParentDeleted              bool
	AllParentsPublished           bool
	AnyRelatedDeleted             bool
	AllRelatedPublished           bool
	AnyParentAnyRelatedDeleted    bool
	AllParentsAllRelatedPublished bool
}

// Attribute is a typed field definition: a root (owned by an entity type or a
// collection) or a sub-attribute of a complex parent.
type Attribute struct {
	ID          int64
	StringID    string
	Name        string
	Type        *AttributeType
	EntityType  *EntityTypeRef
	Collection  *Collection
	ParentID    *int64
	OrderNumber int
	Flags
	Derived
	UpdatedAt time.Time
}

// FinallyDeleted folds the own flag with the derived ones.
func (a *Attribute) FinallyDeleted() bool {
	return a.Deleted || a.AnyParentDeleted || a.AnyRelatedDeleted || a.AnyParentAnyRelatedDeleted
}

// FinallyPublished folds the own flag with the derived ones.
func (a *Attribute) FinallyPublished() bool {
	return a.Published && a.AllParentsPublished && a.AllRelatedPublished && a.AllParentsAllRelatedPublished
}

// FinallyVisible reports effective published and not effective deleted.
func (a *Attribute) FinallyVisible() bool { return a.FinallyPublished() && !a.FinallyDeleted() }

// IsRoot reports whether the attribute has no parent.
func (a *Attribute) IsRoot() bool { return a.ParentID == nil }

// DataType returns the declared data type, or "" when the type is missing.
func (a *Attribute) DataType() DataType {
	if a.Type == nil {
		return ""
	}
	return a.Type.DataType
}

// Slot is the typed storage of one value. Exactly one family is set per the
// attribute's data type; range families use both ends.
type Slot struct {
	Boolean        *bool
	Int            *int64
	FixedPoint     *int64
	Float          *float64
	String         *string
	Text           *string
	DateTime       *time.Time
	Date           *time.Time
	CodebookValue  *CodebookValue
	GeoLat         *float64
	GeoLon         *float64
	RangeIntFrom   *int64
	RangeIntTo     *int64
	RangeFixedFrom *int64
	RangeFixedTo   *int64
	RangeFloatFrom *float64
	RangeFloatTo   *float64
	RangeDateFrom  *time.Time
	RangeDateTo    *time.Time
	Currency       *Currency
}

// AttributeValue is one value for one entity or connection and one attribute.
type AttributeValue struct {
	ID            int64
	EntityID      *int64
	ConnectionID  *int64
	Attribute     *Attribute
	ParentValueID *int64
	Slot
	Memberships []Membership
	Flags
	UpdatedAt time.Time
}
