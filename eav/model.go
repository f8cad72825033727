// Package eav holds the relational source model: entities, connections,
// attribute definitions and values, provenance and the change log.
//
// Records are loaded with their dependencies attached (a value carries its
// attribute, memberships carry their collection and source) so that the
// pure packages (visibility, pep, codec, projection, graph, counts) never
// touch the database.
package eav

import "time"

// Flags are the independent soft-delete and publish booleans every record carries.
type Flags struct {
	Published bool
	Deleted   bool
}

// Visible reports published and not deleted.
func (f Flags) Visible() bool { return f.Published && !f.Deleted }

// EntityType is one of the static entity kinds.
type EntityType string

const (
	Person      EntityType = "person"
	LegalEntity EntityType = "legal_entity"
	RealEstate  EntityType = "real_estate"
	Movable     EntityType = "movable"
	Savings     EntityType = "savings"
)

// EntityTypeRef is an entity_type row. The set is static but rows still get renamed.
type EntityTypeRef struct {
	ID   int64
	Name EntityType
}

// Entity is a typed node identified by a stable public id.
type Entity struct {
	ID       int64
	PublicID string
	Type     EntityTypeRef
	Flags

	// LinkedPotentiallyPEP is maintained upstream; this core only reads it.
	LinkedPotentiallyPEP bool
	ForcePEP             bool
	UpdatedAt            time.Time
}

// IsPerson reports whether the entity is person-typed.
func (e *Entity) IsPerson() bool { return e != nil && e.Type.Name == Person }

// Source groups collections by data origin.
type Source struct {
	ID        int64
	Name      string
	Quality   int
	LastInLog *time.Time
	Flags
}

// Collection batches facts ingested from one source at one quality level.
type Collection struct {
	ID        int64
	Name      string
	Quality   int
	LastInLog *time.Time
	Source    *Source
	Flags
}

// Membership links a value or a connection to a collection.
type Membership struct {
	ID         int64
	Collection *Collection
	ValidFrom  *time.Time
	ValidTo    *time.Time
	Flags
}

// Currency is referenced by fixed-point values and connection transactions.
type Currency struct {
	ID   int64
	Code string
	Sign string
}

// Codebook is a closed or open enumeration.
type Codebook struct {
	ID   int64
	Name string
	Open bool
	Flags
}

// CodebookValue is one enumerated value.
type CodebookValue struct {
	ID       int64
	Value    string
	Codebook *Codebook
	Flags
}

// Category groups connection types; each one gets a per-entity count.
type Category struct {
	ID       int64
	StringID string
	Name     string
	Flags
}

// ConnectionType types a connection.
type ConnectionType struct {
	ID             int64
	Name           string
	ReverseName    string
	PotentiallyPEP bool
	Category       *Category
	Flags
}

// TransactionDecimalPlaces is the fixed scale of connection transaction amounts.
const TransactionDecimalPlaces = 2

// Connection is a directed, typed edge between two entities.
type Connection struct {
	ID                  int64
	EntityA             *Entity
	EntityB             *Entity
	Type                *ConnectionType
	TransactionAmount   *int64
	TransactionCurrency *Currency
	TransactionDate     *time.Time
	ValidFrom           *time.Time
	ValidTo             *time.Time
	Memberships         []Membership
	Flags
	UpdatedAt time.Time
}

// Other returns the endpoint that is not entityID. A self-loop returns EntityA.
func (c *Connection) Other(entityID int64) *Entity {
	if c.EntityA != nil && c.EntityA.ID == entityID {
		return c.EntityB
	}
	return c.EntityA
}

// Touches reports whether entityID is one of the endpoints.
func (c *Connection) Touches(entityID int64) bool {
	return (c.EntityA != nil && c.EntityA.ID == entityID) || (c.EntityB != nil && c.EntityB.ID == entityID)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
