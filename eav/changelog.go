package eav

import "time"

// ChangeType is a static classification of changesets.
type ChangeType struct {
	ID   int64
	Name string
}

// Changeset groups changes created at one moment for one collection.
type Changeset struct {
	ID         int64
	Collection *Collection
	ChangeType *ChangeType
	CreatedAt  time.Time
	Flags
}

// Interval is an optional validity window.
type Interval struct {
	From *time.Time
	To   *time.Time
}

// AttributeValueChange records an old/new value pair for one attribute.
type AttributeValueChange struct {
	ID               int64
	Changeset        *Changeset
	AttributeValueID *int64
	Entity           *Entity
	Connection       *Connection
	Attribute        *Attribute
	Old              Slot
	New              Slot
	OldValidity      Interval
	NewValidity      Interval
	Flags
}

// ConnectionChange records old/new validity and transaction data of a connection.
type ConnectionChange struct {
	ID                     int64
	Changeset              *Changeset
	Connection             *Connection
	OldValidity            Interval
	NewValidity            Interval
	OldTransactionAmount   *int64
	NewTransactionAmount   *int64
	OldTransactionCurrency *Currency
	NewTransactionCurrency *Currency
	OldTransactionDate     *time.Time
	NewTransactionDate     *time.Time
	Flags
}
