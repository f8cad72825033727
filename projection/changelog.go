package projection

import (
	"github.com/teranos/prism/codec"
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// AttributeValueChange builds the document for one value change row. The
// old and new halves go through the same encoding as live values.
func AttributeValueChange(c *eav.AttributeValueChange, v visibility.Variant) (Document, bool, error) {
	if c == nil {
		return nil, false, errors.NewInvalidRequestError("attribute value change missing")
	}
	st := visibility.ValueChange(c)
	if !v.Includes(st) {
		return nil, false, nil
	}

	oldValue, err := changeValue(c.Attribute, c.Old)
	if err != nil {
		return nil, false, errors.Wrapf(err, "attribute value change %d old value", c.ID)
	}
	newValue, err := changeValue(c.Attribute, c.New)
	if err != nil {
		return nil, false, errors.Wrapf(err, "attribute value change %d new value", c.ID)
	}

	var attr, entity, conn any
	if a := c.Attribute; a != nil {
		attr = map[string]any{"id": a.ID, "string_id": a.StringID, "name": a.Name}
	}
	if e := c.Entity; e != nil {
		entity = map[string]any{"id": e.ID, "public_id": e.PublicID, "type": entityTypeObject(e.Type)}
	}
	if c.Connection != nil {
		conn = connectionRef(c.Connection)
	}

	doc := Document{
		"id":                 c.ID,
		"changeset":          changesetObject(c.Changeset),
		"attribute":          attr,
		"attribute_value_id": c.AttributeValueID,
		"entity":             entity,
		"connection":         conn,
		"old":                oldValue,
		"new":                newValue,
		"old_valid_from":     codec.Date(c.OldValidity.From),
		"old_valid_to":       codec.Date(c.OldValidity.To),
		"new_valid_from":     codec.Date(c.NewValidity.From),
		"new_valid_to":       codec.Date(c.NewValidity.To),
	}
	status(doc, st)
	return doc, true, nil
}

// ConnectionChange builds the document for one connection change row.
func ConnectionChange(c *eav.ConnectionChange, v visibility.Variant) (Document, bool, error) {
	if c == nil {
		return nil, false, errors.NewInvalidRequestError("connection change missing")
	}
	st := visibility.ConnectionChange(c)
	if !v.Includes(st) {
		return nil, false, nil
	}

	var conn any
	if c.Connection != nil {
		conn = connectionRef(c.Connection)
	}
	doc := Document{
		"id":                       c.ID,
		"changeset":                changesetObject(c.Changeset),
		"connection":               conn,
		"old_valid_from":           codec.Date(c.OldValidity.From),
		"old_valid_to":             codec.Date(c.OldValidity.To),
		"new_valid_from":           codec.Date(c.NewValidity.From),
		"new_valid_to":             codec.Date(c.NewValidity.To),
		"old_transaction_amount":   transactionAmount(c.OldTransactionAmount),
		"new_transaction_amount":   transactionAmount(c.NewTransactionAmount),
		"old_transaction_currency": codec.CurrencyObject(c.OldTransactionCurrency),
		"new_transaction_currency": codec.CurrencyObject(c.NewTransactionCurrency),
		"old_transaction_date":     codec.Date(c.OldTransactionDate),
		"new_transaction_date":     codec.Date(c.NewTransactionDate),
	}
	status(doc, st)
	return doc, true, nil
}

// changeValue encodes one half of a change row. Complex attributes have no
// slot of their own and encode as nil.
func changeValue(a *eav.Attribute, slot eav.Slot) (any, error) {
	if a == nil || a.Type == nil || a.Type.DataType == eav.Complex {
		return nil, nil
	}
	sc, err := codec.Encode(slot, a.Type)
	if err != nil {
		return nil, err
	}
	obj := map[string]any{"value": sc.Value}
	if sc.ValueID != nil {
		obj["value_id"] = *sc.ValueID
	}
	if a.Type.DataType.HasCurrency() {
		obj["currency"] = codec.CurrencyObject(sc.Currency)
	}
	return obj, nil
}

func connectionRef(c *eav.Connection) map[string]any {
	ref := map[string]any{"id": c.ID, "connection_type": connectionTypeObject(c.Type)}
	if c.EntityA != nil {
		ref["entity_a_public_id"] = c.EntityA.PublicID
	}
	if c.EntityB != nil {
		ref["entity_b_public_id"] = c.EntityB.PublicID
	}
	return ref
}
