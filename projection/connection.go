package projection

import (
	"strings"

	"github.com/teranos/prism/codec"
	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// ConnectionInput is everything a connection document is built from.
type ConnectionInput struct {
	Connection *eav.Connection
	Tree       *visibility.Tree
	// Values are the connection's own attribute values.
	Values []*eav.AttributeValue
	A      Endpoint
	B      Endpoint
}

// Connection builds the connection document for v.
func Connection(in ConnectionInput, v visibility.Variant) (Document, bool, error) {
	c := in.Connection
	if c == nil {
		return nil, false, errors.NewInvalidRequestError("connection input without connection")
	}
	st := visibility.Connection(c)
	if !v.Includes(st) {
		return nil, false, nil
	}

	vals := codec.Index(in.Values)
	enc := codec.Document{Variant: v, Tree: in.Tree}
	attrs, err := enc.Attributes(Roots(in.Tree, vals, nil), vals)
	if err != nil {
		return nil, false, errors.Wrapf(err, "connection %d", c.ID)
	}

	a := Describe(endpoint(in.A, c.EntityA), in.Tree, v)
	b := Describe(endpoint(in.B, c.EntityB), in.Tree, v)

	doc := Document{
		"id":                   c.ID,
		"entity_a":             a.object(),
		"entity_b":             b.object(),
		"connection_type":      connectionTypeObject(c.Type),
		"valid_from":           codec.Date(c.ValidFrom),
		"valid_to":             codec.Date(c.ValidTo),
		"transaction_amount":   transactionAmount(c.TransactionAmount),
		"transaction_currency": codec.CurrencyObject(c.TransactionCurrency),
		"transaction_date":     codec.Date(c.TransactionDate),
		"attributes":           attrs,
		"collections":          enc.Collections(c.Memberships),
		"search":               strings.TrimSpace(a.Name + " " + b.Name),
	}
	status(doc, st)
	return doc, true, nil
}

func endpoint(ep Endpoint, e *eav.Entity) Endpoint {
	if ep.Entity == nil {
		ep.Entity = e
	}
	return ep
}
