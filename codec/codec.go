// Package codec converts typed attribute values into store representations.
//
// Encode handles one slot. Document builds nested value objects annotated
// with collection provenance for the search store; Flatten builds primitive
// property arrays for the graph store. Both recurse through complex
// attributes using the attribute tree.
package codec

import (
	"math"
	"time"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
)

// Date layouts used by both targets.
const (
	DateTimeLayout = time.RFC3339
	DateLayout     = "2006-01-02"
)

// Scalar is the encoding of one slot.
type Scalar struct {
	Value any
	// ValueID is set for codebook references.
	ValueID *int64
	// Currency is set for fixed-point families when the slot has one.
	Currency *eav.Currency
}

// Encode converts a slot according to its attribute type. A missing slot
// column encodes as a nil value; an unknown data type is an error.
func Encode(slot eav.Slot, typ *eav.AttributeType) (Scalar, error) {
	if typ == nil {
		return Scalar{}, errors.Unsupported("attribute type missing")
	}
	switch typ.DataType {
	case eav.Boolean:
		return Scalar{Value: deref(slot.Boolean)}, nil
	case eav.Int:
		return Scalar{Value: deref(slot.Int)}, nil
	case eav.FixedPoint:
		return Scalar{Value: Fixed(slot.FixedPoint, typ.FixedPointDecimalPlaces), Currency: slot.Currency}, nil
	case eav.Float:
		return Scalar{Value: deref(slot.Float)}, nil
	case eav.String:
		return Scalar{Value: deref(slot.String)}, nil
	case eav.Text:
		return Scalar{Value: deref(slot.Text)}, nil
	case eav.DateTime:
		return Scalar{Value: DateTime(slot.DateTime)}, nil
	case eav.Date:
		return Scalar{Value: Date(slot.Date)}, nil
	case eav.CodebookRef:
		if slot.CodebookValue == nil {
			return Scalar{}, nil
		}
		id := slot.CodebookValue.ID
		return Scalar{Value: slot.CodebookValue.Value, ValueID: &id}, nil
	case eav.Geo:
		if slot.GeoLat == nil || slot.GeoLon == nil {
			return Scalar{}, nil
		}
		return Scalar{Value: map[string]any{"lat": *slot.GeoLat, "lon": *slot.GeoLon}}, nil
	case eav.RangeInt:
		return Scalar{Value: span(deref(slot.RangeIntFrom), deref(slot.RangeIntTo))}, nil
	case eav.RangeFixedPoint:
		dp := typ.FixedPointDecimalPlaces
		return Scalar{
			Value:    span(Fixed(slot.RangeFixedFrom, dp), Fixed(slot.RangeFixedTo, dp)),
			Currency: slot.Currency,
		}, nil
	case eav.RangeFloat:
		return Scalar{Value: span(deref(slot.RangeFloatFrom), deref(slot.RangeFloatTo))}, nil
	case eav.RangeDate:
		return Scalar{Value: span(Date(slot.RangeDateFrom), Date(slot.RangeDateTo))}, nil
	case eav.Complex:
		return Scalar{}, errors.Unsupported("attribute type %d is complex and has no slot", typ.ID)
	default:
		return Scalar{}, errors.Unsupported("attribute type %d has data type %q", typ.ID, typ.DataType)
	}
}

// Fixed scales a stored fixed-point integer down by 10^dp.
func Fixed(n *int64, dp int) any {
	if n == nil {
		return nil
	}
	return float64(*n) / math.Pow10(dp)
}

// DateTime formats t as RFC 3339 in UTC, or nil.
func DateTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(DateTimeLayout)
}

// Date formats t as a calendar date, or nil.
func Date(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(DateLayout)
}

// CurrencyObject renders a currency reference, or nil.
func CurrencyObject(c *eav.Currency) any {
	if c == nil {
		return nil
	}
	return map[string]any{"id": c.ID, "code": c.Code, "sign": c.Sign}
}

func span(from, to any) any {
	if from == nil && to == nil {
		return nil
	}
	return map[string]any{"from": from, "to": to}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
