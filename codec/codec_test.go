package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

var live = eav.Flags{Published: true}

func typed(dt eav.DataType) *eav.AttributeType {
	return &eav.AttributeType{ID: 1, DataType: dt, Flags: live}
}

func TestEncode_Families(t *testing.T) {
	day := time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)
	eur := &eav.Currency{ID: 3, Code: "EUR", Sign: "€"}
	cv := &eav.CodebookValue{ID: 77, Value: "bank"}

	fixed := typed(eav.FixedPoint)
	fixed.FixedPointDecimalPlaces = 2

	tests := []struct {
		name string
		typ  *eav.AttributeType
		slot eav.Slot
		want any
	}{
		{"boolean", typed(eav.Boolean), eav.Slot{Boolean: eav.Ptr(true)}, true},
		{"int", typed(eav.Int), eav.Slot{Int: eav.Ptr(int64(42))}, int64(42)},
		{"float", typed(eav.Float), eav.Slot{Float: eav.Ptr(1.5)}, 1.5},
		{"string", typed(eav.String), eav.Slot{String: eav.Ptr("Ana")}, "Ana"},
		{"text", typed(eav.Text), eav.Slot{Text: eav.Ptr("long")}, "long"},
		{"datetime", typed(eav.DateTime), eav.Slot{DateTime: &day}, "2024-03-09T15:04:05Z"},
		{"date", typed(eav.Date), eav.Slot{Date: &day}, "2024-03-09"},
		{"fixed point", fixed, eav.Slot{FixedPoint: eav.Ptr(int64(12345)), Currency: eur}, 123.45},
		{"codebook", typed(eav.CodebookRef), eav.Slot{CodebookValue: cv}, "bank"},
		{"geo", typed(eav.Geo), eav.Slot{GeoLat: eav.Ptr(45.8), GeoLon: eav.Ptr(15.9)}, map[string]any{"lat": 45.8, "lon": 15.9}},
		{"range int", typed(eav.RangeInt), eav.Slot{RangeIntFrom: eav.Ptr(int64(1))}, map[string]any{"from": int64(1), "to": nil}},
		{"range date", typed(eav.RangeDate), eav.Slot{RangeDateFrom: &day, RangeDateTo: &day}, map[string]any{"from": "2024-03-09", "to": "2024-03-09"}},
		{"missing column", typed(eav.Int), eav.Slot{}, nil},
		{"missing range", typed(eav.RangeFloat), eav.Slot{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Encode(tt.slot, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sc.Value)
		})
	}
}

func TestEncode_ExtrasForCodebookAndCurrency(t *testing.T) {
	sc, err := Encode(eav.Slot{CodebookValue: &eav.CodebookValue{ID: 77, Value: "bank"}}, typed(eav.CodebookRef))
	require.NoError(t, err)
	require.NotNil(t, sc.ValueID)
	assert.Equal(t, int64(77), *sc.ValueID)

	eur := &eav.Currency{ID: 3, Code: "EUR"}
	rng := typed(eav.RangeFixedPoint)
	rng.FixedPointDecimalPlaces = 1
	sc, err = Encode(eav.Slot{RangeFixedFrom: eav.Ptr(int64(15)), RangeFixedTo: eav.Ptr(int64(30)), Currency: eur}, rng)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": 1.5, "to": 3.0}, sc.Value)
	assert.Same(t, eur, sc.Currency)
}

func TestEncode_Unsupported(t *testing.T) {
	_, err := Encode(eav.Slot{}, typed("polygon"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDataType))

	_, err = Encode(eav.Slot{}, typed(eav.Complex))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDataType))

	_, err = Encode(eav.Slot{}, nil)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDataType))
}

// fixture builds a small tree: address (complex) with street and city, plus
// a root name attribute.
type fixture struct {
	tree    *visibility.Tree
	name    *eav.Attribute
	address *eav.Attribute
	street  *eav.Attribute
	city    *eav.Attribute
}

func newFixture() *fixture {
	f := &fixture{
		name:    &eav.Attribute{ID: 1, StringID: "first_name", Type: typed(eav.String), Flags: live},
		address: &eav.Attribute{ID: 2, StringID: "address", Type: typed(eav.Complex), Flags: live},
		street:  &eav.Attribute{ID: 3, StringID: "street", Type: typed(eav.String), ParentID: eav.Ptr(int64(2)), OrderNumber: 1, Flags: live},
		city:    &eav.Attribute{ID: 4, StringID: "city", Type: typed(eav.CodebookRef), ParentID: eav.Ptr(int64(2)), OrderNumber: 2, Flags: live},
	}
	f.city.Type.Codebook = &eav.Codebook{ID: 1, Flags: live}
	f.tree = visibility.NewTree([]*eav.Attribute{f.name, f.address, f.street, f.city})
	f.tree.Recompute()
	return f
}

func membership(id int64, flags eav.Flags) eav.Membership {
	return eav.Membership{
		ID:    id,
		Flags: flags,
		Collection: &eav.Collection{
			ID: id * 10, Name: "registry", Quality: 3, Flags: live,
			Source: &eav.Source{ID: 9, Name: "court", Quality: 5, Flags: live},
		},
	}
}

func TestDocument_NullVersusAbsent(t *testing.T) {
	f := newFixture()
	hiddenRow := &eav.AttributeValue{
		ID: 100, Attribute: f.name, Slot: eav.Slot{String: eav.Ptr("Ana")},
		Memberships: []eav.Membership{membership(1, eav.Flags{Published: true, Deleted: true})},
		Flags:       live,
	}
	vals := Index([]*eav.AttributeValue{hiddenRow})

	doc, err := Document{Variant: visibility.Live, Tree: f.tree}.Attributes([]*eav.Attribute{f.name, f.address}, vals)
	require.NoError(t, err)

	// No row at all: explicit null
	v, ok := doc["address"]
	assert.True(t, ok)
	assert.Nil(t, v)

	// Row exists but nothing backs it: no entry
	_, ok = doc["first_name"]
	assert.False(t, ok)

	// The all variant keeps it, with its status
	all, err := Document{Variant: visibility.All, Tree: f.tree}.Attributes([]*eav.Attribute{f.name}, vals)
	require.NoError(t, err)
	objs := all["first_name"].([]map[string]any)
	require.Len(t, objs, 1)
	assert.Equal(t, "Ana", objs[0]["value"])
	assert.Equal(t, true, objs[0]["deleted"])
	colls := objs[0]["collections"].([]map[string]any)
	require.Len(t, colls, 1)
	assert.Equal(t, true, colls[0]["deleted"])
}

func TestDocument_ComplexAndProvenance(t *testing.T) {
	f := newFixture()
	m := membership(1, live)
	addr := &eav.AttributeValue{ID: 200, Attribute: f.address, Memberships: []eav.Membership{m}, Flags: live}
	street := &eav.AttributeValue{
		ID: 201, Attribute: f.street, ParentValueID: eav.Ptr(int64(200)),
		Slot: eav.Slot{String: eav.Ptr("Ilica 1")}, Memberships: []eav.Membership{m}, Flags: live,
	}
	city := &eav.AttributeValue{
		ID: 202, Attribute: f.city, ParentValueID: eav.Ptr(int64(200)),
		Slot:        eav.Slot{CodebookValue: &eav.CodebookValue{ID: 5, Value: "Zagreb", Codebook: f.city.Type.Codebook, Flags: live}},
		Memberships: []eav.Membership{m}, Flags: live,
	}

	doc, err := Document{Variant: visibility.Live, Tree: f.tree}.Attributes([]*eav.Attribute{f.address}, Index([]*eav.AttributeValue{city, street, addr}))
	require.NoError(t, err)

	objs := doc["address"].([]map[string]any)
	require.Len(t, objs, 1)
	assert.Equal(t, int64(200), objs[0]["id"])
	_, hasStatus := objs[0]["published"]
	assert.False(t, hasStatus)

	sub := objs[0]["value"].(map[string]any)
	streets := sub["street"].([]map[string]any)
	assert.Equal(t, "Ilica 1", streets[0]["value"])
	cities := sub["city"].([]map[string]any)
	assert.Equal(t, "Zagreb", cities[0]["value"])
	assert.Equal(t, int64(5), cities[0]["value_id"])

	colls := streets[0]["collections"].([]map[string]any)
	require.Len(t, colls, 1)
	assert.Equal(t, int64(10), colls[0]["id"])
	assert.Equal(t, map[string]any{"id": int64(9), "name": "court", "quality": 5}, colls[0]["source"])
}

func TestDocument_InvisibleAttributeSkippedInLive(t *testing.T) {
	f := newFixture()
	f.name.Deleted = true
	f.tree.Recompute()

	doc, err := Document{Variant: visibility.Live, Tree: f.tree}.Attributes([]*eav.Attribute{f.name}, Index(nil))
	require.NoError(t, err)
	assert.Empty(t, doc)

	doc, err = Document{Variant: visibility.All, Tree: f.tree}.Attributes([]*eav.Attribute{f.name}, Index(nil))
	require.NoError(t, err)
	assert.Contains(t, doc, "first_name")
}

func TestDocument_UnsupportedTypeFailsBuild(t *testing.T) {
	bad := &eav.Attribute{ID: 9, StringID: "shape", Type: typed("polygon"), Flags: live}
	tree := visibility.NewTree([]*eav.Attribute{bad})
	tree.Recompute()
	row := &eav.AttributeValue{ID: 1, Attribute: bad, Memberships: []eav.Membership{membership(1, live)}, Flags: live}

	_, err := Document{Variant: visibility.All, Tree: tree}.Attributes([]*eav.Attribute{bad}, Index([]*eav.AttributeValue{row}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDataType))
}

func TestComplexNeedsTree(t *testing.T) {
	f := newFixture()
	addr := &eav.AttributeValue{ID: 200, Attribute: f.address, Memberships: []eav.Membership{membership(1, live)}, Flags: live}
	vals := Index([]*eav.AttributeValue{addr})

	_, err := Document{Variant: visibility.Live}.Attributes([]*eav.Attribute{f.address}, vals)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDataType))

	_, err = Flatten([]*eav.Attribute{f.address}, vals, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDataType))
}

func TestFlatten(t *testing.T) {
	f := newFixture()
	m := membership(1, live)
	rows := []*eav.AttributeValue{
		{ID: 1, Attribute: f.name, Slot: eav.Slot{String: eav.Ptr("Ana")}, Memberships: []eav.Membership{m}, Flags: live},
		{ID: 2, Attribute: f.name, Slot: eav.Slot{String: eav.Ptr("Marija")}, Memberships: []eav.Membership{m}, Flags: live},
		{ID: 3, Attribute: f.name, Slot: eav.Slot{String: eav.Ptr("hidden")}, Flags: live},
		{ID: 10, Attribute: f.address, Memberships: []eav.Membership{m}, Flags: live},
		{
			ID: 11, Attribute: f.city, ParentValueID: eav.Ptr(int64(10)), Memberships: []eav.Membership{m}, Flags: live,
			Slot: eav.Slot{CodebookValue: &eav.CodebookValue{ID: 5, Value: "Zagreb", Codebook: f.city.Type.Codebook, Flags: live}},
		},
	}

	props, err := Flatten([]*eav.Attribute{f.name, f.address}, Index(rows), f.tree)
	require.NoError(t, err)
	assert.Equal(t, []any{"Ana", "Marija"}, props["attr_first_name"])
	assert.Equal(t, []any{"Zagreb"}, props["attr_address__city"])
	assert.Equal(t, []any{int64(5)}, props["attr_address__city_id"])
	assert.NotContains(t, props, "attr_address__street")
}

func TestFlatten_RangesGeoAndCurrency(t *testing.T) {
	m := membership(1, live)
	price := &eav.Attribute{ID: 1, StringID: "price", Type: typed(eav.RangeFixedPoint), Flags: live}
	price.Type.FixedPointDecimalPlaces = 2
	spot := &eav.Attribute{ID: 2, StringID: "spot", Type: typed(eav.Geo), Flags: live}
	tree := visibility.NewTree([]*eav.Attribute{price, spot})
	tree.Recompute()

	rows := []*eav.AttributeValue{
		{ID: 1, Attribute: price, Memberships: []eav.Membership{m}, Flags: live, Slot: eav.Slot{
			RangeFixedFrom: eav.Ptr(int64(100)), RangeFixedTo: eav.Ptr(int64(250)), Currency: &eav.Currency{Code: "EUR"},
		}},
		{ID: 2, Attribute: spot, Memberships: []eav.Membership{m}, Flags: live, Slot: eav.Slot{GeoLat: eav.Ptr(1.0), GeoLon: eav.Ptr(2.0)}},
	}

	props, err := Flatten([]*eav.Attribute{price, spot}, Index(rows), tree)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, props["attr_price_from"])
	assert.Equal(t, []any{2.5}, props["attr_price_to"])
	assert.Equal(t, []any{"EUR"}, props["attr_price_currency"])
	assert.Equal(t, []any{1.0}, props["attr_spot_lat"])
	assert.Equal(t, []any{2.0}, props["attr_spot_lon"])
}
