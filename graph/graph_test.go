package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/visibility"
)

var live = eav.Flags{Published: true}

func backed() []eav.Membership {
	return []eav.Membership{{ID: 1, Flags: live, Collection: &eav.Collection{ID: 1, Flags: live, Source: &eav.Source{ID: 1, Flags: live}}}}
}

type fixture struct {
	tree   *visibility.Tree
	first  *eav.Attribute
	leName *eav.Attribute
	leType *eav.Attribute
}

func newFixture() *fixture {
	str := &eav.AttributeType{ID: 1, DataType: eav.String, Flags: live}
	cb := &eav.AttributeType{ID: 2, DataType: eav.CodebookRef, Codebook: &eav.Codebook{ID: 1, Flags: live}, Flags: live}
	f := &fixture{
		first:  &eav.Attribute{ID: 1, StringID: eav.AttrFirstName, Type: str, Flags: live},
		leName: &eav.Attribute{ID: 2, StringID: eav.AttrLegalEntityName, Type: str, Flags: live},
		leType: &eav.Attribute{ID: 3, StringID: eav.AttrLegalEntityType, Type: cb, Flags: live},
	}
	f.tree = visibility.NewTree([]*eav.Attribute{f.first, f.leName, f.leType})
	f.tree.Recompute()
	return f
}

func (f *fixture) leTypeValue(id, cvID int64) *eav.AttributeValue {
	return &eav.AttributeValue{
		ID: id, Attribute: f.leType, Memberships: backed(), Flags: live,
		Slot: eav.Slot{CodebookValue: &eav.CodebookValue{ID: cvID, Value: "type", Codebook: f.leType.Type.Codebook, Flags: live}},
	}
}

func TestBuildNode(t *testing.T) {
	f := newFixture()
	e := &eav.Entity{ID: 1, PublicID: "P-1", Type: eav.EntityTypeRef{ID: 1, Name: eav.Person}, Flags: live}
	vals := []*eav.AttributeValue{{ID: 1, Attribute: f.first, Slot: eav.Slot{String: eav.Ptr("Ana")}, Memberships: backed(), Flags: live}}

	n, err := BuildNode(NodeInput{Entity: e, Tree: f.tree, Values: vals, PEP: eav.Ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "P-1", n.Key)
	assert.Equal(t, "person", n.Props["type"])
	assert.Equal(t, true, n.Props["potentially_pep"])
	assert.Equal(t, true, n.Props["published"])
	assert.Equal(t, "Ana", n.Props["name"])
	assert.Equal(t, []any{"Ana"}, n.Props["attr_first_name"])

	for k, v := range n.Props {
		assert.NotNil(t, v, k)
		_, nested := v.(map[string]any)
		assert.False(t, nested, "property %s must be flat", k)
	}
}

func TestBuildNode_InvisibleEntityStillExists(t *testing.T) {
	f := newFixture()
	e := &eav.Entity{ID: 1, PublicID: "L-1", Type: eav.EntityTypeRef{ID: 2, Name: eav.LegalEntity}, Flags: eav.Flags{Deleted: true}}

	n, err := BuildNode(NodeInput{Entity: e, Tree: f.tree, Values: []*eav.AttributeValue{f.leTypeValue(1, 7), f.leTypeValue(2, 8)}})
	require.NoError(t, err)
	assert.Equal(t, true, n.Props["deleted"])
	assert.Equal(t, []int64{7, 8}, n.Props["legal_entity_type_ids"])
	assert.NotContains(t, n.Props, "potentially_pep")
}

func TestBuildEdge(t *testing.T) {
	f := newFixture()
	a := &eav.Entity{ID: 1, PublicID: "P-1", Type: eav.EntityTypeRef{ID: 1, Name: eav.Person}, Flags: live}
	b := &eav.Entity{ID: 2, PublicID: "L-2", Type: eav.EntityTypeRef{ID: 2, Name: eav.LegalEntity}, Flags: live}
	c := &eav.Connection{
		ID: 9, EntityA: a, EntityB: b, Flags: live, Memberships: backed(),
		Type:                &eav.ConnectionType{ID: 4, Name: "director", PotentiallyPEP: true, Category: &eav.Category{ID: 1, StringID: "business"}},
		TransactionAmount:   eav.Ptr(int64(990)),
		TransactionCurrency: &eav.Currency{Code: "EUR"},
	}

	e, err := BuildEdge(EdgeInput{
		Connection: c,
		Tree:       f.tree,
		A:          projection.Endpoint{PEP: eav.Ptr(false)},
		B:          projection.Endpoint{Values: []*eav.AttributeValue{f.leTypeValue(1, 7)}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), e.ID)
	assert.Equal(t, "P-1", e.From)
	assert.Equal(t, "L-2", e.To)
	assert.Equal(t, "business", e.Props["category"])
	assert.Equal(t, true, e.Props["potentially_pep_type"])
	assert.Equal(t, 9.9, e.Props["transaction_amount"])
	assert.Equal(t, "EUR", e.Props["transaction_currency"])
	assert.Equal(t, "P-1", e.Props["a_public_id"])
	assert.Equal(t, false, e.Props["a_potentially_pep"])
	assert.Equal(t, []int64{7}, e.Props["b_legal_entity_type_ids"])
	assert.NotContains(t, e.Props, "valid_from")

	c.Memberships = nil
	e, err = BuildEdge(EdgeInput{Connection: c, Tree: f.tree})
	require.NoError(t, err)
	assert.Equal(t, true, e.Props["deleted"])
	assert.Equal(t, false, e.Props["published"])
}

func TestBuildEdge_MissingEndpoint(t *testing.T) {
	_, err := BuildEdge(EdgeInput{Connection: &eav.Connection{ID: 1}, Tree: visibility.NewTree(nil)})
	require.Error(t, err)
}
