package counts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/visibility"
)

var (
	live     = eav.Flags{Published: true}
	family   = &eav.Category{ID: 1, StringID: "family", Flags: live}
	business = &eav.Category{ID: 2, StringID: "business", Flags: live}
	all      = []*eav.Category{family, business}
)

func ent(id int64) *eav.Entity {
	return &eav.Entity{ID: id, Type: eav.EntityTypeRef{Name: eav.Person}, Flags: live}
}

func conn(id int64, a, b *eav.Entity, cat *eav.Category, visible bool) *eav.Connection {
	c := &eav.Connection{
		ID: id, EntityA: a, EntityB: b, Flags: live,
		Type: &eav.ConnectionType{ID: id, Category: cat, Flags: live},
	}
	if visible {
		c.Memberships = []eav.Membership{{ID: 1, Flags: live, Collection: &eav.Collection{ID: 1, Flags: live, Source: &eav.Source{ID: 1, Flags: live}}}}
	}
	return c
}

func TestCount_ExcludeConnection(t *testing.T) {
	e, x, y := ent(1), ent(2), ent(3)
	conns := []*eav.Connection{conn(10, e, x, family, true), conn(11, y, e, family, true)}

	assert.Equal(t, map[string]int{"family": 2, "business": 0}, Count(1, all, conns, Options{}))
	assert.Equal(t, 1, Count(1, all, conns, Options{ExcludeConnectionID: 10})["family"])
	assert.Equal(t, 1, Count(1, all, conns, Options{ExcludeEntityID: 3})["family"])
}

func TestCount_VisibleOnly(t *testing.T) {
	e, x := ent(1), ent(2)
	conns := []*eav.Connection{conn(10, e, x, business, true), conn(11, e, x, business, false)}

	assert.Equal(t, 2, Count(1, all, conns, Variant(visibility.All, Options{}))["business"])
	assert.Equal(t, 1, Count(1, all, conns, Variant(visibility.Live, Options{}))["business"])
}

func TestCount_SelfLoopAndDuplicates(t *testing.T) {
	e := ent(1)
	loop := conn(10, e, e, family, true)

	assert.Equal(t, 2, Count(1, all, []*eav.Connection{loop, loop}, Options{})["family"])
}

func TestCount_IgnoresUntypedAndUnknownCategories(t *testing.T) {
	e, x := ent(1), ent(2)
	untyped := &eav.Connection{ID: 10, EntityA: e, EntityB: x}
	foreign := conn(11, e, x, &eav.Category{ID: 99, StringID: "other"}, true)

	got := Count(1, all, []*eav.Connection{untyped, foreign}, Options{})
	assert.Equal(t, map[string]int{"family": 0, "business": 0}, got)
}

func TestFields(t *testing.T) {
	assert.Equal(t, map[string]any{"connection_count_family": 3}, Fields(map[string]int{"family": 3}))
}
