package orchestrator

import (
	"context"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/source"
	"github.com/teranos/prism/visibility"
)

// planner expands one mutation into the units it affects, following the
// fixed fan-out table below. Rows reached twice are expanded once.
type planner struct {
	src      *source.Reader
	deleting bool
	tree     *visibility.Tree

	units   []Unit
	seen    map[Unit]bool
	removed map[projection.Kind]map[int64]bool
	visited map[source.Model]map[int64]bool
}

func newPlanner(src *source.Reader, deleting bool) *planner {
	return &planner{
		src:      src,
		deleting: deleting,
		seen:     map[Unit]bool{},
		removed:  map[projection.Kind]map[int64]bool{},
		visited:  map[source.Model]map[int64]bool{},
	}
}

// Plan returns the units affected by m, removals first.
func Plan(ctx context.Context, src *source.Reader, m Mutation) ([]Unit, error) {
	ctx = source.WithCatalog(ctx)
	p := newPlanner(src, m.Op == OpDeleting)
	if err := p.plan(ctx, m.Model, m.ID); err != nil {
		return nil, errors.Wrapf(err, "failed to plan %s", m)
	}
	return p.result(), nil
}

func (p *planner) result() []Unit {
	var removes, saves []Unit
	for _, u := range p.units {
		if u.Remove {
			removes = append(removes, u)
		} else if !p.removed[u.Kind][u.ID] {
			saves = append(saves, u)
		}
	}
	return append(removes, saves...)
}

func (p *planner) add(u Unit) {
	if p.seen[u] {
		return
	}
	p.seen[u] = true
	p.units = append(p.units, u)
	if u.Remove {
		if p.removed[u.Kind] == nil {
			p.removed[u.Kind] = map[int64]bool{}
		}
		p.removed[u.Kind][u.ID] = true
	}
}

func (p *planner) save(kind projection.Kind, ids ...int64) {
	for _, id := range ids {
		p.add(Unit{Kind: kind, UnitPayload: UnitPayload{ID: id}})
	}
}

func (p *planner) remove(kind projection.Kind, ids ...int64) {
	for _, id := range ids {
		p.add(Unit{Kind: kind, UnitPayload: UnitPayload{ID: id, Remove: true}})
	}
}

// once reports whether model/id is expanded for the first time.
func (p *planner) once(model source.Model, id int64) bool {
	if p.visited[model] == nil {
		p.visited[model] = map[int64]bool{}
	}
	if p.visited[model][id] {
		return false
	}
	p.visited[model][id] = true
	return true
}

func (p *planner) related(ctx context.Context, from source.Model, id int64, to source.Model) ([]int64, error) {
	return p.src.Related(ctx, from, id, to)
}

// each expands every row of to related to from/id.
func (p *planner) each(ctx context.Context, from source.Model, id int64, to source.Model, expand func(context.Context, int64) error) error {
	ids, err := p.related(ctx, from, id, to)
	if err != nil {
		return err
	}
	for _, rid := range ids {
		if err := expand(ctx, rid); err != nil {
			return err
		}
	}
	return nil
}

func (p *planner) attributes(ctx context.Context) (*visibility.Tree, error) {
	if p.tree == nil {
		tree, err := p.src.AttributeTree(ctx)
		if err != nil {
			return nil, err
		}
		p.tree = tree
	}
	return p.tree, nil
}

// plan dispatches the root mutation. Only the root row is being deleted;
// everything reached from it is either cascaded (removed) or re-rendered.
func (p *planner) plan(ctx context.Context, model source.Model, id int64) error {
	if !p.deleting {
		return p.saved(ctx, model, id)
	}
	switch model {
	case source.ModelEntity:
		return p.deletingEntity(ctx, id)
	case source.ModelConnection:
		return p.deletingConnection(ctx, id)
	case source.ModelAttribute:
		return p.deletingAttribute(ctx, id)
	case source.ModelCollection:
		return p.deletingCollection(ctx, id)
	case source.ModelSource:
		return p.each(ctx, source.ModelSource, id, source.ModelCollection, p.deletingCollection)
	case source.ModelCodebook:
		if err := p.each(ctx, source.ModelCodebook, id, source.ModelCodebookValue, p.deletingCodebookValue); err != nil {
			return err
		}
		return p.each(ctx, source.ModelCodebook, id, source.ModelAttributeType, p.attributeType)
	case source.ModelCodebookValue:
		return p.deletingCodebookValue(ctx, id)
	case source.ModelConnectionType:
		p.remove(projection.KindConnectionType, id)
		return p.each(ctx, source.ModelConnectionType, id, source.ModelConnection, p.deletingConnection)
	case source.ModelChangeset:
		return p.deletingChangeset(ctx, id)
	case source.ModelAttributeValueChange:
		p.remove(projection.KindAttributeValueChange, id)
		return nil
	case source.ModelConnectionChange:
		p.remove(projection.KindConnectionChange, id)
		return nil
	default:
		// Memberships, values, types, categories and currencies leave their
		// dependents in place; those re-render without them.
		return p.saved(ctx, model, id)
	}
}

// saved expands a row that exists (or whose dependents outlive it).
func (p *planner) saved(ctx context.Context, model source.Model, id int64) error {
	switch model {
	case source.ModelEntity:
		return p.entity(ctx, id)
	case source.ModelConnection:
		return p.connection(ctx, id)
	case source.ModelAttribute:
		return p.attribute(ctx, id)
	case source.ModelAttributeType:
		return p.attributeType(ctx, id)
	case source.ModelAttributeValue:
		return p.value(ctx, id)
	case source.ModelValueMembership:
		return p.each(ctx, source.ModelValueMembership, id, source.ModelAttributeValue, p.value)
	case source.ModelConnectionMembership:
		return p.each(ctx, source.ModelConnectionMembership, id, source.ModelConnection, p.connection)
	case source.ModelCollection:
		return p.collection(ctx, id)
	case source.ModelSource:
		return p.each(ctx, source.ModelSource, id, source.ModelCollection, p.collection)
	case source.ModelCodebook:
		if err := p.each(ctx, source.ModelCodebook, id, source.ModelCodebookValue, p.codebookValue); err != nil {
			return err
		}
		return p.each(ctx, source.ModelCodebook, id, source.ModelAttributeType, p.attributeType)
	case source.ModelCodebookValue:
		return p.codebookValue(ctx, id)
	case source.ModelConnectionType:
		return p.connectionType(ctx, id)
	case source.ModelCategory:
		return p.category(ctx, id)
	case source.ModelCurrency:
		return p.currency(ctx, id)
	case source.ModelEntityType:
		return p.entityType(ctx, id)
	case source.ModelChangeType:
		return p.each(ctx, source.ModelChangeType, id, source.ModelChangeset, p.changeset)
	case source.ModelChangeset:
		return p.changeset(ctx, id)
	case source.ModelAttributeValueChange:
		p.save(projection.KindAttributeValueChange, id)
		return nil
	case source.ModelConnectionChange:
		p.save(projection.KindConnectionChange, id)
		return nil
	default:
		return errors.NewInvalidRequestError("no fan-out rule for %s", model)
	}
}

// entity re-renders the entity, its connections (endpoint copies), its
// neighbours (connection counts) and every person whose classification can
// depend on it.
func (p *planner) entity(ctx context.Context, id int64) error {
	if !p.once(source.ModelEntity, id) {
		return nil
	}
	p.save(projection.KindEntity, id)
	if err := p.connectionsOf(ctx, id, UnitPayload{}); err != nil {
		return err
	}
	neighbours, err := p.related(ctx, source.ModelEntity, id, source.ModelEntity)
	if err != nil {
		return err
	}
	p.save(projection.KindEntity, neighbours...)

	changes, err := p.related(ctx, source.ModelEntity, id, source.ModelAttributeValueChange)
	if err != nil {
		return err
	}
	p.save(projection.KindAttributeValueChange, changes...)

	return p.pepRadius(ctx, []int64{id}, 2, UnitPayload{})
}

func (p *planner) deletingEntity(ctx context.Context, id int64) error {
	p.remove(projection.KindEntity, id)
	conns, err := p.related(ctx, source.ModelEntity, id, source.ModelConnection)
	if err != nil {
		return err
	}
	p.remove(projection.KindConnection, conns...)
	for _, c := range conns {
		if err := p.cascadeConnectionChanges(ctx, c); err != nil {
			return err
		}
	}
	changes, err := p.related(ctx, source.ModelEntity, id, source.ModelAttributeValueChange)
	if err != nil {
		return err
	}
	p.remove(projection.KindAttributeValueChange, changes...)

	excl := UnitPayload{ExcludeEntityID: id}
	neighbours, err := p.related(ctx, source.ModelEntity, id, source.ModelEntity)
	if err != nil {
		return err
	}
	for _, n := range neighbours {
		p.add(Unit{Kind: projection.KindEntity, UnitPayload: withID(excl, n)})
	}
	return p.pepRadius(ctx, []int64{id}, 2, excl)
}

// connection re-renders the connection, its change rows, both endpoints and
// persons within one hop of either endpoint.
func (p *planner) connection(ctx context.Context, id int64) error {
	if !p.once(source.ModelConnection, id) {
		return nil
	}
	p.save(projection.KindConnection, id)
	if err := p.connectionChanges(ctx, id, false); err != nil {
		return err
	}
	ends, err := p.related(ctx, source.ModelConnection, id, source.ModelEntity)
	if err != nil {
		return err
	}
	p.save(projection.KindEntity, ends...)
	return p.pepRadius(ctx, ends, 1, UnitPayload{})
}

func (p *planner) deletingConnection(ctx context.Context, id int64) error {
	p.remove(projection.KindConnection, id)
	if err := p.cascadeConnectionChanges(ctx, id); err != nil {
		return err
	}
	ends, err := p.related(ctx, source.ModelConnection, id, source.ModelEntity)
	if err != nil {
		return err
	}
	excl := UnitPayload{ExcludeConnectionID: id}
	for _, e := range ends {
		p.add(Unit{Kind: projection.KindEntity, UnitPayload: withID(excl, e)})
	}
	return p.pepRadius(ctx, ends, 1, excl)
}

func (p *planner) connectionChanges(ctx context.Context, id int64, remove bool) error {
	for _, target := range []struct {
		model source.Model
		kind  projection.Kind
	}{
		{source.ModelAttributeValueChange, projection.KindAttributeValueChange},
		{source.ModelConnectionChange, projection.KindConnectionChange},
	} {
		ids, err := p.related(ctx, source.ModelConnection, id, target.model)
		if err != nil {
			return err
		}
		if remove {
			p.remove(target.kind, ids...)
		} else {
			p.save(target.kind, ids...)
		}
	}
	return nil
}

func (p *planner) cascadeConnectionChanges(ctx context.Context, id int64) error {
	return p.connectionChanges(ctx, id, true)
}

// connectionsOf re-renders every connection of entityID with the given exclusions.
func (p *planner) connectionsOf(ctx context.Context, entityID int64, excl UnitPayload) error {
	conns, err := p.related(ctx, source.ModelEntity, entityID, source.ModelConnection)
	if err != nil {
		return err
	}
	for _, c := range conns {
		if c == excl.ExcludeConnectionID {
			continue
		}
		p.add(Unit{Kind: projection.KindConnection, UnitPayload: withID(excl, c)})
	}
	return nil
}

// pepRadius re-renders every person within depth hops of centers, and their
// connections, since classification looks two hops out and endpoint copies
// carry it.
func (p *planner) pepRadius(ctx context.Context, centers []int64, depth int, excl UnitPayload) error {
	reach := map[int64]bool{}
	var ordered []int64
	frontier := centers
	for _, c := range centers {
		if !reach[c] {
			reach[c] = true
			ordered = append(ordered, c)
		}
	}
	for hop := 0; hop < depth; hop++ {
		var next []int64
		for _, id := range frontier {
			ns, err := p.related(ctx, source.ModelEntity, id, source.ModelEntity)
			if err != nil {
				return err
			}
			for _, n := range ns {
				if !reach[n] {
					reach[n] = true
					ordered = append(ordered, n)
					next = append(next, n)
				}
			}
		}
		frontier = next
	}

	persons, err := p.src.Persons(ctx, ordered)
	if err != nil {
		return err
	}
	for _, id := range persons {
		if id == excl.ExcludeEntityID {
			continue
		}
		p.add(Unit{Kind: projection.KindEntity, UnitPayload: withID(excl, id)})
		if err := p.connectionsOf(ctx, id, excl); err != nil {
			return err
		}
	}
	return nil
}

// attribute re-renders the definitions of the attribute's subtree and its
// ancestors (which nest it), and every record carrying values of the subtree.
func (p *planner) attribute(ctx context.Context, id int64) error {
	if !p.once(source.ModelAttribute, id) {
		return nil
	}
	tree, err := p.attributes(ctx)
	if err != nil {
		return err
	}
	subtree := tree.Subtree(id)
	if len(subtree) == 0 {
		subtree = []int64{id}
	}
	p.save(projection.KindAttribute, tree.Ancestors(id)...)
	p.save(projection.KindAttribute, subtree...)
	return p.attributeHolders(ctx, subtree, false)
}

func (p *planner) deletingAttribute(ctx context.Context, id int64) error {
	tree, err := p.attributes(ctx)
	if err != nil {
		return err
	}
	subtree := tree.Subtree(id)
	if len(subtree) == 0 {
		subtree = []int64{id}
	}
	p.remove(projection.KindAttribute, subtree...)
	p.save(projection.KindAttribute, tree.Ancestors(id)...)
	return p.attributeHolders(ctx, subtree, true)
}

// attributeHolders re-renders entities and connections holding values of
// attrs. Change rows cascade with the attribute when it is deleted.
func (p *planner) attributeHolders(ctx context.Context, attrs []int64, cascade bool) error {
	for _, a := range attrs {
		entities, err := p.related(ctx, source.ModelAttribute, a, source.ModelEntity)
		if err != nil {
			return err
		}
		for _, e := range entities {
			p.save(projection.KindEntity, e)
			// Names and legal-entity types are copied onto connections
			if err := p.connectionsOf(ctx, e, UnitPayload{}); err != nil {
				return err
			}
		}
		conns, err := p.related(ctx, source.ModelAttribute, a, source.ModelConnection)
		if err != nil {
			return err
		}
		p.save(projection.KindConnection, conns...)

		changes, err := p.related(ctx, source.ModelAttribute, a, source.ModelAttributeValueChange)
		if err != nil {
			return err
		}
		if cascade {
			p.remove(projection.KindAttributeValueChange, changes...)
		} else {
			p.save(projection.KindAttributeValueChange, changes...)
		}
	}
	return nil
}

func (p *planner) attributeType(ctx context.Context, id int64) error {
	if !p.once(source.ModelAttributeType, id) {
		return nil
	}
	return p.each(ctx, source.ModelAttributeType, id, source.ModelAttribute, p.attribute)
}

// value re-renders the owner of one attribute value and its change rows.
func (p *planner) value(ctx context.Context, id int64) error {
	if !p.once(source.ModelAttributeValue, id) {
		return nil
	}
	entities, err := p.related(ctx, source.ModelAttributeValue, id, source.ModelEntity)
	if err != nil {
		return err
	}
	for _, e := range entities {
		p.save(projection.KindEntity, e)
		if err := p.connectionsOf(ctx, e, UnitPayload{}); err != nil {
			return err
		}
	}
	conns, err := p.related(ctx, source.ModelAttributeValue, id, source.ModelConnection)
	if err != nil {
		return err
	}
	p.save(projection.KindConnection, conns...)

	changes, err := p.related(ctx, source.ModelAttributeValue, id, source.ModelAttributeValueChange)
	if err != nil {
		return err
	}
	p.save(projection.KindAttributeValueChange, changes...)
	return nil
}

// collection re-renders everything the collection backs.
func (p *planner) collection(ctx context.Context, id int64) error {
	if !p.once(source.ModelCollection, id) {
		return nil
	}
	if err := p.each(ctx, source.ModelCollection, id, source.ModelAttribute, p.attribute); err != nil {
		return err
	}
	if err := p.each(ctx, source.ModelCollection, id, source.ModelAttributeValue, p.value); err != nil {
		return err
	}
	if err := p.each(ctx, source.ModelCollection, id, source.ModelConnection, p.connection); err != nil {
		return err
	}
	return p.each(ctx, source.ModelCollection, id, source.ModelChangeset, p.changeset)
}

// deletingCollection removes what cascades with the collection (owned
// attributes and changesets) and re-renders values and connections that
// lose a membership.
func (p *planner) deletingCollection(ctx context.Context, id int64) error {
	if !p.once(source.ModelCollection, id) {
		return nil
	}
	if err := p.each(ctx, source.ModelCollection, id, source.ModelAttribute, p.deletingAttribute); err != nil {
		return err
	}
	if err := p.each(ctx, source.ModelCollection, id, source.ModelChangeset, p.deletingChangeset); err != nil {
		return err
	}
	if err := p.each(ctx, source.ModelCollection, id, source.ModelAttributeValue, p.value); err != nil {
		return err
	}
	return p.each(ctx, source.ModelCollection, id, source.ModelConnection, p.connection)
}

func (p *planner) codebookValue(ctx context.Context, id int64) error {
	if !p.once(source.ModelCodebookValue, id) {
		return nil
	}
	p.save(projection.KindCodebookValue, id)
	return p.codebookValueHolders(ctx, id)
}

func (p *planner) deletingCodebookValue(ctx context.Context, id int64) error {
	if !p.once(source.ModelCodebookValue, id) {
		return nil
	}
	p.remove(projection.KindCodebookValue, id)
	return p.codebookValueHolders(ctx, id)
}

func (p *planner) codebookValueHolders(ctx context.Context, id int64) error {
	if err := p.each(ctx, source.ModelCodebookValue, id, source.ModelAttributeValue, p.value); err != nil {
		return err
	}
	changes, err := p.related(ctx, source.ModelCodebookValue, id, source.ModelAttributeValueChange)
	if err != nil {
		return err
	}
	p.save(projection.KindAttributeValueChange, changes...)
	return nil
}

func (p *planner) connectionType(ctx context.Context, id int64) error {
	if !p.once(source.ModelConnectionType, id) {
		return nil
	}
	p.save(projection.KindConnectionType, id)
	return p.each(ctx, source.ModelConnectionType, id, source.ModelConnection, p.connection)
}

func (p *planner) category(ctx context.Context, id int64) error {
	if err := p.each(ctx, source.ModelCategory, id, source.ModelConnectionType, p.connectionType); err != nil {
		return err
	}
	// Count fields are named after the category
	entities, err := p.related(ctx, source.ModelCategory, id, source.ModelEntity)
	if err != nil {
		return err
	}
	p.save(projection.KindEntity, entities...)
	return nil
}

func (p *planner) currency(ctx context.Context, id int64) error {
	if err := p.each(ctx, source.ModelCurrency, id, source.ModelAttributeValue, p.value); err != nil {
		return err
	}
	for _, target := range []struct {
		model source.Model
		kind  projection.Kind
	}{
		{source.ModelAttributeValueChange, projection.KindAttributeValueChange},
		{source.ModelConnection, projection.KindConnection},
		{source.ModelConnectionChange, projection.KindConnectionChange},
	} {
		ids, err := p.related(ctx, source.ModelCurrency, id, target.model)
		if err != nil {
			return err
		}
		p.save(target.kind, ids...)
	}
	return nil
}

func (p *planner) entityType(ctx context.Context, id int64) error {
	entities, err := p.related(ctx, source.ModelEntityType, id, source.ModelEntity)
	if err != nil {
		return err
	}
	for _, e := range entities {
		p.save(projection.KindEntity, e)
		if err := p.connectionsOf(ctx, e, UnitPayload{}); err != nil {
			return err
		}
	}
	return p.each(ctx, source.ModelEntityType, id, source.ModelAttribute, p.attribute)
}

func (p *planner) changeset(ctx context.Context, id int64) error {
	if !p.once(source.ModelChangeset, id) {
		return nil
	}
	return p.changesetRows(ctx, id, false)
}

func (p *planner) deletingChangeset(ctx context.Context, id int64) error {
	if !p.once(source.ModelChangeset, id) {
		return nil
	}
	return p.changesetRows(ctx, id, true)
}

func (p *planner) changesetRows(ctx context.Context, id int64, remove bool) error {
	for _, target := range []struct {
		model source.Model
		kind  projection.Kind
	}{
		{source.ModelAttributeValueChange, projection.KindAttributeValueChange},
		{source.ModelConnectionChange, projection.KindConnectionChange},
	} {
		ids, err := p.related(ctx, source.ModelChangeset, id, target.model)
		if err != nil {
			return err
		}
		if remove {
			p.remove(target.kind, ids...)
		} else {
			p.save(target.kind, ids...)
		}
	}
	return nil
}

func withID(p UnitPayload, id int64) UnitPayload {
	p.ID = id
	return p
}
