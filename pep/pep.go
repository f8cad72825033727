// Package pep classifies person entities as potentially exposed persons.
//
// The classification is a fixed pattern over at most two hops of visible
// connections. Rules form an unordered disjunction: evaluation order only
// changes which rule is reported, never the boolean. Nothing is memoized
// between calls; each call reads current connections.
package pep

import (
	"context"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// ConnectionSource lists an entity's connections in both directions, with
// endpoints, type and memberships loaded.
type ConnectionSource interface {
	ConnectionsOf(ctx context.Context, entityID int64) ([]*eav.Connection, error)
}

// Rule identifies one classification pattern.
type Rule int

const (
	// RuleNone means no rule matched.
	RuleNone Rule = iota
	// RuleForced: force_pep on the entity itself.
	RuleForced
	// RuleFlaggedLegalEntity: a potentially-pep typed connection to a legal
	// entity with linked_potentially_pep.
	RuleFlaggedLegalEntity
	// RuleForcedNeighbor: any connection to an entity with force_pep.
	RuleForcedNeighbor
	// RuleFlaggedLegalEntityTwoHop: a potentially-pep typed hop to B, where B
	// matches RuleFlaggedLegalEntity.
	RuleFlaggedLegalEntityTwoHop
	// RuleForcedTwoHop: any hop to B, where B matches RuleForcedNeighbor.
	RuleForcedTwoHop
)

// DefaultOrder is the evaluation order used by Classify.
var DefaultOrder = []Rule{
	RuleForced,
	RuleFlaggedLegalEntity,
	RuleForcedNeighbor,
	RuleFlaggedLegalEntityTwoHop,
	RuleForcedTwoHop,
}

func (r Rule) String() string {
	switch r {
	case RuleForced:
		return "forced"
	case RuleFlaggedLegalEntity:
		return "flagged_legal_entity"
	case RuleForcedNeighbor:
		return "forced_neighbor"
	case RuleFlaggedLegalEntityTwoHop:
		return "flagged_legal_entity_two_hop"
	case RuleForcedTwoHop:
		return "forced_two_hop"
	default:
		return "none"
	}
}

// Options exclude one connection or one neighbor, as if already removed.
type Options struct {
	ExcludeConnectionID int64
	ExcludeEntityID     int64
}

// Evaluator classifies entities against current connections.
type Evaluator struct {
	conns ConnectionSource
	order []Rule
}

// New creates an evaluator using DefaultOrder.
func New(conns ConnectionSource) *Evaluator {
	return &Evaluator{conns: conns, order: DefaultOrder}
}

// WithOrder returns a copy evaluating rules in the given order.
func (e *Evaluator) WithOrder(order ...Rule) *Evaluator {
	return &Evaluator{conns: e.conns, order: append([]Rule(nil), order...)}
}

// Classify returns the flag for a person, or nil for any other entity type.
func (e *Evaluator) Classify(ctx context.Context, ent *eav.Entity, opts Options) (*bool, error) {
	if !ent.IsPerson() {
		return nil, nil
	}
	rule, err := e.Explain(ctx, ent, opts)
	if err != nil {
		return nil, err
	}
	flag := rule != RuleNone
	return &flag, nil
}

// Explain returns the first matching rule in evaluation order, or RuleNone.
// Non-person entities always yield RuleNone.
func (e *Evaluator) Explain(ctx context.Context, ent *eav.Entity, opts Options) (Rule, error) {
	if !ent.IsPerson() {
		return RuleNone, nil
	}
	p := &pass{conns: e.conns, opts: opts, links: map[int64][]link{}}
	for _, rule := range e.order {
		ok, err := p.match(ctx, rule, ent)
		if err != nil {
			return RuleNone, errors.Wrapf(err, "pep rule %s for entity %d", rule, ent.ID)
		}
		if ok {
			return rule, nil
		}
	}
	return RuleNone, nil
}

// link is one visible connection seen from one side.
type link struct {
	typedPEP bool
	other    *eav.Entity
}

// pass holds neighbor lists read during one Explain call only.
type pass struct {
	conns ConnectionSource
	opts  Options
	links map[int64][]link
}

func (p *pass) neighbors(ctx context.Context, entityID int64) ([]link, error) {
	if l, ok := p.links[entityID]; ok {
		return l, nil
	}
	conns, err := p.conns.ConnectionsOf(ctx, entityID)
	if err != nil {
		return nil, err
	}
	var out []link
	for _, c := range conns {
		if c == nil || c.ID == p.opts.ExcludeConnectionID || !c.Touches(entityID) {
			continue
		}
		if !visibility.Connection(c).Visible() {
			continue
		}
		other := c.Other(entityID)
		if other == nil || (p.opts.ExcludeEntityID != 0 && other.ID == p.opts.ExcludeEntityID) {
			continue
		}
		out = append(out, link{typedPEP: c.Type != nil && c.Type.PotentiallyPEP, other: other})
	}
	p.links[entityID] = out
	return out, nil
}

func (p *pass) match(ctx context.Context, rule Rule, ent *eav.Entity) (bool, error) {
	switch rule {
	case RuleForced:
		return ent.ForcePEP, nil
	case RuleFlaggedLegalEntity:
		return p.flaggedLegalEntity(ctx, ent.ID)
	case RuleForcedNeighbor:
		return p.forcedNeighbor(ctx, ent.ID)
	case RuleFlaggedLegalEntityTwoHop:
		return p.viaNeighbor(ctx, ent.ID, true, p.flaggedLegalEntity)
	case RuleForcedTwoHop:
		return p.viaNeighbor(ctx, ent.ID, false, p.forcedNeighbor)
	default:
		return false, errors.Newf("unknown rule %d", int(rule))
	}
}

func (p *pass) flaggedLegalEntity(ctx context.Context, entityID int64) (bool, error) {
	links, err := p.neighbors(ctx, entityID)
	if err != nil {
		return false, err
	}
	for _, l := range links {
		if l.typedPEP && l.other.Type.Name == eav.LegalEntity && l.other.LinkedPotentiallyPEP {
			return true, nil
		}
	}
	return false, nil
}

func (p *pass) forcedNeighbor(ctx context.Context, entityID int64) (bool, error) {
	links, err := p.neighbors(ctx, entityID)
	if err != nil {
		return false, err
	}
	for _, l := range links {
		if l.other.ForcePEP {
			return true, nil
		}
	}
	return false, nil
}

// viaNeighbor applies a one-hop predicate from each neighbor of entityID.
// The predicate never expands further, so the search stops at two hops.
func (p *pass) viaNeighbor(ctx context.Context, entityID int64, typedOnly bool, pred func(context.Context, int64) (bool, error)) (bool, error) {
	links, err := p.neighbors(ctx, entityID)
	if err != nil {
		return false, err
	}
	for _, l := range links {
		if typedOnly && !l.typedPEP {
			continue
		}
		if l.other.ID == entityID {
			continue
		}
		ok, err := pred(ctx, l.other.ID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
