package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/source"
)

// Op is what happened to a source row.
type Op string

const (
	// OpSaved covers inserts and updates; the row exists when planned.
	OpSaved Op = "saved"
	// OpDeleting is raised while the row still exists, before its delete commits.
	OpDeleting Op = "deleting"
	// opDeleted marks a fan-out job carrying units captured by a Deletion.
	opDeleted Op = "deleted"
)

// Mutation is one change to the source of truth.
type Mutation struct {
	Model source.Model `json:"model"`
	ID    int64        `json:"id"`
	Op    Op           `json:"op"`
	// Fields names the changed columns; empty means unknown, treated as all.
	Fields []string `json:"fields,omitempty"`
}

// Validate checks the mutation names a known model and row.
func (m Mutation) Validate() error {
	if _, err := source.ParseModel(string(m.Model)); err != nil {
		return err
	}
	if m.ID <= 0 {
		return errors.NewInvalidRequestError("mutation of %s without id", m.Model)
	}
	switch m.Op {
	case OpSaved, OpDeleting:
		return nil
	default:
		return errors.NewInvalidRequestError("unknown mutation op %q", m.Op)
	}
}

func (m Mutation) String() string {
	return fmt.Sprintf("%s %s/%d", m.Op, m.Model, m.ID)
}

// dedupeKey keeps one queued fan-out per row and field set.
func (m Mutation) dedupeKey() string {
	fields := append([]string(nil), m.Fields...)
	sort.Strings(fields)
	return fmt.Sprintf("%s:%d:%s:%s", m.Model, m.ID, m.Op, strings.Join(fields, ","))
}

// flagModels are the models whose rows feed attribute derived flags.
var flagModels = map[source.Model]bool{
	source.ModelAttribute:     true,
	source.ModelAttributeType: true,
	source.ModelCollection:    true,
	source.ModelSource:        true,
	source.ModelCodebook:      true,
	source.ModelEntityType:    true,
}

// flagFields are the columns attribute derived flags depend on.
var flagFields = map[string]bool{
	"published":         true,
	"deleted":           true,
	"parent_id":         true,
	"attribute_type_id": true,
	"codebook_id":       true,
	"collection_id":     true,
	"source_id":         true,
	"entity_type_id":    true,
}

// touchesFlags reports whether the attribute tree must be re-derived.
func (m Mutation) touchesFlags() bool {
	if !flagModels[m.Model] {
		return false
	}
	if len(m.Fields) == 0 || m.Op != OpSaved {
		return true
	}
	for _, f := range m.Fields {
		if flagFields[f] {
			return true
		}
	}
	return false
}

// fanoutPayload is the payload of a fan-out job. Units and Collections are
// only set for deletions, captured while the row still existed.
type fanoutPayload struct {
	Mutation
	Units       []Unit  `json:"units,omitempty"`
	Collections []int64 `json:"collections,omitempty"`
}
