package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/pulse/async"
)

// Target stores. Each has its own queue so one store's backlog never blocks the other.
const (
	StoreSearch = "search"
	StoreGraph  = "graph"
)

// HandlerFanout plans and enqueues the units of one mutation.
const HandlerFanout = "fanout"

// UnitPayload is the whole payload of a unit job. Handlers re-read everything
// else from the source when they run.
type UnitPayload struct {
	ID                  int64 `json:"id"`
	ExcludeEntityID     int64 `json:"exclude_entity_id,omitempty"`
	ExcludeConnectionID int64 `json:"exclude_connection_id,omitempty"`
	Remove              bool  `json:"remove,omitempty"`
	// Settle counts how often the unit waited for its delete to commit.
	Settle int `json:"settle,omitempty"`
}

// Key identifies the payload for enqueue dedupe. Settle is not part of it.
func (p UnitPayload) Key() string {
	return fmt.Sprintf("%d:%d:%d:%t", p.ID, p.ExcludeEntityID, p.ExcludeConnectionID, p.Remove)
}

func decodeUnit(job *async.Job) (UnitPayload, error) {
	var p UnitPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, errors.NewInvalidRequestError("malformed unit payload for %s: %v", job.HandlerName, err)
	}
	if p.ID <= 0 {
		return p, errors.NewInvalidRequestError("unit payload for %s without id", job.HandlerName)
	}
	return p, nil
}

// fromDeletion reports whether the unit was planned for a delete.
func (p UnitPayload) fromDeletion() bool {
	return p.Remove || p.ExcludeEntityID != 0 || p.ExcludeConnectionID != 0
}

// Unit is one projected document (or node/edge) to recompute or remove.
type Unit struct {
	Kind projection.Kind `json:"kind"`
	UnitPayload
}

func (u Unit) String() string {
	if u.Remove {
		return fmt.Sprintf("-%s/%d", u.Kind, u.ID)
	}
	return fmt.Sprintf("%s/%d", u.Kind, u.ID)
}

// HandlerName names the job handler applying kind to store.
func HandlerName(store string, kind projection.Kind) string {
	return store + "." + string(kind)
}

// storeKinds lists the kinds each store holds.
var storeKinds = map[string][]projection.Kind{
	StoreSearch: projection.Kinds,
	StoreGraph:  {projection.KindEntity, projection.KindConnection},
}

func storeHolds(store string, kind projection.Kind) bool {
	for _, k := range storeKinds[store] {
		if k == kind {
			return true
		}
	}
	return false
}

func storeQueue(store string) string {
	if store == StoreGraph {
		return async.QueueGraph
	}
	return async.QueueSearch
}
