package queue

import (
	"github.com/mschirtzinger/famtasks/internal/model"
)

// Entry pairs a persisted envelope with its decoded operation.
type Entry struct {
	Pending model.PendingOperation
	Op      Operation
}

// Decoded decodes every pending operation. Envelopes that cannot be decoded
// are returned separately with their decode errors so the caller can drop them.
func Decoded(ops []model.PendingOperation) (entries []Entry, invalid map[string]error) {
	for _, p := range ops {
		op, err := Decode(p)
		if err != nil {
			if invalid == nil {
				invalid = make(map[string]error)
			}
			invalid[p.ID] = err
			continue
		}
		entries = append(entries, Entry{Pending: p, Op: op})
	}
	return entries, invalid
}

type entityKey struct {
	collection model.Collection
	id         string
}

// Partition splits entries into batchable creates/updates and sequential
// operations, preserving queue order within each.
//
// Deletes are sequential, as is every later operation on an entity that
// an earlier delete touched, so a delete never races a subsequent
// re-create of the same id. Batchable entries run before sequential ones.
func Partition(entries []Entry) (batchable, sequential []Entry) {
	deleted := make(map[entityKey]bool)
	for _, e := range entries {
		key := entityKey{e.Op.Collection(), e.Op.EntityID()}
		if e.Op.Kind() == model.OpDelete {
			deleted[key] = true
			sequential = append(sequential, e)
			continue
		}
		if deleted[key] {
			sequential = append(sequential, e)
			continue
		}
		batchable = append(batchable, e)
	}
	return batchable, sequential
}

// Group is a run of batchable entries sharing a collection and kind.
type Group struct {
	Collection model.Collection
	Kind       model.OpType
	Entries    []Entry
}

// GroupBatchable groups entries by (collection, kind) in order of first
// appearance. An entry is never placed in a group that runs before a group
// holding an earlier entry for the same entity; such entries open a new
// group instead, so per-entity order is preserved.
func GroupBatchable(entries []Entry) []Group {
	type groupKey struct {
		collection model.Collection
		kind       model.OpType
	}

	var groups []Group
	latest := make(map[groupKey]int)
	lastSeen := make(map[entityKey]int)

	for _, e := range entries {
		gk := groupKey{e.Op.Collection(), e.Op.Kind()}
		ek := entityKey{e.Op.Collection(), e.Op.EntityID()}

		gi, ok := latest[gk]
		if prev, seen := lastSeen[ek]; ok && seen && prev > gi {
			ok = false
		}
		if !ok {
			groups = append(groups, Group{Collection: gk.collection, Kind: gk.kind})
			gi = len(groups) - 1
			latest[gk] = gi
		}
		groups[gi].Entries = append(groups[gi].Entries, e)
		lastSeen[ek] = gi
	}
	return groups
}
