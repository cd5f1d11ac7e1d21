package overlay

import (
	"errors"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
)

// Rebind failure modes.
var (
	ErrEntryNotFound       = errors.New("entry not found")
	ErrTargetNotFound      = errors.New("target not found")
	ErrTargetHasNoExternal = errors.New("target has no external ids")
)

// RebindOptions controls Rebind behavior.
type RebindOptions struct {
	// PreferUniqueRefs keeps only the refs whose key resolves to the
	// chosen target alone, when any exist. Those refs cannot later
	// become ambiguous, which is the whole point of a manual repair.
	PreferUniqueRefs bool
}

// RebindResult reports what Rebind wrote into the entry.
type RebindResult struct {
	EntryID     string          `json:"entryId"`
	Target      model.TargetRef `json:"target"`
	Refs        []extref.Parts  `json:"refs"`
	UsedUnique  bool            `json:"usedUnique"`
	DroppedRefs int             `json:"droppedRefs"`
}

// Rebind repoints an entry at a user-chosen model target, replacing
// its external refs with refs derived from that target.
func Rebind(store *Store, m *model.Model, idx *model.Index, entryID string, target model.TargetRef, opts RebindOptions) (*RebindResult, error) {
	entry, ok := store.Get(entryID)
	if !ok {
		return nil, ErrEntryNotFound
	}
	if !m.Has(target) {
		return nil, ErrTargetNotFound
	}

	refs := m.ExternalRefs(target)
	if len(refs) == 0 {
		return nil, ErrTargetHasNoExternal
	}

	chosen := refs
	usedUnique := false
	if opts.PreferUniqueRefs {
		if unique := uniqueRefsFor(refs, target, idx); len(unique) > 0 {
			chosen = unique
			usedUnique = true
		}
	}

	wire := make([]extref.Ref, len(chosen))
	for i, p := range chosen {
		wire[i] = p.Ref()
	}
	store.Upsert(UpsertInput{
		EntryID: entry.EntryID,
		Kind:    target.Kind,
		Refs:    wire,
	})

	return &RebindResult{
		EntryID:     entry.EntryID,
		Target:      target,
		Refs:        chosen,
		UsedUnique:  usedUnique,
		DroppedRefs: len(refs) - len(chosen),
	}, nil
}

// uniqueRefsFor filters refs down to those whose canonical key maps to
// only the given target in the model index.
func uniqueRefsFor(refs []extref.Parts, target model.TargetRef, idx *model.Index) []extref.Parts {
	var out []extref.Parts
	for _, p := range refs {
		bucket := idx.Lookup(p.Key())
		if len(bucket) == 1 && bucket[0] == target {
			out = append(out, p)
		}
	}
	return out
}
