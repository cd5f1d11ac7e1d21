package model

import (
	"sort"

	"github.com/pwa-modeller/overlay/internal/extref"
)

// Index maps canonical external keys to the model objects carrying
// them. It is rebuilt from scratch on every model change; buckets with
// more than one same-kind target indicate a model-side collision.
type Index struct {
	buckets map[string][]TargetRef
}

// BuildIndex scans every element and relationship once and indexes
// each object under the canonical key of each of its external refs.
// An object citing the same key twice appears once in that key's bucket.
func BuildIndex(m *Model) *Index {
	idx := &Index{buckets: make(map[string][]TargetRef)}
	if m == nil {
		return idx
	}

	for _, id := range sortedKeys(m.Elements) {
		idx.add(TargetRef{Kind: KindElement, ID: id}, m.Elements[id].ExternalIDs)
	}
	for _, id := range sortedKeys(m.Relationships) {
		idx.add(TargetRef{Kind: KindRelationship, ID: id}, m.Relationships[id].ExternalIDs)
	}
	return idx
}

func (idx *Index) add(ref TargetRef, ids []ExternalID) {
	parts := make([]extref.Parts, len(ids))
	for i, e := range ids {
		parts[i] = e.Parts()
	}
	for _, p := range extref.NormalizeParts(parts) {
		key := p.Key()
		if containsTarget(idx.buckets[key], ref) {
			continue
		}
		idx.buckets[key] = append(idx.buckets[key], ref)
	}
}

// Lookup returns every target indexed under key. The returned slice is
// shared; callers must not mutate it.
func (idx *Index) Lookup(key string) []TargetRef {
	return idx.buckets[key]
}

// Keys returns every indexed canonical key, sorted.
func (idx *Index) Keys() []string {
	keys := make([]string, 0, len(idx.buckets))
	for k := range idx.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of distinct indexed keys.
func (idx *Index) Len() int {
	return len(idx.buckets)
}

// Collision reports one external key claimed by more than one
// same-kind model object.
type Collision struct {
	Key     string      `json:"key"`
	Kind    Kind        `json:"kind"`
	Targets []TargetRef `json:"targets"`
}

// Collisions returns every model-side key collision, sorted by key for
// stable output. These are diagnostics about the primary model itself,
// independent of any overlay data.
func (idx *Index) Collisions() []Collision {
	var out []Collision
	for _, key := range idx.Keys() {
		byKind := map[Kind][]TargetRef{}
		for _, t := range idx.buckets[key] {
			byKind[t.Kind] = append(byKind[t.Kind], t)
		}
		for _, kind := range []Kind{KindElement, KindRelationship} {
			if targets := byKind[kind]; len(targets) > 1 {
				sorted := append([]TargetRef(nil), targets...)
				SortTargets(sorted)
				out = append(out, Collision{Key: key, Kind: kind, Targets: sorted})
			}
		}
	}
	return out
}

// SortTargets orders refs by (kind, id) for deterministic reporting.
func SortTargets(refs []TargetRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].ID < refs[j].ID
	})
}

func containsTarget(refs []TargetRef, ref TargetRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
