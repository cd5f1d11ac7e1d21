package overlay

import (
	"sort"

	"github.com/pwa-modeller/overlay/internal/model"
)

// OverlayNamespace marks synthesized tagged values as overlay-owned so
// consumers can distinguish them from core model data.
const OverlayNamespace = "overlay"

// Match states for Effective.OverlayMatch.
const (
	MatchNone     = "none"
	MatchSingle   = "single"
	MatchMultiple = "multiple"
)

// OverlayMatch reports which overlay entries contributed to one
// object's effective tags.
type OverlayMatch struct {
	State    string   `json:"state"`
	EntryIDs []string `json:"entryIds,omitempty"`
}

// Effective is the merged tag view of one model object: its core
// tagged values with overlay tags layered on top, overlay winning per
// key.
type Effective struct {
	Target                model.TargetRef     `json:"target"`
	EffectiveTaggedValues []model.TaggedValue `json:"effectiveTaggedValues"`
	OverlayTags           Tags                `json:"overlayTags"`
	OverlayMatch          OverlayMatch        `json:"overlayMatch"`
	OverriddenCoreKeys    []string            `json:"overriddenCoreKeys"`
}

// EffectiveTags computes the merged tag view for one model object.
// When several overlay entries attach to the object, their tag maps
// merge in entry-id order with later entries overwriting earlier ones
// key by key; the total order makes multi-entry merges reproducible
// without timestamps.
func EffectiveTags(m *model.Model, store *Store, target model.TargetRef) *Effective {
	eff := &Effective{
		Target:             target,
		OverlayTags:        Tags{},
		OverlayMatch:       OverlayMatch{State: MatchNone},
		OverriddenCoreKeys: []string{},
	}

	entryIDs := matchingEntryIDs(m, store, target)
	switch len(entryIDs) {
	case 0:
	case 1:
		eff.OverlayMatch = OverlayMatch{State: MatchSingle, EntryIDs: entryIDs}
	default:
		eff.OverlayMatch = OverlayMatch{State: MatchMultiple, EntryIDs: entryIDs}
	}

	for _, id := range entryIDs {
		entry, ok := store.Get(id)
		if !ok {
			continue
		}
		for k, v := range entry.Tags {
			eff.OverlayTags[k] = v
		}
	}

	core := m.TaggedValuesOf(target)
	overridden := make(map[string]struct{})
	for _, tv := range core {
		if _, hit := eff.OverlayTags[tv.Key]; hit {
			overridden[tv.Key] = struct{}{}
			continue
		}
		eff.EffectiveTaggedValues = append(eff.EffectiveTaggedValues, tv)
	}

	for _, key := range sortedTagKeys(eff.OverlayTags) {
		eff.EffectiveTaggedValues = append(eff.EffectiveTaggedValues, model.TaggedValue{
			Key:       key,
			Value:     eff.OverlayTags[key],
			Namespace: OverlayNamespace,
		})
	}

	for key := range overridden {
		eff.OverriddenCoreKeys = append(eff.OverriddenCoreKeys, key)
	}
	sort.Strings(eff.OverriddenCoreKeys)

	return eff
}

// matchingEntryIDs returns, sorted by entry id, every entry of the
// object's kind reachable from any of its external keys.
func matchingEntryIDs(m *model.Model, store *Store, target model.TargetRef) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, p := range m.ExternalRefs(target) {
		for _, id := range store.FindByExternalKey(p.Key()) {
			if _, dup := seen[id]; dup {
				continue
			}
			entry, ok := store.Get(id)
			if !ok || entry.Target.Kind != target.Kind {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedTagKeys(tags Tags) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
