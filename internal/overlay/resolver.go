package overlay

import (
	"github.com/pwa-modeller/overlay/internal/model"
)

// Resolution states for one entry against the current model.
const (
	StateAttached  = "attached"
	StateOrphan    = "orphan"
	StateAmbiguous = "ambiguous"
)

// Attachment records an entry that resolved to exactly one target,
// including which of its keys matched, for auditability.
type Attachment struct {
	EntryID     string          `json:"entryId"`
	Target      model.TargetRef `json:"target"`
	MatchedKeys []string        `json:"matchedKeys"`
}

// Orphan records an entry none of whose keys matched anything.
type Orphan struct {
	EntryID   string   `json:"entryId"`
	TriedKeys []string `json:"triedKeys"`
}

// Ambiguity records an entry whose keys matched more than one distinct
// same-kind target. The tool never guesses between them; candidates
// are reported sorted by (kind, id).
type Ambiguity struct {
	EntryID    string            `json:"entryId"`
	Candidates []model.TargetRef `json:"candidates"`
}

// Counts summarises a resolution.
type Counts struct {
	Attached  int `json:"attached"`
	Orphan    int `json:"orphan"`
	Ambiguous int `json:"ambiguous"`
	Total     int `json:"total"`
}

// Resolution classifies every overlay entry as attached, orphan, or
// ambiguous. Exactly one classification holds per entry, so
// Attached+Orphan+Ambiguous always equals Total.
type Resolution struct {
	Attached  []Attachment `json:"attached"`
	Orphan    []Orphan     `json:"orphan"`
	Ambiguous []Ambiguity  `json:"ambiguous"`
	Counts    Counts       `json:"counts"`
}

// Resolve classifies entries against the model index. Any single
// matching ref is enough to attach an entry, but two distinct matching
// targets of the entry's kind make it ambiguous rather than letting
// the resolver pick one arbitrarily.
func Resolve(entries []Entry, idx *model.Index) *Resolution {
	res := &Resolution{}
	for i := range entries {
		classify(res, &entries[i], idx)
	}
	res.Counts.Total = len(entries)
	return res
}

// ResolveEntry classifies a single entry and returns its state plus
// the candidate targets (one for attached, several for ambiguous).
func ResolveEntry(entry *Entry, idx *model.Index) (string, []model.TargetRef, []string) {
	candidates, matchedKeys := candidatesFor(entry, idx)
	switch len(candidates) {
	case 0:
		return StateOrphan, nil, entry.Keys()
	case 1:
		return StateAttached, candidates, matchedKeys
	default:
		return StateAmbiguous, candidates, matchedKeys
	}
}

func classify(res *Resolution, entry *Entry, idx *model.Index) {
	state, candidates, keys := ResolveEntry(entry, idx)
	switch state {
	case StateOrphan:
		res.Orphan = append(res.Orphan, Orphan{EntryID: entry.EntryID, TriedKeys: keys})
		res.Counts.Orphan++
	case StateAttached:
		res.Attached = append(res.Attached, Attachment{
			EntryID:     entry.EntryID,
			Target:      candidates[0],
			MatchedKeys: keys,
		})
		res.Counts.Attached++
	case StateAmbiguous:
		res.Ambiguous = append(res.Ambiguous, Ambiguity{EntryID: entry.EntryID, Candidates: candidates})
		res.Counts.Ambiguous++
	}
}

// candidatesFor unions the model targets under every key of the entry,
// filters to the entry's kind, and dedupes by (kind, id). Candidates
// come back sorted, matched keys in ref order.
func candidatesFor(entry *Entry, idx *model.Index) ([]model.TargetRef, []string) {
	seen := make(map[model.TargetRef]struct{})
	var candidates []model.TargetRef
	var matchedKeys []string

	for _, key := range entry.Keys() {
		matched := false
		for _, target := range idx.Lookup(key) {
			if target.Kind != entry.Target.Kind {
				continue
			}
			matched = true
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			candidates = append(candidates, target)
		}
		if matched {
			matchedKeys = append(matchedKeys, key)
		}
	}

	model.SortTargets(candidates)
	return candidates, matchedKeys
}
