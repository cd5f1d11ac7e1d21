// Package extref canonicalizes external identifier references.
//
// An external ref names an object in some outside system as a
// (system, scope, id) triple. Overlay files carry it packed as
// {scheme: "system[@scope]", value: id}; primary-model objects carry
// the three parts separately. Both forms normalize to the same
// canonical key "system|scope|id", which is the only representation
// the indexes ever compare.
package extref

import "strings"

// Ref is the overlay-side wire form of an external reference.
// Scheme packs "system" or "system@scope".
type Ref struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// Parts is the unpacked form of a reference.
type Parts struct {
	System string `json:"system"`
	Scope  string `json:"scope,omitempty"`
	ID     string `json:"id"`
}

// Valid reports whether the reference carries enough to be indexed.
// System and ID are required; scope is optional.
func (p Parts) Valid() bool {
	return p.System != "" && p.ID != ""
}

// Key returns the canonical key "system|scope|id". Scope is the empty
// string when absent. Callers must not Key an invalid Parts.
func (p Parts) Key() string {
	return p.System + "|" + p.Scope + "|" + p.ID
}

// Ref packs the parts back into wire form.
func (p Parts) Ref() Ref {
	scheme := p.System
	if p.Scope != "" {
		scheme += "@" + p.Scope
	}
	return Ref{Scheme: scheme, Value: p.ID}
}

// Split unpacks a wire ref into parts. The first "@" in the scheme
// separates system from scope; further "@" characters belong to the scope.
func Split(r Ref) Parts {
	system := strings.TrimSpace(r.Scheme)
	scope := ""
	if i := strings.Index(system, "@"); i >= 0 {
		scope = strings.TrimSpace(system[i+1:])
		system = strings.TrimSpace(system[:i])
	}
	return Parts{System: system, Scope: scope, ID: strings.TrimSpace(r.Value)}
}

// Make builds parts from the model-side triple form.
func Make(system, scope, id string) Parts {
	return Parts{
		System: strings.TrimSpace(system),
		Scope:  strings.TrimSpace(scope),
		ID:     strings.TrimSpace(id),
	}
}

// Normalize drops invalid refs and deduplicates the rest by canonical
// key, keeping the last occurrence of each key. The relative order of
// surviving refs follows the order of last occurrences; that order is
// not meaningful, but it is deterministic.
func Normalize(refs []Ref) []Parts {
	parts := make([]Parts, 0, len(refs))
	for _, r := range refs {
		p := Split(r)
		if p.Valid() {
			parts = append(parts, p)
		}
	}
	return dedupeLast(parts)
}

// NormalizeParts applies the same drop/dedupe rules to already-unpacked refs.
func NormalizeParts(parts []Parts) []Parts {
	valid := make([]Parts, 0, len(parts))
	for _, p := range parts {
		p = Make(p.System, p.Scope, p.ID)
		if p.Valid() {
			valid = append(valid, p)
		}
	}
	return dedupeLast(valid)
}

// Keys returns the canonical key of every ref, in ref order.
func Keys(parts []Parts) []string {
	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i] = p.Key()
	}
	return keys
}

// KeySet returns the canonical keys as a set.
func KeySet(parts []Parts) map[string]struct{} {
	set := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		set[p.Key()] = struct{}{}
	}
	return set
}

// dedupeLast keeps the last occurrence of each canonical key,
// in last-occurrence order.
func dedupeLast(parts []Parts) []Parts {
	lastIdx := make(map[string]int, len(parts))
	for i, p := range parts {
		lastIdx[p.Key()] = i
	}

	out := make([]Parts, 0, len(lastIdx))
	for i, p := range parts {
		if lastIdx[p.Key()] == i {
			out = append(out, p)
		}
	}
	return out
}
