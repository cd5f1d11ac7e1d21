package model

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/pwa-modeller/overlay/internal/extref"
)

// ComputeSignature derives a stable identity string for a model, used
// to scope persisted overlay data. It hashes the sorted, deduplicated
// set of canonical external keys ("ext-" prefix), so the signature is
// invariant under insertion order, per-object ref order, and re-import
// with fresh internal ids. A model with no external keys at all falls
// back to hashing its sorted internal ids ("int-" prefix).
//
// FNV-1a 32-bit is deliberate: this is a change detector, not a
// security primitive.
func ComputeSignature(m *Model) string {
	if m == nil {
		return "int-" + hashLines(nil)
	}

	keySet := make(map[string]struct{})
	collect := func(ids []ExternalID) {
		parts := make([]extref.Parts, len(ids))
		for i, e := range ids {
			parts[i] = e.Parts()
		}
		for _, p := range extref.NormalizeParts(parts) {
			keySet[p.Key()] = struct{}{}
		}
	}
	for _, el := range m.Elements {
		collect(el.ExternalIDs)
	}
	for _, rel := range m.Relationships {
		collect(rel.ExternalIDs)
	}

	if len(keySet) > 0 {
		keys := make([]string, 0, len(keySet))
		for k := range keySet {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "ext-" + hashLines(keys)
	}

	ids := make([]string, 0, len(m.Elements)+len(m.Relationships))
	for id := range m.Elements {
		ids = append(ids, "e:"+id)
	}
	for id := range m.Relationships {
		ids = append(ids, "r:"+id)
	}
	sort.Strings(ids)
	return "int-" + hashLines(ids)
}

func hashLines(lines []string) string {
	h := fnv.New32a()
	for _, line := range lines {
		h.Write([]byte(line)) //nolint:errcheck // fnv never fails.
		h.Write([]byte{'\n'}) //nolint:errcheck
	}
	return fmt.Sprintf("%08x", h.Sum32())
}
