package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
)

// Import applies a parsed file to the store using the requested
// strategy. currentSignature is the live model's signature, compared
// against the file's modelHint; a mismatch is a warning, not an error,
// since reusing overlay data across model variants is legitimate.
func Import(store *overlay.Store, file *File, currentSignature string, opts ImportOptions) *ImportResult {
	result := &ImportResult{}

	if file.ModelHint != nil && file.ModelHint.Signature != "" && currentSignature != "" &&
		file.ModelHint.Signature != currentSignature {
		result.Warnings = append(result.Warnings, Warning{
			Code: WarnSignatureMismatch,
			Message: fmt.Sprintf("file was exported from model %q but the current model is %q",
				file.ModelHint.Signature, currentSignature),
		})
	}

	valid := make([]validEntry, 0, len(file.Entries))
	for i, we := range file.Entries {
		ve, ok := validate(i, we, result)
		if ok {
			valid = append(valid, ve)
		}
	}

	switch strings.TrimSpace(opts.Strategy) {
	case StrategyReplace:
		importReplace(store, valid, opts, result)
	default:
		importMerge(store, valid, opts, result)
	}

	return result
}

// validEntry is a wire entry that survived validation, with its refs
// already normalized.
type validEntry struct {
	entryID string
	kind    model.Kind
	refs    []extref.Parts
	tags    overlay.Tags
	meta    map[string]any
}

func (v validEntry) wireRefs() []extref.Ref {
	out := make([]extref.Ref, len(v.refs))
	for i, p := range v.refs {
		out[i] = p.Ref()
	}
	return out
}

// validate drops entries with an unknown kind or with no usable refs,
// recording a dropped-invalid-entry warning for each.
func validate(i int, we WireEntry, result *ImportResult) (validEntry, bool) {
	kind := model.Kind(we.Target.Kind)
	if !kind.Valid() {
		drop(result, i, we.EntryID, fmt.Sprintf("unknown kind %q", we.Target.Kind))
		return validEntry{}, false
	}
	refs := extref.Normalize(we.Target.ExternalRefs)
	if len(refs) == 0 {
		drop(result, i, we.EntryID, "no valid external refs")
		return validEntry{}, false
	}
	return validEntry{
		entryID: we.EntryID,
		kind:    kind,
		refs:    refs,
		tags:    overlay.Tags(we.Tags),
		meta:    we.Meta,
	}, true
}

func drop(result *ImportResult, i int, entryID, reason string) {
	result.Dropped++
	w := Warning{
		Code:    WarnDroppedInvalidEntry,
		Message: fmt.Sprintf("entry[%d]: %s", i, reason),
	}
	if entryID != "" {
		w.EntryIDs = []string{entryID}
	}
	result.Warnings = append(result.Warnings, w)
}

// importReplace clears the store and adds every valid entry. Imported
// ids are kept when free; entries without an id, or whose id is
// already taken by an earlier entry in the same file, get a fresh one.
func importReplace(store *overlay.Store, entries []validEntry, opts ImportOptions, result *ImportResult) {
	if !opts.DryRun {
		store.Clear()
	}

	used := make(map[string]struct{}, len(entries))
	for _, ve := range entries {
		id := ve.entryID
		if id == "" {
			id = overlay.NewEntryID()
		} else if _, taken := used[id]; taken {
			id = overlay.NewEntryID()
		}
		used[id] = struct{}{}

		result.Added++
		if opts.DryRun {
			continue
		}
		tags := ve.tags
		if tags == nil {
			tags = overlay.Tags{}
		}
		store.Upsert(overlay.UpsertInput{
			EntryID: id,
			Kind:    ve.kind,
			Refs:    ve.wireRefs(),
			Tags:    tags,
			Meta:    ve.meta,
		})
	}
}

// importMerge folds each valid entry into the store by external-key
// overlap with existing entries of the same kind:
//
//	0 matches -> add as a new entry
//	1 match   -> update it in place (union refs, imported tags win per key)
//	2+        -> never conflate distinct entries; add the import as a
//	             brand-new entry and warn
func importMerge(store *overlay.Store, entries []validEntry, opts ImportOptions, result *ImportResult) {
	for _, ve := range entries {
		matches := overlappingEntries(store, ve)

		switch len(matches) {
		case 0:
			addNew(store, ve, opts, result)

		case 1:
			existing := matches[0]
			result.Updated++
			if opts.DryRun {
				continue
			}
			store.Upsert(overlay.UpsertInput{
				EntryID: existing.EntryID,
				Kind:    ve.kind,
				Refs:    unionRefs(existing.Target.Refs, ve.refs),
				Tags:    mergeTags(existing.Tags, ve.tags),
				Meta:    ve.meta,
			})

		default:
			ids := make([]string, len(matches))
			for i, e := range matches {
				ids[i] = e.EntryID
			}
			result.Warnings = append(result.Warnings, Warning{
				Code: WarnMergeConflict,
				Message: fmt.Sprintf("imported entry overlaps %d existing entries; added as new instead of merging",
					len(matches)),
				EntryIDs: ids,
			})
			// The imported id may belong to one of the conflicting
			// entries; always allocate a fresh one.
			ve.entryID = ""
			addNew(store, ve, opts, result)
		}
	}
}

func addNew(store *overlay.Store, ve validEntry, opts ImportOptions, result *ImportResult) {
	result.Added++
	if opts.DryRun {
		return
	}
	id := ve.entryID
	if id != "" {
		if _, taken := store.Get(id); taken {
			id = ""
		}
	}
	if id == "" {
		id = overlay.NewEntryID()
	}
	tags := ve.tags
	if tags == nil {
		tags = overlay.Tags{}
	}
	store.Upsert(overlay.UpsertInput{
		EntryID: id,
		Kind:    ve.kind,
		Refs:    ve.wireRefs(),
		Tags:    tags,
		Meta:    ve.meta,
	})
}

// overlappingEntries returns the existing same-kind entries whose key
// sets intersect the imported entry's, sorted by entry id.
func overlappingEntries(store *overlay.Store, ve validEntry) []overlay.Entry {
	seen := make(map[string]struct{})
	var out []overlay.Entry
	for _, p := range ve.refs {
		for _, id := range store.FindByExternalKey(p.Key()) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			entry, ok := store.Get(id)
			if !ok || entry.Target.Kind != ve.kind {
				continue
			}
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out
}

// unionRefs combines existing and imported refs, deduplicated by
// canonical key with the imported occurrence winning.
func unionRefs(existing, imported []extref.Parts) []extref.Ref {
	combined := extref.NormalizeParts(append(append([]extref.Parts{}, existing...), imported...))
	out := make([]extref.Ref, len(combined))
	for i, p := range combined {
		out[i] = p.Ref()
	}
	return out
}

// mergeTags shallow-merges: existing keys preserved, imported keys win.
func mergeTags(existing, imported overlay.Tags) overlay.Tags {
	out := make(overlay.Tags, len(existing)+len(imported))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range imported {
		out[k] = v
	}
	return out
}
