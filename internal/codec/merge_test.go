package codec

import (
	"reflect"
	"sort"
	"testing"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
)

func wireEntry(id, kind string, tags map[string]any, refs ...extref.Ref) WireEntry {
	return WireEntry{
		EntryID: id,
		Target:  WireTarget{Kind: kind, ExternalRefs: refs},
		Tags:    tags,
	}
}

func fileOf(entries ...WireEntry) *File {
	return &File{Format: Format, SchemaVersion: SchemaVersion, Entries: entries}
}

func TestImportMergeUpdatesOverlappingEntry(t *testing.T) {
	s := overlay.NewStore()
	s.Upsert(overlay.UpsertInput{
		EntryID: "ov-a",
		Kind:    model.KindElement,
		Refs:    []extref.Ref{{Scheme: "x", Value: "1"}},
		Tags:    overlay.Tags{"a": float64(1), "keep": true},
	})

	file := fileOf(wireEntry("", string(model.KindElement),
		map[string]any{"a": float64(9), "b": float64(2)},
		extref.Ref{Scheme: "x", Value: "1"}, extref.Ref{Scheme: "x", Value: "2"}))

	res := Import(s, file, "", ImportOptions{})
	if res.Updated != 1 || res.Added != 0 {
		t.Fatalf("result = %+v", res)
	}
	if s.Len() != 1 {
		t.Fatalf("store has %d entries, want 1", s.Len())
	}

	entry, _ := s.Get("ov-a")
	wantTags := overlay.Tags{"a": float64(9), "keep": true, "b": float64(2)}
	if !reflect.DeepEqual(entry.Tags, wantTags) {
		t.Errorf("tags = %v, want %v", entry.Tags, wantTags)
	}

	keys := entry.Keys()
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"x||1", "x||2"}) {
		t.Errorf("keys = %v", keys)
	}
}

func TestImportMergeConflictAddsNewEntry(t *testing.T) {
	s := overlay.NewStore()
	shared := extref.Ref{Scheme: "s", Value: "shared"}
	s.Upsert(overlay.UpsertInput{EntryID: "ov-a", Kind: model.KindElement,
		Refs: []extref.Ref{shared}, Tags: overlay.Tags{"who": "a"}})
	s.Upsert(overlay.UpsertInput{EntryID: "ov-b", Kind: model.KindElement,
		Refs: []extref.Ref{shared}, Tags: overlay.Tags{"who": "b"}})

	file := fileOf(wireEntry("", string(model.KindElement), map[string]any{"who": "import"}, shared))

	res := Import(s, file, "", ImportOptions{})
	if res.Added != 1 || res.Updated != 0 {
		t.Fatalf("result = %+v", res)
	}
	if s.Len() != 3 {
		t.Fatalf("store has %d entries, want 3", s.Len())
	}

	var conflicts []Warning
	for _, w := range res.Warnings {
		if w.Code == WarnMergeConflict {
			conflicts = append(conflicts, w)
		}
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflict warnings, want 1", len(conflicts))
	}
	if !reflect.DeepEqual(conflicts[0].EntryIDs, []string{"ov-a", "ov-b"}) {
		t.Errorf("conflict names %v", conflicts[0].EntryIDs)
	}

	// Existing entries untouched.
	for _, id := range []string{"ov-a", "ov-b"} {
		entry, _ := s.Get(id)
		if entry.Tags["who"] == "import" {
			t.Errorf("existing entry %s was mutated", id)
		}
	}
}

func TestImportMergeKindMismatchIsNotOverlap(t *testing.T) {
	s := overlay.NewStore()
	shared := extref.Ref{Scheme: "s", Value: "shared"}
	s.Upsert(overlay.UpsertInput{EntryID: "ov-a", Kind: model.KindRelationship, Refs: []extref.Ref{shared}})

	file := fileOf(wireEntry("", string(model.KindElement), nil, shared))

	res := Import(s, file, "", ImportOptions{})
	if res.Added != 1 || res.Updated != 0 {
		t.Fatalf("result = %+v", res)
	}
	if s.Len() != 2 {
		t.Errorf("store has %d entries, want 2", s.Len())
	}
}

func TestImportDropsInvalidEntries(t *testing.T) {
	s := overlay.NewStore()
	file := fileOf(
		wireEntry("ov-bad-kind", "view", nil, extref.Ref{Scheme: "s", Value: "1"}),
		wireEntry("ov-no-refs", string(model.KindElement), nil),
		wireEntry("ov-empty-refs", string(model.KindElement), nil, extref.Ref{Scheme: "", Value: "x"}),
		wireEntry("ov-ok", string(model.KindElement), nil, extref.Ref{Scheme: "s", Value: "1"}),
	)

	res := Import(s, file, "", ImportOptions{})
	if res.Dropped != 3 || res.Added != 1 {
		t.Fatalf("result = %+v", res)
	}
	dropped := 0
	for _, w := range res.Warnings {
		if w.Code == WarnDroppedInvalidEntry {
			dropped++
		}
	}
	if dropped != 3 {
		t.Errorf("got %d dropped warnings, want 3", dropped)
	}
	if s.Len() != 1 {
		t.Errorf("store has %d entries, want 1", s.Len())
	}
}

func TestImportSignatureMismatchWarns(t *testing.T) {
	s := overlay.NewStore()
	file := fileOf(wireEntry("", string(model.KindElement), nil, extref.Ref{Scheme: "s", Value: "1"}))
	file.ModelHint = &ModelHint{Signature: "ext-other"}

	res := Import(s, file, "ext-current", ImportOptions{})
	found := false
	for _, w := range res.Warnings {
		if w.Code == WarnSignatureMismatch {
			found = true
		}
	}
	if !found {
		t.Error("expected a signature-mismatch warning")
	}
	// Import still proceeds.
	if res.Added != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestImportReplace(t *testing.T) {
	s := overlay.NewStore()
	s.Upsert(overlay.UpsertInput{EntryID: "ov-old", Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "old", Value: "1"}}})

	file := fileOf(
		wireEntry("ov-1", string(model.KindElement), nil, extref.Ref{Scheme: "s", Value: "1"}),
		// Duplicate id within the file gets a fresh one.
		wireEntry("ov-1", string(model.KindElement), nil, extref.Ref{Scheme: "s", Value: "2"}),
	)

	res := Import(s, file, "", ImportOptions{Strategy: StrategyReplace})
	if res.Added != 2 {
		t.Fatalf("result = %+v", res)
	}
	if s.Len() != 2 {
		t.Fatalf("store has %d entries, want 2", s.Len())
	}
	if _, ok := s.Get("ov-old"); ok {
		t.Error("replace kept a pre-existing entry")
	}
	if _, ok := s.Get("ov-1"); !ok {
		t.Error("first claim on ov-1 should keep its id")
	}
}

func TestImportDryRun(t *testing.T) {
	s := overlay.NewStore()
	s.Upsert(overlay.UpsertInput{EntryID: "ov-a", Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "x", Value: "1"}}, Tags: overlay.Tags{"keep": true}})
	version := s.Version()

	file := fileOf(
		wireEntry("", string(model.KindElement), map[string]any{"a": float64(1)}, extref.Ref{Scheme: "x", Value: "1"}),
		wireEntry("", string(model.KindElement), nil, extref.Ref{Scheme: "y", Value: "2"}),
	)

	res := Import(s, file, "", ImportOptions{DryRun: true})
	if res.Updated != 1 || res.Added != 1 {
		t.Fatalf("result = %+v", res)
	}
	if s.Version() != version {
		t.Error("dry run mutated the store")
	}

	res = Import(s, file, "", ImportOptions{Strategy: StrategyReplace, DryRun: true})
	if res.Added != 2 {
		t.Fatalf("replace dry run result = %+v", res)
	}
	if s.Len() != 1 || s.Version() != version {
		t.Error("replace dry run mutated the store")
	}
}
