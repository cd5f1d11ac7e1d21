package overlay

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
)

func ref(scheme, value string) extref.Ref {
	return extref.Ref{Scheme: scheme, Value: value}
}

// checkIndexInvariant verifies the refIndex exactly matches what a
// full rescan of the entries would produce.
func checkIndexInvariant(t *testing.T, s *Store) {
	t.Helper()

	want := make(map[string]map[string]struct{})
	for _, e := range s.List() {
		for _, key := range e.Keys() {
			if want[key] == nil {
				want[key] = make(map[string]struct{})
			}
			want[key][e.EntryID] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !reflect.DeepEqual(s.refIndex, want) {
		t.Errorf("refIndex out of sync:\n got %v\nwant %v", s.refIndex, want)
	}
}

func TestUpsertCreatesAndIndexes(t *testing.T) {
	s := NewStore()

	id := s.Upsert(UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{ref("sparx", "EAID-1"), ref("cmdb@prod", "CI-1")},
		Tags: Tags{"owner": "alice", " trimmed ": 1, "": "dropped"},
	})
	if id == "" {
		t.Fatal("Upsert returned empty id")
	}

	entry, ok := s.Get(id)
	if !ok {
		t.Fatal("entry not found after upsert")
	}
	if len(entry.Target.Refs) != 2 {
		t.Errorf("got %d refs, want 2", len(entry.Target.Refs))
	}
	if entry.Tags["owner"] != "alice" {
		t.Errorf("owner tag = %v", entry.Tags["owner"])
	}
	if _, ok := entry.Tags["trimmed"]; !ok {
		t.Error("tag key was not trimmed")
	}
	if _, ok := entry.Tags[""]; ok {
		t.Error("empty tag key survived")
	}

	if got := s.FindByExternalKey("sparx||EAID-1"); !reflect.DeepEqual(got, []string{id}) {
		t.Errorf("FindByExternalKey = %v", got)
	}
	checkIndexInvariant(t, s)
}

func TestUpsertIgnoresInvalid(t *testing.T) {
	s := NewStore()
	before := s.Version()

	if id := s.Upsert(UpsertInput{Kind: "bogus", Refs: []extref.Ref{ref("a", "1")}}); id != "" {
		t.Errorf("invalid kind accepted, id=%q", id)
	}
	if id := s.Upsert(UpsertInput{Kind: model.KindElement, Refs: []extref.Ref{ref("", "1")}}); id != "" {
		t.Errorf("all-invalid refs accepted, id=%q", id)
	}
	if s.Version() != before {
		t.Error("version bumped for rejected input")
	}
}

func TestUpsertReplacesTargetKeepsTagsWhenNil(t *testing.T) {
	s := NewStore()
	id := s.Upsert(UpsertInput{
		EntryID: "ov-1",
		Kind:    model.KindElement,
		Refs:    []extref.Ref{ref("a", "1")},
		Tags:    Tags{"keep": true},
	})

	s.Upsert(UpsertInput{
		EntryID: id,
		Kind:    model.KindElement,
		Refs:    []extref.Ref{ref("b", "2")},
	})

	entry, _ := s.Get(id)
	if entry.Tags["keep"] != true {
		t.Error("nil Tags on upsert should keep existing tags")
	}
	if s.FindByExternalKey("a||1") != nil {
		t.Error("stale key a||1 still indexed")
	}
	if got := s.FindByExternalKey("b||2"); !reflect.DeepEqual(got, []string{id}) {
		t.Errorf("FindByExternalKey(b||2) = %v", got)
	}
	checkIndexInvariant(t, s)
}

func TestTagMutations(t *testing.T) {
	s := NewStore()
	id := s.Upsert(UpsertInput{Kind: model.KindElement, Refs: []extref.Ref{ref("a", "1")}})

	v1 := s.Version()
	s.SetTag(id, " owner ", "bob")
	if s.Version() != v1+1 {
		t.Error("SetTag did not bump version once")
	}
	entry, _ := s.Get(id)
	if entry.Tags["owner"] != "bob" {
		t.Errorf("owner = %v", entry.Tags["owner"])
	}

	// No-ops: absent entry, empty key.
	v2 := s.Version()
	s.SetTag("missing", "k", 1)
	s.SetTag(id, "  ", 1)
	s.RemoveTag("missing", "k")
	if s.Version() != v2 {
		t.Error("no-op mutations bumped version")
	}

	s.SetTags(id, Tags{"a": 1, "b": 2})
	entry, _ = s.Get(id)
	if len(entry.Tags) != 2 {
		t.Errorf("SetTags result = %v", entry.Tags)
	}

	s.RemoveTag(id, "a")
	entry, _ = s.Get(id)
	if _, ok := entry.Tags["a"]; ok {
		t.Error("RemoveTag left the key behind")
	}
}

func TestDeletePurgesIndex(t *testing.T) {
	s := NewStore()
	a := s.Upsert(UpsertInput{EntryID: "ov-a", Kind: model.KindElement, Refs: []extref.Ref{ref("x", "1")}})
	b := s.Upsert(UpsertInput{EntryID: "ov-b", Kind: model.KindElement, Refs: []extref.Ref{ref("x", "1")}})

	if got := s.FindByExternalKey("x||1"); !reflect.DeepEqual(got, []string{a, b}) {
		t.Fatalf("shared bucket = %v", got)
	}

	s.Delete(a)
	if got := s.FindByExternalKey("x||1"); !reflect.DeepEqual(got, []string{b}) {
		t.Errorf("bucket after delete = %v", got)
	}

	v := s.Version()
	s.Delete("missing")
	if s.Version() != v {
		t.Error("deleting a missing entry bumped version")
	}
	checkIndexInvariant(t, s)
}

func TestClearAndHydrate(t *testing.T) {
	s := NewStore()
	s.Upsert(UpsertInput{Kind: model.KindElement, Refs: []extref.Ref{ref("x", "1")}})

	s.Clear()
	if s.Len() != 0 {
		t.Fatal("Clear left entries behind")
	}

	v := s.Version()
	s.Hydrate([]Entry{
		{EntryID: "ov-1", Target: Target{Kind: model.KindElement, Refs: []extref.Parts{{System: "x", ID: "1"}}}, Tags: Tags{"a": 1}},
		{EntryID: "", Target: Target{Kind: model.KindElement, Refs: []extref.Parts{{System: "x", ID: "2"}}}},
		{EntryID: "ov-3", Target: Target{Kind: "bogus", Refs: []extref.Parts{{System: "x", ID: "3"}}}},
		{EntryID: "ov-4", Target: Target{Kind: model.KindRelationship}},
	})

	if s.Version() != v+1 {
		t.Error("Hydrate must bump the version exactly once")
	}
	if s.Len() != 1 {
		t.Errorf("Hydrate kept %d entries, want 1", s.Len())
	}
	if _, ok := s.Get("ov-1"); !ok {
		t.Error("valid hydrated entry missing")
	}
	checkIndexInvariant(t, s)
}

func TestSubscribe(t *testing.T) {
	s := NewStore()

	var calls int
	unsubscribe := s.Subscribe(func() { calls++ })

	s.Upsert(UpsertInput{Kind: model.KindElement, Refs: []extref.Ref{ref("x", "1")}})
	s.Clear()
	if calls != 2 {
		t.Errorf("listener called %d times, want 2", calls)
	}

	unsubscribe()
	s.Clear()
	if calls != 2 {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestListenerMayReadBack(t *testing.T) {
	s := NewStore()

	var seen int
	s.Subscribe(func() { seen = s.Len() })

	s.Upsert(UpsertInput{Kind: model.KindElement, Refs: []extref.Ref{ref("x", "1")}})
	if seen != 1 {
		t.Errorf("listener saw %d entries, want 1", seen)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	id := s.Upsert(UpsertInput{Kind: model.KindElement, Refs: []extref.Ref{ref("x", "1")}, Tags: Tags{"a": 1}})

	entry, _ := s.Get(id)
	entry.Tags["a"] = 99

	again, _ := s.Get(id)
	if again.Tags["a"] != 1 {
		t.Error("Get leaked a mutable reference to store state")
	}
}

func TestIndexInvariantAcrossMutations(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Upsert(UpsertInput{
			EntryID: fmt.Sprintf("ov-%d", i),
			Kind:    model.KindElement,
			Refs:    []extref.Ref{ref("s", fmt.Sprintf("%d", i)), ref("shared", "k")},
		})
		checkIndexInvariant(t, s)
	}
	s.Upsert(UpsertInput{EntryID: "ov-2", Kind: model.KindRelationship, Refs: []extref.Ref{ref("other", "z")}})
	checkIndexInvariant(t, s)
	s.Delete("ov-3")
	checkIndexInvariant(t, s)
	s.Clear()
	checkIndexInvariant(t, s)
}
