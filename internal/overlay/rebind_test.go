package overlay

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
)

func rebindFixture() (*model.Model, *model.Index, *Store) {
	m := model.NewModel()
	m.Elements["e1"] = &model.Element{ID: "e1", Type: "Node", Name: "one",
		ExternalIDs: []model.ExternalID{
			{System: "s", ID: "shared"},
			{System: "s", ID: "uniqueOnly"},
		}}
	m.Elements["e2"] = &model.Element{ID: "e2", Type: "Node", Name: "two",
		ExternalIDs: []model.ExternalID{{System: "s", ID: "shared"}}}
	m.Elements["bare"] = &model.Element{ID: "bare", Type: "Node", Name: "no refs"}

	s := NewStore()
	s.Upsert(UpsertInput{EntryID: "ov-1", Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "old", Value: "gone"}},
		Tags: Tags{"keep": true}})

	return m, model.BuildIndex(m), s
}

func TestRebindPrefersUniqueRefs(t *testing.T) {
	m, idx, s := rebindFixture()

	res, err := Rebind(s, m, idx, "ov-1", model.TargetRef{Kind: model.KindElement, ID: "e1"}, RebindOptions{PreferUniqueRefs: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []extref.Parts{{System: "s", ID: "uniqueOnly"}}
	if !reflect.DeepEqual(res.Refs, want) {
		t.Errorf("refs = %+v, want %+v", res.Refs, want)
	}
	if !res.UsedUnique || res.DroppedRefs != 1 {
		t.Errorf("result = %+v", res)
	}

	entry, _ := s.Get("ov-1")
	if !reflect.DeepEqual(entry.Target.Refs, want) {
		t.Errorf("stored refs = %+v", entry.Target.Refs)
	}
	if entry.Tags["keep"] != true {
		t.Error("rebind lost the entry's tags")
	}
}

func TestRebindFallsBackToAllRefs(t *testing.T) {
	m, idx, s := rebindFixture()

	// e2 only carries the shared ref; no unique subset exists.
	res, err := Rebind(s, m, idx, "ov-1", model.TargetRef{Kind: model.KindElement, ID: "e2"}, RebindOptions{PreferUniqueRefs: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UsedUnique {
		t.Error("UsedUnique = true with no unique refs available")
	}
	if !reflect.DeepEqual(res.Refs, []extref.Parts{{System: "s", ID: "shared"}}) {
		t.Errorf("refs = %+v", res.Refs)
	}
}

func TestRebindWithoutPreference(t *testing.T) {
	m, idx, s := rebindFixture()

	res, err := Rebind(s, m, idx, "ov-1", model.TargetRef{Kind: model.KindElement, ID: "e1"}, RebindOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Refs) != 2 || res.UsedUnique {
		t.Errorf("result = %+v", res)
	}
}

func TestRebindErrors(t *testing.T) {
	m, idx, s := rebindFixture()

	tests := []struct {
		name    string
		entryID string
		target  model.TargetRef
		wantErr error
	}{
		{name: "entry not found", entryID: "nope",
			target: model.TargetRef{Kind: model.KindElement, ID: "e1"}, wantErr: ErrEntryNotFound},
		{name: "target not found", entryID: "ov-1",
			target: model.TargetRef{Kind: model.KindElement, ID: "nope"}, wantErr: ErrTargetNotFound},
		{name: "target without external ids", entryID: "ov-1",
			target: model.TargetRef{Kind: model.KindElement, ID: "bare"}, wantErr: ErrTargetHasNoExternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Rebind(s, m, idx, tc.entryID, tc.target, RebindOptions{PreferUniqueRefs: true})
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRebindUpdatesKind(t *testing.T) {
	m, idx, s := rebindFixture()
	m.Relationships["r1"] = &model.Relationship{ID: "r1", Type: "Flow", Source: "e1", Target: "e2",
		ExternalIDs: []model.ExternalID{{System: "s", ID: "REL"}}}
	idx = model.BuildIndex(m)

	_, err := Rebind(s, m, idx, "ov-1", model.TargetRef{Kind: model.KindRelationship, ID: "r1"}, RebindOptions{PreferUniqueRefs: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, _ := s.Get("ov-1")
	if entry.Target.Kind != model.KindRelationship {
		t.Errorf("kind = %q, want relationship", entry.Target.Kind)
	}
}
