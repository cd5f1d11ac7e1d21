package service

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/codec"
	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
	"github.com/pwa-modeller/overlay/internal/persist"
)

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// recordingPublisher captures change-feed notifications.
type recordingPublisher struct {
	versions   []uint64
	signatures []string
}

func (r *recordingPublisher) PublishOverlayChanged(version uint64, entryCount int) {
	r.versions = append(r.versions, version)
}

func (r *recordingPublisher) PublishModelLoaded(signature string) {
	r.signatures = append(r.signatures, signature)
}

func modelDoc(t *testing.T) []byte {
	t.Helper()
	m := model.NewModel()
	m.Name = "demo"
	m.Elements["e1"] = &model.Element{
		ID: "e1", Type: "ApplicationComponent", Name: "Billing",
		ExternalIDs:  []model.ExternalID{{System: "cmdb", ID: "CI100"}},
		TaggedValues: []model.TaggedValue{{Key: "owner", Value: "core"}},
	}
	m.Elements["e2"] = &model.Element{
		ID: "e2", Type: "ApplicationComponent", Name: "Ledger",
		ExternalIDs: []model.ExternalID{{System: "cmdb", ID: "CI200"}},
	}
	m.Relationships["r1"] = &model.Relationship{
		ID: "r1", Type: "Serving", Source: "e1", Target: "e2",
	}
	data, err := model.Marshal(m)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	return data
}

func newTestSession(t *testing.T) (*Session, persist.KV, *recordingPublisher) {
	t.Helper()
	kv := persist.NewMemoryKV()
	pub := &recordingPublisher{}
	saver := persist.NewSaver(testLog(), time.Millisecond)
	s := NewSession(kv, saver, pub, testLog())
	t.Cleanup(s.Close)
	return s, kv, pub
}

func TestLoadModelReportsInfo(t *testing.T) {
	s, _, _ := newTestSession(t)

	info, err := s.LoadModel(modelDoc(t))
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if info.Elements != 2 || info.Relationships != 1 {
		t.Errorf("got %d elements, %d relationships", info.Elements, info.Relationships)
	}
	if !strings.HasPrefix(info.Signature, "ext-") {
		t.Errorf("signature = %q, want ext- prefix", info.Signature)
	}
	if info.ExternalKeys != 2 {
		t.Errorf("external keys = %d, want 2", info.ExternalKeys)
	}
	if !s.HasModel() {
		t.Error("HasModel = false after load")
	}
}

func TestLoadModelRejectsBadDocument(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.LoadModel([]byte(`{"elements":[{"id":""}]}`)); err == nil {
		t.Fatal("expected parse error for empty id")
	}
	if s.HasModel() {
		t.Error("failed load must not install a model")
	}
}

func TestEntryLifecyclePersistsAcrossReload(t *testing.T) {
	s, kv, _ := newTestSession(t)
	if _, err := s.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	entry, err := s.UpsertEntry(overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI100"}},
		Tags: overlay.Tags{"criticality": "high"},
	})
	if err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	s.Flush()

	// A second session over the same KV sees the entry again.
	s2 := NewSession(kv, persist.NewSaver(testLog(), time.Millisecond), nil, testLog())
	t.Cleanup(s2.Close)
	if _, err := s2.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel (reload): %v", err)
	}
	got, ok := s2.GetEntry(entry.EntryID)
	if !ok {
		t.Fatalf("entry %s not rehydrated", entry.EntryID)
	}
	if got.Tags["criticality"] != "high" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestUpsertEntryRejectsInvalid(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.UpsertEntry(overlay.UpsertInput{Kind: "diagram"}); err == nil {
		t.Error("expected error for invalid kind")
	}
	if _, err := s.UpsertEntry(overlay.UpsertInput{Kind: model.KindElement}); err == nil {
		t.Error("expected error for entry without refs")
	}
}

func TestTagOperationsRequireExistingEntry(t *testing.T) {
	s, _, _ := newTestSession(t)

	for _, err := range []error{
		s.SetTag("missing", "k", 1),
		s.SetTags("missing", overlay.Tags{}),
		s.RemoveTag("missing", "k"),
		s.DeleteEntry("missing"),
	} {
		if !errors.Is(err, overlay.ErrEntryNotFound) {
			t.Errorf("err = %v, want ErrEntryNotFound", err)
		}
	}
}

func TestListEntriesWithFilter(t *testing.T) {
	s, _, _ := newTestSession(t)

	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI100"}},
		Tags: overlay.Tags{"env": "prod"},
	})
	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI200"}},
		Tags: overlay.Tags{"env": "dev"},
	})

	all, err := s.ListEntries("")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListEntries: %v, %d entries", err, len(all))
	}
	prod, err := s.ListEntries(`tags.env == "prod"`)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(prod) != 1 {
		t.Fatalf("got %d entries, want 1", len(prod))
	}
	if _, err := s.ListEntries("not a valid ||| expr"); err == nil {
		t.Error("expected compile error")
	}
}

func TestResolveRequiresModel(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.Resolve(); !errors.Is(err, ErrNoModel) {
		t.Fatalf("err = %v, want ErrNoModel", err)
	}
}

func TestResolveClassifiesEntries(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI100"}},
	})
	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "GONE"}},
	})

	res, err := s.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Counts.Attached != 1 || res.Counts.Orphan != 1 {
		t.Errorf("counts = %+v", res.Counts)
	}
}

func TestEffectiveValidatesTarget(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.Effective(model.TargetRef{Kind: model.KindElement, ID: "e1"}); !errors.Is(err, ErrNoModel) {
		t.Fatalf("err = %v, want ErrNoModel", err)
	}
	if _, err := s.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if _, err := s.Effective(model.TargetRef{Kind: model.KindElement, ID: "nope"}); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("err = %v, want ErrTargetNotFound", err)
	}

	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI100"}},
		Tags: overlay.Tags{"owner": "overlay-team"},
	})
	eff, err := s.Effective(model.TargetRef{Kind: model.KindElement, ID: "e1"})
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if eff.OverlayTags["owner"] != "overlay-team" {
		t.Errorf("overlay tags = %v", eff.OverlayTags)
	}
	if len(eff.OverriddenCoreKeys) != 1 || eff.OverriddenCoreKeys[0] != "owner" {
		t.Errorf("overridden = %v", eff.OverriddenCoreKeys)
	}
}

func TestRebindThroughSession(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	entry := mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "GONE"}},
		Tags: overlay.Tags{"keep": true},
	})

	res, err := s.Rebind(entry.EntryID, model.TargetRef{Kind: model.KindElement, ID: "e2"}, true)
	if err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if len(res.Refs) != 1 || res.Refs[0].ID != "ci200" {
		t.Errorf("refs = %v", res.Refs)
	}
	got, _ := s.GetEntry(entry.EntryID)
	if got.Tags["keep"] != true {
		t.Error("rebind must keep tags")
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI100"}},
		Tags: overlay.Tags{"env": "prod"},
	})

	for _, format := range []string{FormatJSON, FormatCSV, FormatSurvey} {
		data, contentType, err := s.Export(format, nil)
		if err != nil {
			t.Fatalf("Export(%s): %v", format, err)
		}
		if len(data) == 0 || contentType == "" {
			t.Fatalf("Export(%s): empty output", format)
		}
	}

	data, _, err := s.Export(FormatJSON, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	fresh, _, _ := newTestSession(t)
	if _, err := fresh.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	result, err := fresh.Import(FormatJSON, data, codec.ImportOptions{Strategy: codec.StrategyReplace})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Added != 1 {
		t.Errorf("added = %d, want 1", result.Added)
	}
	entries, _ := fresh.ListEntries("")
	if len(entries) != 1 || entries[0].Tags["env"] != "prod" {
		t.Errorf("entries after import = %+v", entries)
	}
}

func TestImportRejectsUnknownFormat(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.Import("xml", nil, codec.ImportOptions{}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
	if _, _, err := s.Export("xml", nil); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestSurveyExportRequiresModel(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, _, err := s.Export(FormatSurvey, nil); !errors.Is(err, ErrNoModel) {
		t.Fatalf("err = %v, want ErrNoModel", err)
	}
}

func TestStatusTracksExportMarker(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI100"}},
	})

	if status := s.Status(); !status.Dirty {
		t.Error("store with changes and no marker should be dirty")
	}
	if _, _, err := s.Export(FormatJSON, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if status := s.Status(); status.Dirty {
		t.Errorf("status after export = %+v, want clean", status)
	}

	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI200"}},
	})
	if status := s.Status(); !status.Dirty {
		t.Error("new change after export should be dirty again")
	}
}

func TestChangeFeedPublishes(t *testing.T) {
	s, _, pub := newTestSession(t)
	mustUpsert(t, s, overlay.UpsertInput{
		Kind: model.KindElement,
		Refs: []extref.Ref{{Scheme: "cmdb", Value: "CI100"}},
	})
	if len(pub.versions) == 0 {
		t.Fatal("no change notification published")
	}
	if last := pub.versions[len(pub.versions)-1]; last != s.currentStore().Version() {
		t.Errorf("published version %d, store at %d", last, s.currentStore().Version())
	}
}

func TestLoadModelMigratesLegacyEnvelope(t *testing.T) {
	s, kv, _ := newTestSession(t)

	// Compute the signature the session will derive, then plant a v1
	// envelope under it.
	m, err := model.Parse(modelDoc(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sig := model.ComputeSignature(m)
	legacy := map[string]any{
		"v":         1,
		"signature": sig,
		"entries": []map[string]any{{
			"entryId": "ov-legacy",
			"target": map[string]any{
				"kind":         "element",
				"externalRefs": []map[string]string{{"scheme": "cmdb", "value": "CI100"}},
			},
			"tags": map[string]any{"migrated": true},
		}},
	}
	raw, _ := json.Marshal(legacy)
	if err := kv.Set(persist.LegacyKey(sig), string(raw)); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	if _, err := s.LoadModel(modelDoc(t)); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	got, ok := s.GetEntry("ov-legacy")
	if !ok {
		t.Fatal("legacy entry not hydrated")
	}
	if got.Tags["migrated"] != true {
		t.Errorf("tags = %v", got.Tags)
	}
	if _, found, _ := kv.Get(persist.LegacyKey(sig)); found {
		t.Error("legacy key should be deleted after migration")
	}
}

func mustUpsert(t *testing.T, s *Session, input overlay.UpsertInput) overlay.Entry {
	t.Helper()
	entry, err := s.UpsertEntry(input)
	if err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	return entry
}
