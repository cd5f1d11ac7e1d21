// Package service implements business logic for the overlay service:
// one Session binds the loaded primary model, its overlay store, and
// the persistence plumbing together.
package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/codec"
	"github.com/pwa-modeller/overlay/internal/metrics"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
	"github.com/pwa-modeller/overlay/internal/persist"
	"github.com/pwa-modeller/overlay/internal/query"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrNoModel        = errors.New("no model loaded")
	ErrTargetNotFound = errors.New("model target not found")
	ErrUnknownFormat  = errors.New("unknown overlay file format")
	ErrInvalidEntry   = errors.New("entry needs a valid kind and at least one external ref")
)

// ChangePublisher receives a notification after every overlay store
// mutation and on model switches. The WebSocket hub implements it;
// tests use a stub.
type ChangePublisher interface {
	PublishOverlayChanged(version uint64, entryCount int)
	PublishModelLoaded(signature string)
}

// Session owns the currently loaded model and its overlay store. The
// store itself is keyed by the model's signature: switching models
// flushes pending writes, then rehydrates overlay data persisted for
// the new signature.
type Session struct {
	log    *logrus.Logger
	kv     persist.KV
	saver  *persist.Saver
	events ChangePublisher

	mu          sync.RWMutex
	model       *model.Model
	index       *model.Index
	signature   string
	store       *overlay.Store
	unsubscribe func()
}

// NewSession creates a session with an empty store and no model.
func NewSession(kv persist.KV, saver *persist.Saver, events ChangePublisher, log *logrus.Logger) *Session {
	s := &Session{
		log:    log,
		kv:     kv,
		saver:  saver,
		events: events,
		store:  overlay.NewStore(),
	}
	s.watchStore()
	return s
}

// watchStore wires the store's subscription into persistence,
// metrics, and the change feed. Called with s.mu held or before the
// session is shared.
func (s *Session) watchStore() {
	store := s.store
	s.unsubscribe = store.Subscribe(func() {
		version := store.Version()
		count := store.Len()

		metrics.StoreVersion.Set(float64(version))
		metrics.EntryCount.Set(float64(count))

		s.scheduleSave()
		if s.events != nil {
			s.events.PublishOverlayChanged(version, count)
		}
	})
}

// scheduleSave queues a debounced persistence write of the current
// store contents. Sessions without a model have nothing to key the
// envelope by and skip persistence entirely.
func (s *Session) scheduleSave() {
	signature := s.Signature()
	if signature == "" || s.saver == nil {
		return
	}
	store := s.currentStore()
	s.saver.Schedule(func() error {
		return persist.Save(s.kv, signature, store.List())
	})
}

// LoadModel parses a primary-model document, makes it current, and
// swaps in the overlay store persisted for its signature. Overlay
// data for the previous model is flushed first.
func (s *Session) LoadModel(data []byte) (*ModelInfo, error) {
	m, err := model.Parse(data)
	if err != nil {
		return nil, err
	}

	signature := model.ComputeSignature(m)
	idx := model.BuildIndex(m)

	if s.saver != nil {
		s.saver.Flush()
	}

	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.model = m
	s.index = idx
	s.signature = signature
	s.store = overlay.NewStore()
	s.watchStore()
	s.mu.Unlock()

	if entries := persist.Load(s.kv, s.log, signature); entries != nil {
		s.store.Hydrate(entries)
	} else {
		// Still announce the fresh (empty) store.
		s.store.Clear()
	}

	if s.events != nil {
		s.events.PublishModelLoaded(signature)
	}

	info := &ModelInfo{
		Name:          m.Name,
		Signature:     signature,
		Elements:      len(m.Elements),
		Relationships: len(m.Relationships),
		ExternalKeys:  idx.Len(),
		Entries:       s.store.Len(),
	}
	s.log.WithFields(logrus.Fields{
		"action":    "model.load",
		"signature": signature,
		"elements":  info.Elements,
		"entries":   info.Entries,
	}).Info("audit")
	return info, nil
}

// ModelInfo summarises the loaded model for API responses.
type ModelInfo struct {
	Name          string `json:"name,omitempty"`
	Signature     string `json:"signature"`
	Elements      int    `json:"elements"`
	Relationships int    `json:"relationships"`
	ExternalKeys  int    `json:"external_keys"`
	Entries       int    `json:"entries"`
}

// Info summarises the loaded model, nil when none is loaded.
func (s *Session) Info() *ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil
	}
	return &ModelInfo{
		Name:          s.model.Name,
		Signature:     s.signature,
		Elements:      len(s.model.Elements),
		Relationships: len(s.model.Relationships),
		ExternalKeys:  s.index.Len(),
		Entries:       s.store.Len(),
	}
}

// Signature returns the current model's signature, "" when no model
// is loaded.
func (s *Session) Signature() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signature
}

// HasModel reports whether a model is loaded.
func (s *Session) HasModel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

func (s *Session) currentStore() *overlay.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

func (s *Session) snapshot() (*model.Model, *model.Index, *overlay.Store, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model, s.index, s.store, s.signature
}

// Collisions reports model-side external-key collisions.
func (s *Session) Collisions() ([]model.Collision, error) {
	_, idx, _, _ := s.snapshot()
	if idx == nil {
		return nil, ErrNoModel
	}
	return idx.Collisions(), nil
}

// UpsertEntry creates or updates an overlay entry.
func (s *Session) UpsertEntry(input overlay.UpsertInput) (overlay.Entry, error) {
	store := s.currentStore()
	id := store.Upsert(input)
	if id == "" {
		return overlay.Entry{}, ErrInvalidEntry
	}
	s.log.WithFields(logrus.Fields{"action": "entry.upsert", "entry_id": id}).Info("audit")
	entry, _ := store.Get(id)
	return entry, nil
}

// GetEntry returns one entry.
func (s *Session) GetEntry(entryID string) (overlay.Entry, bool) {
	return s.currentStore().Get(entryID)
}

// ListEntries returns all entries, optionally filtered by an expr
// predicate over id/kind/keys/tags.
func (s *Session) ListEntries(filterExpr string) ([]overlay.Entry, error) {
	entries := s.currentStore().List()
	if filterExpr == "" {
		return entries, nil
	}
	filter, err := query.Compile(filterExpr)
	if err != nil {
		return nil, err
	}
	return filter.Apply(entries), nil
}

// SetTag sets one tag on an entry.
func (s *Session) SetTag(entryID, key string, value any) error {
	store := s.currentStore()
	if _, ok := store.Get(entryID); !ok {
		return overlay.ErrEntryNotFound
	}
	store.SetTag(entryID, key, value)
	return nil
}

// SetTags replaces an entry's tag map.
func (s *Session) SetTags(entryID string, tags overlay.Tags) error {
	store := s.currentStore()
	if _, ok := store.Get(entryID); !ok {
		return overlay.ErrEntryNotFound
	}
	store.SetTags(entryID, tags)
	return nil
}

// RemoveTag removes one tag from an entry.
func (s *Session) RemoveTag(entryID, key string) error {
	store := s.currentStore()
	if _, ok := store.Get(entryID); !ok {
		return overlay.ErrEntryNotFound
	}
	store.RemoveTag(entryID, key)
	return nil
}

// DeleteEntry removes an entry.
func (s *Session) DeleteEntry(entryID string) error {
	store := s.currentStore()
	if _, ok := store.Get(entryID); !ok {
		return overlay.ErrEntryNotFound
	}
	store.Delete(entryID)
	s.log.WithFields(logrus.Fields{"action": "entry.delete", "entry_id": entryID}).Info("audit")
	return nil
}

// Resolve classifies every entry against the current model and
// refreshes the orphan/ambiguous gauges.
func (s *Session) Resolve() (*overlay.Resolution, error) {
	_, idx, store, _ := s.snapshot()
	if idx == nil {
		return nil, ErrNoModel
	}
	res := overlay.Resolve(store.List(), idx)

	metrics.OrphanCount.Set(float64(res.Counts.Orphan))
	metrics.AmbiguousCount.Set(float64(res.Counts.Ambiguous))
	return res, nil
}

// Effective computes the merged tag view for one model object.
func (s *Session) Effective(target model.TargetRef) (*overlay.Effective, error) {
	m, _, store, _ := s.snapshot()
	if m == nil {
		return nil, ErrNoModel
	}
	if !m.Has(target) {
		return nil, ErrTargetNotFound
	}
	return overlay.EffectiveTags(m, store, target), nil
}

// Rebind repoints an entry at a chosen model target.
func (s *Session) Rebind(entryID string, target model.TargetRef, preferUnique bool) (*overlay.RebindResult, error) {
	m, idx, store, _ := s.snapshot()
	if m == nil {
		return nil, ErrNoModel
	}
	res, err := overlay.Rebind(store, m, idx, entryID, target, overlay.RebindOptions{PreferUniqueRefs: preferUnique})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"action": "entry.rebind", "entry_id": entryID,
		"target_kind": string(target.Kind), "target_id": target.ID,
	}).Info("audit")
	return res, nil
}

// Overlay file formats accepted by Import and Export.
const (
	FormatJSON   = "json"
	FormatCSV    = "csv"
	FormatSurvey = "survey"
)

// Import parses an overlay file in the given format and applies it to
// the store with the requested strategy. Parse failures are hard
// errors; everything past parsing is warnings in the result.
func (s *Session) Import(format string, data []byte, opts codec.ImportOptions) (*codec.ImportResult, error) {
	var file *codec.File
	var err error
	switch format {
	case FormatJSON:
		file, err = codec.ParseJSON(data)
	case FormatCSV:
		file, err = codec.ParseCSVLong(data)
	case FormatSurvey:
		file, err = codec.ParseSurvey(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	result := codec.Import(s.currentStore(), file, s.Signature(), opts)
	s.log.WithFields(logrus.Fields{
		"action": "overlay.import", "format": format, "strategy": opts.Strategy,
		"added": result.Added, "updated": result.Updated, "dropped": result.Dropped,
		"warnings": len(result.Warnings), "dry_run": opts.DryRun,
	}).Info("audit")
	return result, nil
}

// Export serializes the store in the given format and records the
// export marker so unexported changes can be flagged later. The
// survey format needs a loaded model.
func (s *Session) Export(format string, tagKeys []string) ([]byte, string, error) {
	m, _, store, signature := s.snapshot()

	var data []byte
	var contentType string
	var err error
	switch format {
	case FormatJSON:
		var hint *codec.ModelHint
		if signature != "" {
			name := ""
			if m != nil {
				name = m.Name
			}
			hint = &codec.ModelHint{Name: name, Signature: signature}
		}
		data, err = codec.ExportJSON(store, hint)
		contentType = "application/json"
	case FormatCSV:
		data, err = codec.ExportCSVLong(store)
		contentType = "text/csv"
	case FormatSurvey:
		if m == nil {
			return nil, "", ErrNoModel
		}
		data, err = codec.ExportSurvey(m, store, signature, tagKeys)
		contentType = "text/csv"
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, "", err
	}

	if signature != "" {
		marker := persist.ExportMarker{ExportedAt: time.Now().UTC(), Version: store.Version()}
		if err := persist.SaveMarker(s.kv, signature, marker); err != nil {
			s.log.WithError(err).Warn("recording export marker failed")
		}
	}
	s.log.WithFields(logrus.Fields{"action": "overlay.export", "format": format}).Info("audit")
	return data, contentType, nil
}

// ExportStatus reports whether the store has changed since the last
// export.
type ExportStatus struct {
	Version    uint64     `json:"version"`
	ExportedAt *time.Time `json:"exported_at,omitempty"`
	Dirty      bool       `json:"dirty"`
}

// Status compares the live store version with the export marker.
func (s *Session) Status() ExportStatus {
	store := s.currentStore()
	status := ExportStatus{Version: store.Version(), Dirty: store.Version() > 0}

	marker, ok := persist.LoadMarker(s.kv, s.Signature())
	if ok {
		t := marker.ExportedAt
		status.ExportedAt = &t
		status.Dirty = store.Version() != marker.Version
	}
	return status
}

// Flush forces any pending persistence write.
func (s *Session) Flush() {
	if s.saver != nil {
		s.saver.Flush()
	}
}

// Close flushes pending writes and detaches the store subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()
	if s.saver != nil {
		s.saver.Close()
	}
}
