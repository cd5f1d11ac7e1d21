// Package overlay implements the overlay store: a secondary,
// independently versioned layer of key/value tags bound to
// primary-model objects through stable external identifiers.
//
// The store is a mechanical index, not a policy layer. It never
// returns errors; malformed input is silently ignored and validation
// is the responsibility of the import codecs and API layer above it.
package overlay

import (
	"sort"
	"strings"
	"sync"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
)

// Tags is an entry's tag map. Values are opaque JSON-serializable
// data; the store indexes by key only and never interprets values.
type Tags map[string]any

// Target describes what an entry is bound to: an object kind plus a
// set of normalized external refs.
type Target struct {
	Kind model.Kind     `json:"kind"`
	Refs []extref.Parts `json:"refs"`
}

// Entry is one overlay record.
type Entry struct {
	EntryID string         `json:"entryId"`
	Target  Target         `json:"target"`
	Tags    Tags           `json:"tags"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Keys returns the canonical keys of the entry's refs, in ref order.
func (e *Entry) Keys() []string {
	return extref.Keys(e.Target.Refs)
}

// clone copies the entry so callers never alias store-owned maps.
func (e *Entry) clone() Entry {
	out := *e
	out.Target.Refs = append([]extref.Parts(nil), e.Target.Refs...)
	out.Tags = cloneTags(e.Tags)
	if e.Meta != nil {
		out.Meta = make(map[string]any, len(e.Meta))
		for k, v := range e.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// UpsertInput is the payload for Store.Upsert.
type UpsertInput struct {
	EntryID string
	Kind    model.Kind
	Refs    []extref.Ref
	// Tags replaces the entry's tag map when non-nil; nil keeps the
	// existing tags on update and means empty on create.
	Tags Tags
	// Meta replaces the entry's meta when non-nil.
	Meta map[string]any
}

// Store is the authoritative in-memory table of overlay entries. One
// store instance is scoped to one loaded primary model; on model
// switch callers Clear and re-Hydrate it.
//
// The refIndex (canonical key -> entry id set) is derived state: every
// mutation diffs the entry's new key set against its previous one and
// applies only the delta, so the index always matches the entries.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	refIndex map[string]map[string]struct{}
	version  uint64

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewStore creates an empty overlay store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*Entry),
		refIndex: make(map[string]map[string]struct{}),
		subs:     make(map[int]func()),
	}
}

// Upsert creates or replaces an entry and returns its id. Callers are
// responsible for entry-id collision avoidance on import; a provided
// id is always honored. Input with an invalid kind or with no valid
// refs after normalization is ignored and "" is returned. Tags and
// Meta are only replaced when non-nil, so a target-only upsert keeps
// an existing entry's tags.
func (s *Store) Upsert(input UpsertInput) string {
	if !input.Kind.Valid() {
		return ""
	}
	refs := extref.Normalize(input.Refs)
	if len(refs) == 0 {
		return ""
	}
	id := input.EntryID
	if id == "" {
		id = NewEntryID()
	}

	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok {
		entry = &Entry{EntryID: id, Tags: Tags{}}
		s.entries[id] = entry
	}
	prevKeys := keySetOf(entry)
	entry.Target = Target{Kind: input.Kind, Refs: refs}
	if input.Tags != nil {
		entry.Tags = normalizeTags(input.Tags)
	}
	if input.Meta != nil {
		entry.Meta = input.Meta
	}
	s.reindex(id, prevKeys, keySetOf(entry))
	s.bumpLocked()
	s.mu.Unlock()

	s.notify()
	return id
}

// SetTag sets one tag on an entry. The key is trimmed; empty keys and
// missing entries are ignored without a version bump.
func (s *Store) SetTag(entryID, key string, value any) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	s.mu.Lock()
	entry, ok := s.entries[entryID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if entry.Tags == nil {
		entry.Tags = Tags{}
	}
	entry.Tags[key] = value
	s.bumpLocked()
	s.mu.Unlock()

	s.notify()
}

// SetTags replaces an entry's whole tag map, normalizing keys. Used by
// bulk editors. Missing entries are ignored.
func (s *Store) SetTags(entryID string, tags Tags) {
	s.mu.Lock()
	entry, ok := s.entries[entryID]
	if !ok {
		s.mu.Unlock()
		return
	}
	entry.Tags = normalizeTags(tags)
	s.bumpLocked()
	s.mu.Unlock()

	s.notify()
}

// RemoveTag removes one tag key from an entry. Missing entries and
// missing keys are ignored; the version only bumps when the entry exists.
func (s *Store) RemoveTag(entryID, key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	s.mu.Lock()
	entry, ok := s.entries[entryID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(entry.Tags, key)
	s.bumpLocked()
	s.mu.Unlock()

	s.notify()
}

// Delete removes an entry and purges it from every refIndex bucket it
// occupied. Missing entries are ignored.
func (s *Store) Delete(entryID string) {
	s.mu.Lock()
	entry, ok := s.entries[entryID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.reindex(entryID, keySetOf(entry), nil)
	delete(s.entries, entryID)
	s.bumpLocked()
	s.mu.Unlock()

	s.notify()
}

// Clear empties the store with a single version bump.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.refIndex = make(map[string]map[string]struct{})
	s.bumpLocked()
	s.mu.Unlock()

	s.notify()
}

// Hydrate atomically replaces the store contents, used by persistence
// restore. Entries without an id are skipped; refs are re-normalized
// and entries left with no refs are skipped too. One version bump for
// the whole batch.
func (s *Store) Hydrate(entries []Entry) {
	s.mu.Lock()
	s.entries = make(map[string]*Entry, len(entries))
	s.refIndex = make(map[string]map[string]struct{})
	for i := range entries {
		e := entries[i].clone()
		if e.EntryID == "" || !e.Target.Kind.Valid() {
			continue
		}
		e.Target.Refs = extref.NormalizeParts(e.Target.Refs)
		if len(e.Target.Refs) == 0 {
			continue
		}
		e.Tags = normalizeTags(e.Tags)
		s.entries[e.EntryID] = &e
		s.reindex(e.EntryID, nil, keySetOf(&e))
	}
	s.bumpLocked()
	s.mu.Unlock()

	s.notify()
}

// Get returns a copy of one entry.
func (s *Store) Get(entryID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return Entry{}, false
	}
	return entry.clone(), true
}

// List returns copies of all entries, sorted by entry id.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// FindByExternalKey returns the ids of every entry carrying the given
// canonical key, sorted for determinism.
func (s *Store) FindByExternalKey(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.refIndex[key]
	if len(bucket) == 0 {
		return nil
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Version returns the strictly increasing mutation counter. Observers
// compare versions to detect "did anything change" without deep
// comparison.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers a listener invoked synchronously after every
// version bump, and returns its unsubscribe function.
func (s *Store) Subscribe(listener func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = listener
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) bumpLocked() {
	s.version++
}

// notify runs outside the entry lock so listeners can read back from
// the store.
func (s *Store) notify() {
	s.subMu.Lock()
	listeners := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// reindex applies the key-set delta for one entry id to the refIndex.
func (s *Store) reindex(entryID string, prev, next map[string]struct{}) {
	for key := range prev {
		if _, keep := next[key]; keep {
			continue
		}
		bucket := s.refIndex[key]
		delete(bucket, entryID)
		if len(bucket) == 0 {
			delete(s.refIndex, key)
		}
	}
	for key := range next {
		if _, had := prev[key]; had {
			continue
		}
		bucket, ok := s.refIndex[key]
		if !ok {
			bucket = make(map[string]struct{})
			s.refIndex[key] = bucket
		}
		bucket[entryID] = struct{}{}
	}
}

func keySetOf(e *Entry) map[string]struct{} {
	if len(e.Target.Refs) == 0 {
		return nil
	}
	return extref.KeySet(e.Target.Refs)
}

func normalizeTags(tags Tags) Tags {
	out := make(Tags, len(tags))
	for k, v := range tags {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func cloneTags(tags Tags) Tags {
	out := make(Tags, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
