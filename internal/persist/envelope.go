package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/codec"
	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
)

// Envelope versions and key prefixes. The storage key embeds the
// model signature so each model variant keeps its own overlay data.
const (
	EnvelopeVersion = 2

	keyPrefixV2  = "overlay:v2:"
	keyPrefixV1  = "overlay:v1:"
	markerPrefix = "overlayExportMarker:"
)

// Envelope is the stored form of an overlay snapshot.
type Envelope struct {
	V             int             `json:"v"`
	Signature     string          `json:"signature"`
	SavedAt       time.Time       `json:"savedAt"`
	SchemaVersion int             `json:"schemaVersion"`
	Entries       []overlay.Entry `json:"entries"`
}

// envelopeV1 is the legacy stored form: no envelope version field and
// entries in the interchange wire shape with packed scheme refs.
type envelopeV1 struct {
	Signature     string           `json:"signature"`
	SavedAt       time.Time        `json:"savedAt"`
	SchemaVersion int              `json:"schemaVersion"`
	Entries       []codec.WireEntry `json:"entries"`
}

// Save writes the store snapshot under the current envelope key.
func Save(kv KV, signature string, entries []overlay.Entry) error {
	env := Envelope{
		V:             EnvelopeVersion,
		Signature:     signature,
		SavedAt:       time.Now().UTC(),
		SchemaVersion: codec.SchemaVersion,
		Entries:       entries,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}
	if err := kv.Set(keyPrefixV2+signature, string(data)); err != nil {
		return fmt.Errorf("writing envelope: %w", err)
	}
	return nil
}

// Load reads the persisted overlay for a signature. It tries the
// current envelope key first, then transparently migrates a legacy v1
// envelope (rewriting it under the current key and best-effort
// deleting the old one). Malformed payloads, missing required fields,
// and signature mismatches all mean "no persisted overlay": Load
// returns nil rather than failing, and the caller starts empty.
func Load(kv KV, log *logrus.Logger, signature string) []overlay.Entry {
	if raw, ok, err := kv.Get(keyPrefixV2 + signature); err == nil && ok {
		if entries := decodeV2(log, raw, signature); entries != nil {
			return entries
		}
	} else if err != nil {
		log.WithError(err).Warn("reading persisted overlay failed")
		return nil
	}

	raw, ok, err := kv.Get(keyPrefixV1 + signature)
	if err != nil || !ok {
		return nil
	}
	entries := decodeV1(log, raw, signature)
	if entries == nil {
		return nil
	}

	// Migrate forward so the next load takes the fast path.
	if err := Save(kv, signature, entries); err != nil {
		log.WithError(err).Warn("migrating legacy overlay envelope failed")
	} else if err := kv.Delete(keyPrefixV1 + signature); err != nil {
		log.WithError(err).Warn("deleting legacy overlay envelope failed")
	}
	return entries
}

func decodeV2(log *logrus.Logger, raw, signature string) []overlay.Entry {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.WithError(err).Warn("persisted overlay envelope is malformed, ignoring")
		return nil
	}
	if env.V != EnvelopeVersion || env.Signature == "" {
		log.WithFields(logrus.Fields{"v": env.V}).Warn("persisted overlay envelope has unexpected shape, ignoring")
		return nil
	}
	if env.Signature != signature {
		log.WithFields(logrus.Fields{
			"stored": env.Signature, "requested": signature,
		}).Warn("persisted overlay signature mismatch, ignoring")
		return nil
	}
	return env.Entries
}

func decodeV1(log *logrus.Logger, raw, signature string) []overlay.Entry {
	var env envelopeV1
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.WithError(err).Warn("legacy overlay envelope is malformed, ignoring")
		return nil
	}
	if env.Signature != signature {
		return nil
	}

	entries := make([]overlay.Entry, 0, len(env.Entries))
	for _, we := range env.Entries {
		kind := model.Kind(we.Target.Kind)
		refs := extref.Normalize(we.Target.ExternalRefs)
		if we.EntryID == "" || !kind.Valid() || len(refs) == 0 {
			continue
		}
		entries = append(entries, overlay.Entry{
			EntryID: we.EntryID,
			Target:  overlay.Target{Kind: kind, Refs: refs},
			Tags:    overlay.Tags(we.Tags),
			Meta:    we.Meta,
		})
	}
	return entries
}

// ExportMarker records when the overlay was last exported and at which
// store version, so the UI can flag unexported changes.
type ExportMarker struct {
	ExportedAt time.Time `json:"exportedAt"`
	Version    uint64    `json:"version"`
}

// SaveMarker records an export under the signature's marker key.
func SaveMarker(kv KV, signature string, marker ExportMarker) error {
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("marshalling export marker: %w", err)
	}
	if err := kv.Set(markerPrefix+signature, string(data)); err != nil {
		return fmt.Errorf("writing export marker: %w", err)
	}
	return nil
}

// LoadMarker reads the export marker for a signature, ok=false when
// absent or unreadable.
func LoadMarker(kv KV, signature string) (ExportMarker, bool) {
	raw, ok, err := kv.Get(markerPrefix + signature)
	if err != nil || !ok {
		return ExportMarker{}, false
	}
	var marker ExportMarker
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		return ExportMarker{}, false
	}
	return marker, true
}

// LegacyKey exposes the v1 key layout for tests.
func LegacyKey(signature string) string { return keyPrefixV1 + signature }

// CurrentKey exposes the v2 key layout for tests.
func CurrentKey(signature string) string { return keyPrefixV2 + signature }
