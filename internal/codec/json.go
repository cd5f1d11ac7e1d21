package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pwa-modeller/overlay/internal/overlay"
)

// ParseJSON decodes an overlay interchange document. This is the one
// boundary that fails hard: malformed JSON or a wrong format marker
// returns an error instead of warnings.
func ParseJSON(data []byte) (*File, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing overlay file: %w", err)
	}
	if file.Format != Format {
		return nil, fmt.Errorf("unsupported overlay format %q (expected %q)", file.Format, Format)
	}
	return &file, nil
}

// ExportJSON serializes the store into the interchange document,
// entries sorted by id.
func ExportJSON(store *overlay.Store, hint *ModelHint) ([]byte, error) {
	file := BuildFile(store, hint)
	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling overlay file: %w", err)
	}
	return out, nil
}

// BuildFile snapshots the store into the interchange structure.
func BuildFile(store *overlay.Store, hint *ModelHint) *File {
	entries := store.List()
	wire := make([]WireEntry, len(entries))
	for i, e := range entries {
		wire[i] = toWire(e)
	}
	return &File{
		Format:        Format,
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		ModelHint:     hint,
		Entries:       wire,
	}
}

func toWire(e overlay.Entry) WireEntry {
	we := WireEntry{
		EntryID: e.EntryID,
		Target:  WireTarget{Kind: string(e.Target.Kind)},
		Tags:    e.Tags,
		Meta:    e.Meta,
	}
	if we.Tags == nil {
		we.Tags = map[string]any{}
	}
	for _, p := range e.Target.Refs {
		we.Target.ExternalRefs = append(we.Target.ExternalRefs, p.Ref())
	}
	return we
}
