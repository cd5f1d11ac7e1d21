package codec

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/overlay"
)

// csvLongHeader is the fixed column set of the long CSV form: one row
// per (entry, tag key) pair.
var csvLongHeader = []string{
	"kind", "entry_id",
	"primary_ref_scheme", "primary_ref_value", "refs_json",
	"tag_key", "tag_value", "tag_value_json",
}

// ExportCSVLong writes the store as long-form CSV. Entries without
// tags still emit one row with empty tag columns so bare refs survive
// a round trip.
func ExportCSVLong(store *overlay.Store) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvLongHeader); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}

	for _, e := range store.List() {
		wire := toWire(e)
		refsJSON, err := json.Marshal(wire.Target.ExternalRefs)
		if err != nil {
			return nil, fmt.Errorf("marshalling refs of %s: %w", e.EntryID, err)
		}
		primaryScheme, primaryValue := "", ""
		if len(wire.Target.ExternalRefs) > 0 {
			primaryScheme = wire.Target.ExternalRefs[0].Scheme
			primaryValue = wire.Target.ExternalRefs[0].Value
		}
		base := []string{string(e.Target.Kind), e.EntryID, primaryScheme, primaryValue, string(refsJSON)}

		keys := make([]string, 0, len(e.Tags))
		for k := range e.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if len(keys) == 0 {
			if err := w.Write(append(base, "", "", "")); err != nil {
				return nil, fmt.Errorf("writing csv row: %w", err)
			}
			continue
		}
		for _, key := range keys {
			valueJSON, err := json.Marshal(e.Tags[key])
			if err != nil {
				return nil, fmt.Errorf("marshalling tag %q of %s: %w", key, e.EntryID, err)
			}
			row := append(base, key, displayValue(e.Tags[key]), string(valueJSON))
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("writing csv row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseCSVLong decodes long-form CSV back into an interchange file.
// Rows sharing an entry id (or, when the id column is empty, the same
// kind and ref set) fold into one entry.
func ParseCSVLong(data []byte) (*File, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}

	cols, err := headerIndex(records[0], csvLongHeader)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*WireEntry)
	var order []string
	for _, rec := range records[1:] {
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		refs := parseRefsJSON(get("refs_json"))
		if len(refs) == 0 && get("primary_ref_scheme") != "" {
			refs = []extref.Ref{{Scheme: get("primary_ref_scheme"), Value: get("primary_ref_value")}}
		}

		groupKey := get("entry_id")
		if groupKey == "" {
			groupKey = "\x00" + get("kind") + "\x00" + get("refs_json") + "\x00" + get("primary_ref_scheme") + "|" + get("primary_ref_value")
		}

		entry, ok := entries[groupKey]
		if !ok {
			entry = &WireEntry{
				EntryID: get("entry_id"),
				Target:  WireTarget{Kind: get("kind"), ExternalRefs: refs},
				Tags:    map[string]any{},
			}
			entries[groupKey] = entry
			order = append(order, groupKey)
		}

		if key := get("tag_key"); key != "" {
			entry.Tags[key] = parseCellValue(get("tag_value"), get("tag_value_json"))
		}
	}

	file := &File{
		Format:        Format,
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().UTC(),
	}
	for _, k := range order {
		file.Entries = append(file.Entries, *entries[k])
	}
	return file, nil
}

// headerIndex maps required column names to their positions.
func headerIndex(header, required []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", name)
		}
	}
	return cols, nil
}

func parseRefsJSON(s string) []extref.Ref {
	if s == "" {
		return nil
	}
	var refs []extref.Ref
	if err := json.Unmarshal([]byte(s), &refs); err != nil {
		return nil
	}
	return refs
}

// parseCellValue recovers a tag value from its two column encodings,
// preferring the lossless JSON column.
func parseCellValue(plain, asJSON string) any {
	if asJSON != "" {
		var v any
		if err := json.Unmarshal([]byte(asJSON), &v); err == nil {
			return v
		}
	}
	return plain
}

// displayValue renders a tag value for the human-readable column.
// Strings go out raw; everything else as JSON.
func displayValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}
