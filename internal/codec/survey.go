package codec

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
)

// signatureMarker starts the first row of a survey file, so a
// re-imported survey can be checked against the live model.
const signatureMarker = "#model_signature"

// surveyFixedHeader is the fixed column prefix of the wide survey
// form; one column per requested tag key follows it.
var surveyFixedHeader = []string{
	"kind", "target_id", "ref_scheme", "ref_scope", "ref_value", "name", "type",
}

// ExportSurvey writes one row per model target with the overlay tags
// currently attached to it, one column per tag key. With no explicit
// key list, the union of all overlay tag keys is used, sorted. The
// survey is meant to be filled in by humans and re-imported.
func ExportSurvey(m *model.Model, store *overlay.Store, signature string, tagKeys []string) ([]byte, error) {
	if len(tagKeys) == 0 {
		tagKeys = allTagKeys(store)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{signatureMarker, signature}); err != nil {
		return nil, fmt.Errorf("writing signature row: %w", err)
	}
	if err := w.Write(append(append([]string{}, surveyFixedHeader...), tagKeys...)); err != nil {
		return nil, fmt.Errorf("writing survey header: %w", err)
	}

	writeTarget := func(ref model.TargetRef, name, typ string) error {
		eff := overlay.EffectiveTags(m, store, ref)
		scheme, scope, value := "", "", ""
		if refs := m.ExternalRefs(ref); len(refs) > 0 {
			scheme, scope, value = refs[0].System, refs[0].Scope, refs[0].ID
		}
		row := []string{string(ref.Kind), ref.ID, scheme, scope, value, name, typ}
		for _, key := range tagKeys {
			if v, ok := eff.OverlayTags[key]; ok {
				row = append(row, displayValue(v))
			} else {
				row = append(row, "")
			}
		}
		return w.Write(row)
	}

	for _, id := range sortedIDs(m.Elements) {
		el := m.Elements[id]
		if err := writeTarget(model.TargetRef{Kind: model.KindElement, ID: id}, el.Name, el.Type); err != nil {
			return nil, fmt.Errorf("writing survey row: %w", err)
		}
	}
	for _, id := range sortedIDs(m.Relationships) {
		rel := m.Relationships[id]
		if err := writeTarget(model.TargetRef{Kind: model.KindRelationship, ID: id}, rel.Name, rel.Type); err != nil {
			return nil, fmt.Errorf("writing survey row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing survey: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseSurvey decodes a wide survey file. The delimiter (comma,
// semicolon, or tab) is auto-detected from the header. Rows with no
// usable ref become entries with zero refs, which the import then
// drops with a warning; rows with no filled tag cells produce entries
// with empty tag maps.
func ParseSurvey(data []byte) (*File, error) {
	delim := detectDelimiter(data)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing survey: %w", err)
	}

	file := &File{
		Format:        Format,
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().UTC(),
	}

	if len(records) > 0 && len(records[0]) > 0 && records[0][0] == signatureMarker {
		if len(records[0]) > 1 && records[0][1] != "" {
			file.ModelHint = &ModelHint{Signature: records[0][1]}
		}
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("survey file has no header row")
	}

	cols, err := headerIndex(records[0], surveyFixedHeader)
	if err != nil {
		return nil, err
	}
	tagCols := surveyTagColumns(records[0])

	for _, rec := range records[1:] {
		get := func(i int) string {
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		entry := WireEntry{
			Target: WireTarget{Kind: get(cols["kind"])},
			Tags:   map[string]any{},
		}
		system, scope, value := get(cols["ref_scheme"]), get(cols["ref_scope"]), get(cols["ref_value"])
		if system != "" || value != "" {
			entry.Target.ExternalRefs = []extref.Ref{extref.Make(system, scope, value).Ref()}
		}
		for _, tc := range tagCols {
			if cell := get(tc.index); cell != "" {
				entry.Tags[tc.key] = parseSurveyCell(cell)
			}
		}
		file.Entries = append(file.Entries, entry)
	}

	return file, nil
}

type tagColumn struct {
	key   string
	index int
}

func surveyTagColumns(header []string) []tagColumn {
	fixed := make(map[string]struct{}, len(surveyFixedHeader))
	for _, name := range surveyFixedHeader {
		fixed[name] = struct{}{}
	}
	var out []tagColumn
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, isFixed := fixed[name]; isFixed {
			continue
		}
		out = append(out, tagColumn{key: name, index: i})
	}
	return out
}

// detectDelimiter picks the candidate occurring most often in the
// first non-marker line.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
		// The marker row has few fields; prefer the header line.
		if bytes.HasPrefix(data, []byte(signatureMarker)) {
			rest := data[i+1:]
			if j := bytes.IndexByte(rest, '\n'); j >= 0 {
				line = rest[:j]
			} else {
				line = rest
			}
		}
	}

	best, bestCount := ',', 0
	for _, cand := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(cand))); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}

// parseSurveyCell interprets a filled survey cell: valid JSON is taken
// as-is, anything else stays a plain string.
func parseSurveyCell(cell string) any {
	trimmed := strings.TrimSpace(cell)
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	return cell
}

func allTagKeys(store *overlay.Store) []string {
	set := make(map[string]struct{})
	for _, e := range store.List() {
		for k := range e.Tags {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
