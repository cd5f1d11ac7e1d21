package model

import (
	"encoding/json"
	"fmt"
)

// modelFile is the JSON wire form of a primary model: flat arrays, as
// produced by the modeller's export. Internal maps are rebuilt on load.
type modelFile struct {
	Name          string         `json:"name,omitempty"`
	Elements      []Element      `json:"elements"`
	Relationships []Relationship `json:"relationships"`
}

// Parse decodes a primary-model JSON document. Objects with an empty
// id are rejected; duplicate ids keep the last occurrence.
func Parse(data []byte) (*Model, error) {
	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing model document: %w", err)
	}

	m := NewModel()
	m.Name = file.Name
	for i := range file.Elements {
		el := file.Elements[i]
		if el.ID == "" {
			return nil, fmt.Errorf("element[%d] has an empty id", i)
		}
		m.Elements[el.ID] = &el
	}
	for i := range file.Relationships {
		rel := file.Relationships[i]
		if rel.ID == "" {
			return nil, fmt.Errorf("relationship[%d] has an empty id", i)
		}
		m.Relationships[rel.ID] = &rel
	}
	return m, nil
}

// Marshal encodes a model back into the flat-array wire form with
// objects sorted by id, so output is stable.
func Marshal(m *Model) ([]byte, error) {
	file := modelFile{Name: m.Name}
	for _, id := range sortedKeys(m.Elements) {
		file.Elements = append(file.Elements, *m.Elements[id])
	}
	for _, id := range sortedKeys(m.Relationships) {
		file.Relationships = append(file.Relationships, *m.Relationships[id])
	}
	return json.MarshalIndent(file, "", "  ")
}
