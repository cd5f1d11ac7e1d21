// Package model defines the read-only view of the primary
// enterprise-architecture model that the overlay layer consumes, plus
// the derived external-id index and the model signature.
//
// The overlay system never mutates the primary model. Everything here
// is either a plain data type or a pure function over one.
package model

import (
	"github.com/pwa-modeller/overlay/internal/extref"
)

// Kind distinguishes the two taggable object families.
type Kind string

const (
	KindElement      Kind = "element"
	KindRelationship Kind = "relationship"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindElement || k == KindRelationship
}

// ExternalID is one external identifier carried by a model object.
type ExternalID struct {
	System string `json:"system"`
	Scope  string `json:"scope,omitempty"`
	ID     string `json:"id"`
}

// Parts converts to the extref triple form.
func (e ExternalID) Parts() extref.Parts {
	return extref.Make(e.System, e.Scope, e.ID)
}

// TaggedValue is one core key/value annotation owned by the primary model.
type TaggedValue struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	Namespace string `json:"namespace,omitempty"`
}

// Element is an ArchiMate-style model element.
type Element struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	ExternalIDs  []ExternalID  `json:"externalIds,omitempty"`
	TaggedValues []TaggedValue `json:"taggedValues,omitempty"`
}

// Relationship connects two model elements.
type Relationship struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Name         string        `json:"name,omitempty"`
	Source       string        `json:"source"`
	Target       string        `json:"target"`
	ExternalIDs  []ExternalID  `json:"externalIds,omitempty"`
	TaggedValues []TaggedValue `json:"taggedValues,omitempty"`
}

// Model is the primary model as the overlay layer sees it.
type Model struct {
	Name          string                   `json:"name,omitempty"`
	Elements      map[string]*Element      `json:"elements"`
	Relationships map[string]*Relationship `json:"relationships"`
}

// NewModel returns an empty model with allocated maps.
func NewModel() *Model {
	return &Model{
		Elements:      make(map[string]*Element),
		Relationships: make(map[string]*Relationship),
	}
}

// TargetRef names one object inside the current model. It is never
// persisted; internal ids are only stable within one loaded model.
type TargetRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// ExternalRefs returns the normalized, deduplicated external refs of
// the object named by ref, or nil if the object does not exist.
func (m *Model) ExternalRefs(ref TargetRef) []extref.Parts {
	ids, ok := m.externalIDs(ref)
	if !ok {
		return nil
	}
	parts := make([]extref.Parts, len(ids))
	for i, e := range ids {
		parts[i] = e.Parts()
	}
	return extref.NormalizeParts(parts)
}

// TaggedValuesOf returns the core tagged values of the object named by
// ref, or nil if the object does not exist.
func (m *Model) TaggedValuesOf(ref TargetRef) []TaggedValue {
	switch ref.Kind {
	case KindElement:
		if el, ok := m.Elements[ref.ID]; ok {
			return el.TaggedValues
		}
	case KindRelationship:
		if rel, ok := m.Relationships[ref.ID]; ok {
			return rel.TaggedValues
		}
	}
	return nil
}

// Has reports whether the object named by ref exists in the model.
func (m *Model) Has(ref TargetRef) bool {
	_, ok := m.externalIDs(ref)
	return ok
}

func (m *Model) externalIDs(ref TargetRef) ([]ExternalID, bool) {
	switch ref.Kind {
	case KindElement:
		if el, ok := m.Elements[ref.ID]; ok {
			return el.ExternalIDs, true
		}
	case KindRelationship:
		if rel, ok := m.Relationships[ref.ID]; ok {
			return rel.ExternalIDs, true
		}
	}
	return nil, false
}
