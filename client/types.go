package client

import "time"

// Ref is an external reference in packed scheme form.
type Ref struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// RefParts is a normalized external reference.
type RefParts struct {
	System string `json:"system"`
	Scope  string `json:"scope,omitempty"`
	ID     string `json:"id"`
}

// Target describes what an entry is bound to.
type Target struct {
	Kind string     `json:"kind"`
	Refs []RefParts `json:"refs"`
}

// Entry is one overlay record.
type Entry struct {
	EntryID string         `json:"entryId"`
	Target  Target         `json:"target"`
	Tags    map[string]any `json:"tags"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// UpsertEntryRequest creates or updates an entry.
type UpsertEntryRequest struct {
	EntryID string         `json:"entryId,omitempty"`
	Kind    string         `json:"kind"`
	Refs    []Ref          `json:"refs"`
	Tags    map[string]any `json:"tags,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ModelInfo summarises the loaded model.
type ModelInfo struct {
	Name          string `json:"name,omitempty"`
	Signature     string `json:"signature"`
	Elements      int    `json:"elements"`
	Relationships int    `json:"relationships"`
	ExternalKeys  int    `json:"external_keys"`
	Entries       int    `json:"entries"`
}

// TargetRef names one object inside the loaded model.
type TargetRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Collision is a model-side external-key collision.
type Collision struct {
	Key     string      `json:"key"`
	Kind    string      `json:"kind"`
	Targets []TargetRef `json:"targets"`
}

// Attachment records an entry attached to exactly one target.
type Attachment struct {
	EntryID     string    `json:"entryId"`
	Target      TargetRef `json:"target"`
	MatchedKeys []string  `json:"matchedKeys"`
}

// Orphan records an entry none of whose keys matched anything.
type Orphan struct {
	EntryID   string   `json:"entryId"`
	TriedKeys []string `json:"triedKeys"`
}

// Ambiguity records an entry matching more than one target.
type Ambiguity struct {
	EntryID    string      `json:"entryId"`
	Candidates []TargetRef `json:"candidates"`
}

// ResolutionCounts summarises a resolution.
type ResolutionCounts struct {
	Attached  int `json:"attached"`
	Orphan    int `json:"orphan"`
	Ambiguous int `json:"ambiguous"`
	Total     int `json:"total"`
}

// Resolution classifies every overlay entry.
type Resolution struct {
	Attached  []Attachment     `json:"attached"`
	Orphan    []Orphan         `json:"orphan"`
	Ambiguous []Ambiguity      `json:"ambiguous"`
	Counts    ResolutionCounts `json:"counts"`
}

// TaggedValue is one effective key/value annotation.
type TaggedValue struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	Namespace string `json:"namespace,omitempty"`
}

// OverlayMatch describes how overlay entries matched a target.
type OverlayMatch struct {
	State    string   `json:"state"`
	EntryIDs []string `json:"entryIds,omitempty"`
}

// Effective is the merged tag view for one model object.
type Effective struct {
	Target                TargetRef      `json:"target"`
	EffectiveTaggedValues []TaggedValue  `json:"effectiveTaggedValues"`
	OverlayTags           map[string]any `json:"overlayTags"`
	OverlayMatch          OverlayMatch   `json:"overlayMatch"`
	OverriddenCoreKeys    []string       `json:"overriddenCoreKeys"`
}

// RebindRequest repoints an entry at a chosen model target.
type RebindRequest struct {
	Kind             string `json:"kind"`
	TargetID         string `json:"targetId"`
	PreferUniqueRefs bool   `json:"preferUniqueRefs"`
}

// RebindResult reports the outcome of a rebind.
type RebindResult struct {
	EntryID     string     `json:"entryId"`
	Target      TargetRef  `json:"target"`
	Refs        []RefParts `json:"refs"`
	UsedUnique  bool       `json:"usedUnique"`
	DroppedRefs int        `json:"droppedRefs"`
}

// ImportWarning is a non-fatal import diagnostic.
type ImportWarning struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	EntryIDs []string `json:"entryIds,omitempty"`
}

// ImportResult summarises the outcome of an import.
type ImportResult struct {
	Added    int             `json:"added"`
	Updated  int             `json:"updated"`
	Dropped  int             `json:"dropped"`
	Warnings []ImportWarning `json:"warnings,omitempty"`
}

// ExportStatus reports whether the store changed since the last export.
type ExportStatus struct {
	Version    uint64     `json:"version"`
	ExportedAt *time.Time `json:"exported_at,omitempty"`
	Dirty      bool       `json:"dirty"`
}

// HealthResponse is the liveness check payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	ModelLoaded   bool    `json:"model_loaded"`
	Signature     string  `json:"signature,omitempty"`
	WSClients     int     `json:"ws_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}
