// Package codec serializes the overlay store to and from portable
// files: a JSON interchange format, a long-form CSV (one row per
// entry/tag pair), and a wide "survey" CSV (one row per model target).
//
// Parsing a structurally invalid payload is the only boundary that
// returns an error; individual bad entries inside a well-formed file
// are dropped with warnings and import always proceeds.
package codec

import (
	"time"

	"github.com/pwa-modeller/overlay/internal/extref"
)

// Format is the interchange format identifier carried by JSON files.
const Format = "pwa-modeller-overlay@1"

// SchemaVersion is the current overlay schema version written to files.
const SchemaVersion = 2

// Warning codes emitted by imports.
const (
	WarnDroppedInvalidEntry = "dropped-invalid-entry"
	WarnSignatureMismatch   = "signature-mismatch"
	WarnMergeConflict       = "merge-conflict-multiple-existing"
)

// Warning is a non-fatal import diagnostic. Warnings never block the
// operation; they exist so the user can audit what the import did.
type Warning struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	EntryIDs []string `json:"entryIds,omitempty"`
}

// ModelHint optionally names the model a file was exported from, used
// for signature mismatch detection on import.
type ModelHint struct {
	Name      string `json:"name,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// WireTarget is the serialized form of an entry's binding.
type WireTarget struct {
	Kind         string       `json:"kind"`
	ExternalRefs []extref.Ref `json:"externalRefs"`
}

// WireEntry is the serialized form of one overlay entry.
type WireEntry struct {
	EntryID string         `json:"entryId,omitempty"`
	Target  WireTarget     `json:"target"`
	Tags    map[string]any `json:"tags"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// File is the parsed form of an overlay interchange document,
// regardless of which codec produced it.
type File struct {
	Format        string      `json:"format"`
	SchemaVersion int         `json:"schemaVersion"`
	CreatedAt     time.Time   `json:"createdAt"`
	ModelHint     *ModelHint  `json:"modelHint,omitempty"`
	Entries       []WireEntry `json:"entries"`
}

// Import strategies.
const (
	StrategyMerge   = "merge"
	StrategyReplace = "replace"
)

// ImportOptions controls how a parsed file is applied to the store.
type ImportOptions struct {
	// Strategy is "merge" (default) or "replace".
	Strategy string `json:"strategy"`
	// DryRun computes the result and warnings without mutating the store.
	DryRun bool `json:"dry_run"`
}

// ImportResult summarises the outcome of an import.
type ImportResult struct {
	Added    int       `json:"added"`
	Updated  int       `json:"updated"`
	Dropped  int       `json:"dropped"`
	Warnings []Warning `json:"warnings,omitempty"`
}
