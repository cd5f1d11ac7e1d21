package overlay

import "github.com/google/uuid"

// NewEntryID allocates a fresh entry id. Imports call this whenever a
// file omits an id or the id is already taken by an unrelated entry.
func NewEntryID() string {
	return "ov-" + uuid.New().String()
}
