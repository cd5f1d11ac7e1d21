package ws

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Event types pushed to connected clients.
const (
	EventOverlayChanged = "overlay.changed"
	EventModelLoaded    = "model.loaded"
)

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

// OverlayChangedData is the payload of an overlay.changed event.
type OverlayChangedData struct {
	Version    uint64 `json:"version"`
	EntryCount int    `json:"entry_count"`
}

// ModelLoadedData is the payload of a model.loaded event.
type ModelLoadedData struct {
	Signature string `json:"signature"`
}

// SubscribeMsg is sent by the client on connect to request event replay.
type SubscribeMsg struct {
	Type        string `json:"type"`
	LastEventID uint64 `json:"last_event_id"`
}

// ResetMsg tells the client to do a full refresh (requested events too old).
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// EventSequence hands out monotonic event IDs.
type EventSequence struct {
	counter atomic.Uint64
}

// Next returns the next sequence number.
func (es *EventSequence) Next() uint64 {
	return es.counter.Add(1)
}
