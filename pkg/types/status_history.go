package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StatusEntry is one transition recorded on an order, order item or return.
type StatusEntry struct {
	Status    string     `json:"status"`
	Comment   string     `json:"comment,omitempty"`
	ActorRole string     `json:"actor_role"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	At        time.Time  `json:"at"`
}

// StatusHistory is an append-only transition log stored as JSONB.
type StatusHistory []StatusEntry

// Append returns the history with entry added at the end.
func (h StatusHistory) Append(entry StatusEntry) StatusHistory {
	out := make(StatusHistory, len(h), len(h)+1)
	copy(out, h)
	return append(out, entry)
}

// Last returns the most recent entry.
func (h StatusHistory) Last() (StatusEntry, bool) {
	if len(h) == 0 {
		return StatusEntry{}, false
	}
	return h[len(h)-1], true
}

// Value serializes the history to JSON.
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the history.
func (h *StatusHistory) Scan(value interface{}) error {
	if value == nil {
		*h = StatusHistory{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded StatusHistory
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*h = decoded
	return nil
}
