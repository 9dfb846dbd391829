package model

import "time"

// JournalEntry is one settled mutation as stored in the journal.
type JournalEntry struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	OrderIDs     []int64   `json:"order_ids"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	Operator     string    `json:"operator,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
	SettledAt    time.Time `json:"settled_at"`
}
