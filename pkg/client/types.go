package client

import "time"

// Record mirrors one record served by the API: an operating system
// process annotated with the ports it is listening on.
type Record struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Owner  string   `json:"owner"`
	Ports  []string `json:"ports,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

// Validity describes the snapshot state reported by the daemon
type Validity struct {
	State       string    `json:"state"`
	Valid       bool      `json:"valid"`
	Records     int       `json:"records"`
	LastRefresh time.Time `json:"last_refresh"`
	Age         string    `json:"age,omitempty"`
	TTL         string    `json:"ttl"`
}

// RefreshResult reports the outcome of a forced refresh
type RefreshResult struct {
	OK      bool `json:"ok"`
	Records int  `json:"records"`
}

// Event is one journal entry returned by the journal endpoint
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Trigger    string    `json:"trigger,omitempty"`
	Records    int       `json:"records,omitempty"`
	TookMS     int64     `json:"took_ms,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
