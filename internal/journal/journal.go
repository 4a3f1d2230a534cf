package journal

import (
	"context"
	"time"
)

// EventType defines the kind of journal entry.
type EventType string

const (
	EventRefreshSucceeded EventType = "refresh_succeeded"
	EventRefreshFailed    EventType = "refresh_failed"
	EventRecordRemoved    EventType = "record_removed"
)

// Event is a single journal entry describing a snapshot change. Refresh
// events carry Trigger, Records and TookMS; removal events carry RecordID.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Trigger    string    `json:"trigger,omitempty"`
	Records    int       `json:"records,omitempty"`
	TookMS     int64     `json:"took_ms,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for journal events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Purger is implemented by sinks that can delete entries older than a
// cutoff. It reports how many entries were removed.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reader is implemented by sinks that can list recent entries, newest
// first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
