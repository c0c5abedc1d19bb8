package models

import "time"

// EventKind names a journaled monitor event.
type EventKind string

// Journaled event kinds.
const (
	EventPauseStarted       EventKind = "pause_started"
	EventPauseCleared       EventKind = "pause_cleared"
	EventConnectionLost     EventKind = "connection_lost"
	EventConnectionRestored EventKind = "connection_restored"
	EventSessionTerminated  EventKind = "session_terminated"
	EventStopFailed         EventKind = "stop_failed"
)

// MonitorEvent is one row of the monitor journal.
type MonitorEvent struct {
	ID         string    `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"session_id"`
	DeviceID   string    `db:"device_id" json:"device_id"`
	Kind       EventKind `db:"kind" json:"kind"`
	Reason     string    `db:"reason" json:"reason,omitempty"`
	Detail     string    `db:"detail" json:"detail,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	// Seq orders events that share a timestamp; later inserts get larger values.
	Seq int64 `db:"seq" json:"seq"`
}
