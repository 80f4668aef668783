package models

import "time"

// ISOLayout renders a naive local timestamp: no UTC offset, the zone is attached downstream.
const ISOLayout = "2006-01-02T15:04:05"

// Event represents a point-in-time reminder stored on a remote calendar.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID       string    // Opaque identifier assigned by the remote store
	Summary  string    // Title of the reminder
	Start    time.Time // Start of the reminder
	End      time.Time // Equal to Start for reminders created by memocal
	TimeZone string    // IANA zone identifier, e.g. "America/Los_Angeles"
}

// Reminder is a request to create an Event.
type Reminder struct {
	Summary  string
	Start    time.Time
	End      time.Time
	TimeZone string
	// Key is an optional client-side idempotency key. Backends that support
	// client-assigned identifiers use it so a repeated insert is rejected
	// instead of creating a duplicate.
	Key string
}

// Extraction is the outcome of parsing a transcript.
type Extraction struct {
	// Timestamp is nil when no date/time phrase was recognized or it did not parse.
	// When set, it holds wall-clock fields only; its location carries no meaning.
	Timestamp   *time.Time
	Description string
}

// Dated reports whether a timestamp was recovered.
func (e Extraction) Dated() bool {
	return e.Timestamp != nil
}

// ISO returns the timestamp in ISO-8601 form without offset, or "" when absent.
func (e Extraction) ISO() string {
	if e.Timestamp == nil {
		return ""
	}
	return e.Timestamp.Format(ISOLayout)
}
