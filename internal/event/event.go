// Package event holds the reminder domain model: the Event record as read from
// the store, the per-record decode result, and the notification window.
package event

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformed marks a record that could not be turned into an Event.
var ErrMalformed = errors.New("malformed event record")

// Event is a scheduled event owned by the external store.
// This system reads it and flips Notified, nothing else.
type Event struct {
	ID    string
	Title string // empty when the store has no title

	// ScheduledAt is normalized to the working timezone.
	ScheduledAt time.Time

	// NotifyBefore is nil when the store value is absent or negative.
	NotifyBefore *int

	Notified bool
}

// DisplayTitle returns the title or placeholder when the title is absent.
func (e Event) DisplayTitle(placeholder string) string {
	if e.Title == "" {
		return placeholder
	}
	return e.Title
}

// NotifyBeforeOr resolves the lead time in minutes.
// The second value reports whether def was substituted.
func (e Event) NotifyBeforeOr(def int) (int, bool) {
	if e.NotifyBefore == nil || *e.NotifyBefore < 0 {
		return def, true
	}
	return *e.NotifyBefore, false
}

// Record is the typed result of decoding one store row.
// Exactly one of Event and Err is set; ID is set whenever the store returned one.
type Record struct {
	ID    string
	Event *Event
	Err   error
}

// OK wraps a decoded event.
func OK(e Event) Record { return Record{ID: e.ID, Event: &e} }

// Malformed builds a failed Record. The reason is wrapped with ErrMalformed.
func Malformed(id, format string, args ...any) Record {
	return Record{ID: id, Err: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}

// Malformed reports whether the record failed to decode.
func (r Record) Malformed() bool { return r.Err != nil || r.Event == nil }

// Minutes is a small helper for building NotifyBefore literals.
func Minutes(n int) *int { return &n }
