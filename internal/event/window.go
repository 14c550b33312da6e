package event

import (
	"math"
	"time"
)

// Window is the position of an instant relative to an event's notification window.
type Window int

const (
	TooEarly Window = iota
	Eligible
	Expired
)

func (w Window) String() string {
	switch w {
	case TooEarly:
		return "too_early"
	case Eligible:
		return "eligible"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// maxLeadMinutes is the largest lead time a time.Duration can hold.
const maxLeadMinutes = math.MaxInt64 / int64(time.Minute)

// LeadTime converts a lead time in minutes to a Duration. Values too large for
// a Duration saturate instead of wrapping negative.
func LeadTime(minutes int) time.Duration {
	if minutes <= 0 {
		return 0
	}
	if int64(minutes) > maxLeadMinutes {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(minutes) * time.Minute
}

// NotifyAt is scheduledAt minus the lead time.
func NotifyAt(scheduledAt time.Time, before time.Duration) time.Time {
	if before < 0 {
		before = 0
	}
	return scheduledAt.Add(-before)
}

// Evaluate places now against the half-open window [notify_at, scheduled_at).
// The scheduled instant itself is Expired.
func Evaluate(now, scheduledAt time.Time, before time.Duration) Window {
	if !now.Before(scheduledAt) {
		return Expired
	}
	if now.Before(NotifyAt(scheduledAt, before)) {
		return TooEarly
	}
	return Eligible
}
