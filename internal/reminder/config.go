package reminder

import (
	"context"
	"time"

	"eventbell/internal/event"
	"eventbell/internal/storage"
)

const (
	DefaultNotifyBeforeMinutes = 30
	DefaultUntitledPlaceholder = "(untitled)"

	individualTimeLayout = "2006-01-02 15:04"
	summaryTimeLayout    = "15:04"
	dayLayout            = "2006-01-02"
)

type Config struct {
	// DefaultNotifyBefore is the lead time in minutes used when an event has none.
	// 0 is a valid lead time (an empty window); pass a negative value to get
	// DefaultNotifyBeforeMinutes.
	DefaultNotifyBefore int

	DailyEnabled bool
	DailyHour    int
	DailyMinute  int

	// Location is the working timezone; nil means UTC.
	Location *time.Location

	UntitledPlaceholder string
}

func (c Config) withDefaults() Config {
	if c.DefaultNotifyBefore < 0 {
		c.DefaultNotifyBefore = DefaultNotifyBeforeMinutes
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.UntitledPlaceholder == "" {
		c.UntitledPlaceholder = DefaultUntitledPlaceholder
	}
	return c
}

// EventStore is the subset of storage.Store the core needs.
type EventStore interface {
	QueryRange(ctx context.Context, q storage.RangeQuery) ([]event.Record, error)
	QueryUnnotifiedBefore(ctx context.Context, t time.Time) ([]event.Record, error)
	SetNotified(ctx context.Context, id string, v bool) error
}

// Notifier delivers formatted messages; notifier.Dispatcher implements it.
type Notifier interface {
	Dispatch(ctx context.Context, title, when string, summary bool) bool
	Announce(ctx context.Context, text string) bool
}

// Clock returns the current instant.
type Clock func() time.Time
