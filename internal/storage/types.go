package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"eventbell/internal/event"
)

var (
	// ErrQuery wraps any failure to read events from the store.
	ErrQuery = errors.New("store query failed")
	// ErrUpdate wraps any failure to write the notified flag.
	ErrUpdate = errors.New("store update failed")
)

// Store is the event store used by the reminder core.
type Store interface {
	// QueryRange returns events with scheduled_at in [Start, End) and the given
	// notified flag, ascending by scheduled_at. Nil bounds are open.
	QueryRange(ctx context.Context, q RangeQuery) ([]event.Record, error)
	// QueryUnnotifiedBefore returns notified=false events with scheduled_at < t.
	QueryUnnotifiedBefore(ctx context.Context, t time.Time) ([]event.Record, error)
	// SetNotified writes the notified flag of a single event.
	SetNotified(ctx context.Context, id string, v bool) error
	Close() error
}

type RangeQuery struct {
	Start    *time.Time
	End      *time.Time
	Notified bool
}

// Config configures storage.
//
// Driver values:
//   - "notion": Notion database (token + database id required)
//   - "sqlite": SQLite database file
type Config struct {
	Driver string
	// Location is the working timezone every scheduled_at is normalized to.
	Location *time.Location

	Notion NotionConfig
	SQLite SQLiteConfig
}

type NotionConfig struct {
	Token      string
	DatabaseID string
	BaseURL    string // default "https://api.notion.com"
	Version    string // Notion-Version header, default "2022-06-28"
	Timeout    time.Duration
	PageSize   int

	Properties NotionProperties

	// HTTPClient overrides the base client (tests).
	HTTPClient *http.Client
}

// NotionProperties names the database columns.
type NotionProperties struct {
	Title        string
	ScheduledAt  string
	NotifyBefore string
	Notified     string
}

type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// APIError is a non-2xx answer from a remote store.
type APIError struct {
	Service    string
	StatusCode int
	Code       string
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Service, e.Endpoint, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Service, e.Endpoint, e.StatusCode, e.Message)
}
