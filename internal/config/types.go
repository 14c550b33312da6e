package config

import "errors"

// ErrConfigMissing marks a required setting that is absent. It is fatal before any store query.
var ErrConfigMissing = errors.New("required configuration missing")

const (
	DefaultTimezone            = "Asia/Tokyo"
	DefaultScheduleSpec        = "* * * * *"
	DefaultStatusAddr          = "127.0.0.1:8089"
	DefaultStatusHistory       = 50
	DefaultNotifyBeforeMinutes = 30
	DefaultUntitledPlaceholder = "(untitled)"
)

// DefaultPriority is the channel fallback order when channels.priority is omitted.
var DefaultPriority = []string{"line", "slack"}

// KnownChannels lists the channel names accepted in channels.priority.
var KnownChannels = []string{"line", "slack", "telegram"}

type Config struct {
	// Timezone is the IANA working timezone all instants are normalized to.
	Timezone string `json:"timezone,omitempty"`

	Logging  LoggingConfig  `json:"logging"`
	Store    StoreConfig    `json:"store"`
	Channels ChannelsConfig `json:"channels"`
	Reminder ReminderConfig `json:"reminder"`
	Daily    DailyConfig    `json:"daily"`
	Schedule ScheduleConfig `json:"schedule"`
	Status   StatusConfig   `json:"status"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the event store.
//
// Example:
//
//	"store": { "driver": "notion", "notion": { "database_id": "..." } }
type StoreConfig struct {
	Driver string       `json:"driver"`
	Notion NotionConfig `json:"notion"`
	SQLite SQLiteConfig `json:"sqlite"`
}

type NotionConfig struct {
	Token      string `json:"token,omitempty"` // prefer NOTION_TOKEN; never logged
	DatabaseID string `json:"database_id,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Version    string `json:"version,omitempty"`
	// Timeout is a Go duration string (e.g. "15s").
	Timeout  string `json:"timeout,omitempty"`
	PageSize int    `json:"page_size,omitempty"`

	Properties NotionProperties `json:"properties"`
}

// NotionProperties names the database columns. Empty values use the defaults
// 名前 / 予定の日時 / 通知時間 / 通知済み.
type NotionProperties struct {
	Title        string `json:"title,omitempty"`
	ScheduledAt  string `json:"scheduled_at,omitempty"`
	NotifyBefore string `json:"notify_before,omitempty"`
	Notified     string `json:"notified,omitempty"`
}

type SQLiteConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type ChannelsConfig struct {
	// Priority is the fallback order; the first channel that delivers wins.
	Priority []string `json:"priority,omitempty"`

	Line     LineConfig     `json:"line"`
	Slack    SlackConfig    `json:"slack"`
	Telegram TelegramConfig `json:"telegram"`
}

type LineConfig struct {
	Token      string  `json:"token,omitempty"`
	UserID     string  `json:"user_id,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type SlackConfig struct {
	Token      string  `json:"token,omitempty"`
	ChannelID  string  `json:"channel_id,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type TelegramConfig struct {
	Token      string  `json:"token,omitempty"`
	ChatID     int64   `json:"chat_id,omitempty"`
	ThreadID   int     `json:"thread_id,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type ReminderConfig struct {
	// DefaultNotifyBeforeMinutes is a pointer so an explicit 0 survives defaulting.
	DefaultNotifyBeforeMinutes *int   `json:"default_notify_before_minutes,omitempty"`
	UntitledPlaceholder        string `json:"untitled_placeholder,omitempty"`
}

type DailyConfig struct {
	Enabled *bool `json:"enabled,omitempty"` // default true
	Hour    int   `json:"hour"`
	Minute  int   `json:"minute"`
}

// ScheduleConfig controls daemon mode triggering.
type ScheduleConfig struct {
	// Spec is a 5-field cron expression, a Go duration ("1m") or "HH:MM" interval.
	Spec string `json:"spec,omitempty"`
	// RunTimeout bounds one run (Go duration string); "0s" disables it.
	RunTimeout string `json:"run_timeout,omitempty"`
}

// StatusConfig controls the optional HTTP status endpoint.
//
// Prefer binding to localhost; the endpoint has no authentication.
type StatusConfig struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}
