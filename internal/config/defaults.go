package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = DefaultTimezone
	}
	if len(c.Channels.Priority) == 0 {
		c.Channels.Priority = append([]string(nil), DefaultPriority...)
	}
	for i, p := range c.Channels.Priority {
		c.Channels.Priority[i] = strings.ToLower(strings.TrimSpace(p))
	}
	if c.Reminder.DefaultNotifyBeforeMinutes == nil {
		n := DefaultNotifyBeforeMinutes
		c.Reminder.DefaultNotifyBeforeMinutes = &n
	}
	if c.Reminder.UntitledPlaceholder == "" {
		c.Reminder.UntitledPlaceholder = DefaultUntitledPlaceholder
	}
	if c.Daily.Enabled == nil {
		on := true
		c.Daily.Enabled = &on
	}
	if strings.TrimSpace(c.Schedule.Spec) == "" {
		c.Schedule.Spec = DefaultScheduleSpec
	}
	if strings.TrimSpace(c.Status.Addr) == "" {
		c.Status.Addr = DefaultStatusAddr
	}
	if c.Status.HistorySize <= 0 {
		c.Status.HistorySize = DefaultStatusHistory
	}
}

// Env names read by ApplyEnv.
const (
	EnvNotionToken      = "NOTION_TOKEN"
	EnvNotionDatabaseID = "NOTION_DATABASE_ID"
	EnvLineToken        = "LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineUserID       = "LINE_USER_ID"
	EnvSlackToken       = "SLACK_BOT_TOKEN"
	EnvSlackChannelID   = "SLACK_CHANNEL_ID"
	EnvTelegramToken    = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
)

// ApplyEnv overlays non-empty environment values onto credentials.
// getenv defaults to os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Store.Notion.Token, EnvNotionToken)
	set(&c.Store.Notion.DatabaseID, EnvNotionDatabaseID)
	set(&c.Channels.Line.Token, EnvLineToken)
	set(&c.Channels.Line.UserID, EnvLineUserID)
	set(&c.Channels.Slack.Token, EnvSlackToken)
	set(&c.Channels.Slack.ChannelID, EnvSlackChannelID)
	set(&c.Channels.Telegram.Token, EnvTelegramToken)

	if v := strings.TrimSpace(getenv(EnvTelegramChatID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: %w", EnvTelegramChatID, v, err)
		}
		c.Channels.Telegram.ChatID = id
	}
	return nil
}

// Location loads the working timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// DailyEnabled reports daily.enabled with its default applied.
func (c *Config) DailyEnabled() bool { return c.Daily.Enabled == nil || *c.Daily.Enabled }

// NotifyBefore reports reminder.default_notify_before_minutes with its default applied.
func (c *Config) NotifyBefore() int {
	if c.Reminder.DefaultNotifyBeforeMinutes == nil {
		return DefaultNotifyBeforeMinutes
	}
	return *c.Reminder.DefaultNotifyBeforeMinutes
}

// Validate checks a defaulted config. Missing store credentials wrap ErrConfigMissing.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "notion":
		if strings.TrimSpace(c.Store.Notion.Token) == "" {
			return fmt.Errorf("%w: store.notion.token (or %s)", ErrConfigMissing, EnvNotionToken)
		}
		if strings.TrimSpace(c.Store.Notion.DatabaseID) == "" {
			return fmt.Errorf("%w: store.notion.database_id (or %s)", ErrConfigMissing, EnvNotionDatabaseID)
		}
		if _, err := ParseDurationField("store.notion.timeout", c.Store.Notion.Timeout); err != nil {
			return err
		}
		if c.Store.Notion.PageSize < 0 || c.Store.Notion.PageSize > 100 {
			return fmt.Errorf("store.notion.page_size must be between 1 and 100")
		}
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Store.SQLite.Path) == "" {
			return fmt.Errorf("%w: store.sqlite.path", ErrConfigMissing)
		}
		if _, err := ParseDurationField("store.sqlite.busy_timeout", c.Store.SQLite.BusyTimeout); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("%w: store.driver", ErrConfigMissing)
	default:
		return fmt.Errorf("unknown store.driver: %s", c.Store.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Daily.Hour < 0 || c.Daily.Hour > 23 {
		return fmt.Errorf("daily.hour must be 0-23, got %d", c.Daily.Hour)
	}
	if c.Daily.Minute < 0 || c.Daily.Minute > 59 {
		return fmt.Errorf("daily.minute must be 0-59, got %d", c.Daily.Minute)
	}
	if c.NotifyBefore() < 0 {
		return fmt.Errorf("reminder.default_notify_before_minutes must be >= 0")
	}

	seen := map[string]bool{}
	for _, name := range c.Channels.Priority {
		if !slices.Contains(KnownChannels, name) {
			return fmt.Errorf("channels.priority: unknown channel %q", name)
		}
		if seen[name] {
			return fmt.Errorf("channels.priority: duplicate channel %q", name)
		}
		seen[name] = true
	}
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"channels.line.rate_per_sec", c.Channels.Line.RatePerSec},
		{"channels.slack.rate_per_sec", c.Channels.Slack.RatePerSec},
		{"channels.telegram.rate_per_sec", c.Channels.Telegram.RatePerSec},
	} {
		if r.v < 0 {
			return fmt.Errorf("%s must be >= 0", r.name)
		}
	}

	if _, err := ParseDurationField("schedule.run_timeout", c.Schedule.RunTimeout); err != nil {
		return err
	}
	return nil
}
