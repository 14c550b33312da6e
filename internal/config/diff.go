package config

import (
	"reflect"
	"sort"
	"strings"

	logx "eventbell/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging. Secrets are reported only as "*_set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Store (never log tokens)
	oldS, newS := oldCfg.Store, newCfg.Store
	if oldS.Driver != newS.Driver ||
		oldS.Notion.DatabaseID != newS.Notion.DatabaseID ||
		oldS.Notion.BaseURL != newS.Notion.BaseURL ||
		oldS.Notion.Version != newS.Notion.Version ||
		oldS.Notion.Timeout != newS.Notion.Timeout ||
		oldS.Notion.PageSize != newS.Notion.PageSize ||
		oldS.Notion.Properties != newS.Notion.Properties ||
		oldS.Notion.Token != newS.Notion.Token ||
		oldS.SQLite != newS.SQLite {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.driver", newS.Driver),
			logx.Bool("store.notion.token_set", strings.TrimSpace(newS.Notion.Token) != ""),
			logx.Bool("store.notion.database_set", strings.TrimSpace(newS.Notion.DatabaseID) != ""),
			logx.Bool("store.sqlite.path_set", strings.TrimSpace(newS.SQLite.Path) != ""),
		)
	}

	oc, nc := oldCfg.Channels, newCfg.Channels
	if !reflect.DeepEqual(oc, nc) {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.Strings("channels.priority", nc.Priority),
			logx.Bool("channels.line.token_set", nc.Line.Token != ""),
			logx.Bool("channels.line.user_set", nc.Line.UserID != ""),
			logx.Bool("channels.slack.token_set", nc.Slack.Token != ""),
			logx.Bool("channels.slack.channel_set", nc.Slack.ChannelID != ""),
			logx.Bool("channels.telegram.token_set", nc.Telegram.Token != ""),
			logx.Bool("channels.telegram.chat_set", nc.Telegram.ChatID != 0),
		)
	}

	if oldCfg.NotifyBefore() != newCfg.NotifyBefore() ||
		oldCfg.Reminder.UntitledPlaceholder != newCfg.Reminder.UntitledPlaceholder {
		changed = append(changed, "reminder")
		attrs = append(attrs, logx.Int("reminder.default_notify_before_minutes", newCfg.NotifyBefore()))
	}

	if oldCfg.DailyEnabled() != newCfg.DailyEnabled() ||
		oldCfg.Daily.Hour != newCfg.Daily.Hour ||
		oldCfg.Daily.Minute != newCfg.Daily.Minute {
		changed = append(changed, "daily")
		attrs = append(attrs,
			logx.Bool("daily.enabled", newCfg.DailyEnabled()),
			logx.Int("daily.hour", newCfg.Daily.Hour),
			logx.Int("daily.minute", newCfg.Daily.Minute),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.spec", newCfg.Schedule.Spec),
			logx.String("schedule.run_timeout", newCfg.Schedule.RunTimeout),
		)
	}

	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", newCfg.Status.Addr),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// NeedsRebuild reports whether any changed section affects the run pipeline
// (store, channels or core settings) rather than only logging or status.
func NeedsRebuild(changed []string) bool {
	for _, s := range changed {
		switch s {
		case "logging", "status", "schedule":
		default:
			return true
		}
	}
	return false
}
