package app

import (
	"fmt"
	"strings"
	"time"

	"eventbell/internal/config"
	"eventbell/internal/httpauth"
	"eventbell/internal/notifier"
	"eventbell/internal/reminder"
	"eventbell/internal/storage"
	"eventbell/internal/transport"
	"eventbell/internal/transport/line"
	"eventbell/internal/transport/slack"
	"eventbell/internal/transport/telegram"
	logx "eventbell/pkg/logx"
)

// pipeline is everything one run needs. It is rebuilt as a unit when the
// store, channels or reminder settings change.
type pipeline struct {
	store      storage.Store
	dispatcher *notifier.Dispatcher
	orch       *reminder.Orchestrator
	loc        *time.Location
}

func (p *pipeline) Close() error {
	if p == nil || p.store == nil {
		return nil
	}
	return p.store.Close()
}

func buildPipeline(cfg *config.Config, log logx.Logger, opts ...reminder.Option) (*pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	channels, err := mapChannels(cfg)
	if err != nil {
		return nil, err
	}

	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	d := notifier.New(channels, log.With(logx.String("comp", "notifier")),
		notifier.WithHistorySize(cfg.Status.HistorySize))

	orch := reminder.New(reminder.Config{
		DefaultNotifyBefore: cfg.NotifyBefore(),
		DailyEnabled:        cfg.DailyEnabled(),
		DailyHour:           cfg.Daily.Hour,
		DailyMinute:         cfg.Daily.Minute,
		Location:            loc,
		UntitledPlaceholder: cfg.Reminder.UntitledPlaceholder,
	}, st, d, log.With(logx.String("comp", "reminder")), opts...)

	return &pipeline{store: st, dispatcher: d, orch: orch, loc: loc}, nil
}

func mapStorageConfig(cfg *config.Config, loc *time.Location) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	sc := storage.Config{Driver: driver, Location: loc}
	switch driver {
	case "notion":
		timeout, err := config.ParseDurationOrDefault("store.notion.timeout", cfg.Store.Notion.Timeout, httpauth.DefaultTimeout)
		if err != nil {
			return storage.Config{}, err
		}
		n := cfg.Store.Notion
		sc.Notion = storage.NotionConfig{
			Token:      n.Token,
			DatabaseID: n.DatabaseID,
			BaseURL:    n.BaseURL,
			Version:    n.Version,
			Timeout:    timeout,
			PageSize:   n.PageSize,
			Properties: storage.NotionProperties{
				Title:        n.Properties.Title,
				ScheduledAt:  n.Properties.ScheduledAt,
				NotifyBefore: n.Properties.NotifyBefore,
				Notified:     n.Properties.Notified,
			},
		}
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("store.sqlite.busy_timeout", cfg.Store.SQLite.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		sc.SQLite = storage.SQLiteConfig{Path: strings.TrimSpace(cfg.Store.SQLite.Path), BusyTimeout: busy}
	case "":
		return storage.Config{}, fmt.Errorf("%w: store.driver", config.ErrConfigMissing)
	default:
		return storage.Config{}, fmt.Errorf("unknown store.driver: %s", cfg.Store.Driver)
	}
	return sc, nil
}

// mapChannels returns channels in priority order, each behind its rate limiter.
func mapChannels(cfg *config.Config) ([]transport.Channel, error) {
	c := cfg.Channels
	out := make([]transport.Channel, 0, len(c.Priority))
	for _, name := range c.Priority {
		var (
			ch     transport.Channel
			perSec float64
		)
		switch name {
		case line.Name:
			ch = line.New(line.Config{Token: c.Line.Token, UserID: c.Line.UserID, BaseURL: c.Line.BaseURL})
			perSec = c.Line.RatePerSec
		case slack.Name:
			ch = slack.New(slack.Config{Token: c.Slack.Token, ChannelID: c.Slack.ChannelID, BaseURL: c.Slack.BaseURL})
			perSec = c.Slack.RatePerSec
		case telegram.Name:
			ch = telegram.New(telegram.Config{
				Token:    c.Telegram.Token,
				ChatID:   c.Telegram.ChatID,
				ThreadID: c.Telegram.ThreadID,
				BaseURL:  c.Telegram.BaseURL,
			})
			perSec = c.Telegram.RatePerSec
		default:
			return nil, fmt.Errorf("channels.priority: unknown channel %q", name)
		}
		out = append(out, transport.Limited(ch, transport.NewLimiter(perSec)))
	}
	return out, nil
}
