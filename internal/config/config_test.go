package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func noEnv(string) string { return "" }

func parse(t *testing.T, name, body string, env func(string) string) (*Config, error) {
	t.Helper()
	m := NewConfigManager(writeFile(t, name, body))
	m.SetEnv(env)
	return m.Parse()
}

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := parse(t, "c.json", `{"store":{"driver":"sqlite","sqlite":{"path":"x.db"}}}`, noEnv)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Timezone != DefaultTimezone || cfg.Schedule.Spec != DefaultScheduleSpec {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.NotifyBefore() != 30 || !cfg.DailyEnabled() || cfg.Daily.Hour != 0 || cfg.Daily.Minute != 0 {
		t.Fatalf("reminder defaults: %+v %+v", cfg.Reminder, cfg.Daily)
	}
	if strings.Join(cfg.Channels.Priority, ",") != "line,slack" {
		t.Fatalf("priority = %v", cfg.Channels.Priority)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseYAMLAndExplicitZero(t *testing.T) {
	t.Parallel()
	body := `
timezone: UTC
store:
  driver: notion
  notion:
    database_id: db
    token: secret
reminder:
  default_notify_before_minutes: 0
daily:
  enabled: false
channels:
  priority: [Slack, telegram]
`
	cfg, err := parse(t, "c.yaml", body, noEnv)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.NotifyBefore() != 0 {
		t.Fatalf("explicit zero lost: %d", cfg.NotifyBefore())
	}
	if cfg.DailyEnabled() {
		t.Fatal("daily.enabled=false lost")
	}
	if strings.Join(cfg.Channels.Priority, ",") != "slack,telegram" {
		t.Fatalf("priority = %v", cfg.Channels.Priority)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseStrict(t *testing.T) {
	t.Parallel()
	if _, err := parse(t, "c.json", `{"store":{"driver":"sqlite"},"bogus":1}`, noEnv); err == nil {
		t.Fatal("unknown field must be rejected")
	}
	if _, err := parse(t, "c.json", `{"store":{}}{"store":{}}`, noEnv); err == nil {
		t.Fatal("trailing data must be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvNotionToken:      "env-token",
		EnvNotionDatabaseID: "env-db",
		EnvLineToken:        "line-token",
		EnvLineUserID:       "U123",
		EnvSlackToken:       "xoxb",
		EnvSlackChannelID:   "C1",
		EnvTelegramChatID:   "-100123",
	}
	cfg, err := parse(t, "c.json", `{"store":{"driver":"notion","notion":{"token":"file-token"}}}`, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Store.Notion.Token != "env-token" || cfg.Store.Notion.DatabaseID != "env-db" {
		t.Fatalf("notion overrides: %+v", cfg.Store.Notion)
	}
	if cfg.Channels.Line.UserID != "U123" || cfg.Channels.Slack.ChannelID != "C1" || cfg.Channels.Telegram.ChatID != -100123 {
		t.Fatalf("channel overrides: %+v", cfg.Channels)
	}

	_, err = parse(t, "c.json", `{}`, func(k string) string {
		if k == EnvTelegramChatID {
			return "abc"
		}
		return ""
	})
	if err == nil {
		t.Fatal("invalid chat id must fail")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := &Config{Store: StoreConfig{Driver: "notion", Notion: NotionConfig{Token: "t", DatabaseID: "d"}}}
		c.ApplyDefaults()
		return c
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		missing bool
	}{
		{name: "no token", mutate: func(c *Config) { c.Store.Notion.Token = "" }, missing: true},
		{name: "no database", mutate: func(c *Config) { c.Store.Notion.DatabaseID = "" }, missing: true},
		{name: "no driver", mutate: func(c *Config) { c.Store.Driver = "" }, missing: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, missing: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "csv" }},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{name: "bad hour", mutate: func(c *Config) { c.Daily.Hour = 24 }},
		{name: "bad minute", mutate: func(c *Config) { c.Daily.Minute = -1 }},
		{name: "negative lead", mutate: func(c *Config) { n := -5; c.Reminder.DefaultNotifyBeforeMinutes = &n }},
		{name: "unknown channel", mutate: func(c *Config) { c.Channels.Priority = []string{"line", "email"} }},
		{name: "duplicate channel", mutate: func(c *Config) { c.Channels.Priority = []string{"line", "line"} }},
		{name: "bad run timeout", mutate: func(c *Config) { c.Schedule.RunTimeout = "soon" }},
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrConfigMissing); got != tt.missing {
				t.Fatalf("errors.Is(ErrConfigMissing) = %v for %v", got, err)
			}
		})
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Store: StoreConfig{Driver: "notion", Notion: NotionConfig{Token: "old-secret"}}}
	newCfg := &Config{Store: StoreConfig{Driver: "notion", Notion: NotionConfig{Token: "new-secret"}}}
	newCfg.Channels.Slack.Token = "xoxb-secret"
	newCfg.Status.Enabled = true

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "channels,status,store" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if !NeedsRebuild(changed) {
		t.Fatal("store change requires a rebuild")
	}
	if NeedsRebuild([]string{"logging", "status"}) {
		t.Fatal("logging/status alone must not rebuild")
	}
}

func TestWatchPublishesValidChange(t *testing.T) {
	path := writeFile(t, "c.json", `{"store":{"driver":"sqlite","sqlite":{"path":"a.db"}}}`)
	m := NewConfigManager(path)
	m.SetEnv(noEnv)
	m.SetValidator(func(ctx context.Context, c *Config) error { return c.Validate() })
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// rejected by the validator: nothing published
	if err := os.WriteFile(path, []byte(`{"store":{"driver":"sqlite"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-sub:
		t.Fatalf("invalid config published: %+v", c.Store)
	case <-time.After(600 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(`{"store":{"driver":"sqlite","sqlite":{"path":"b.db"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-sub:
		if c.Store.SQLite.Path != "b.db" {
			t.Fatalf("published path = %q", c.Store.SQLite.Path)
		}
		if m.Get().Store.SQLite.Path != "b.db" {
			t.Fatal("published config not committed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config publish")
	}
}
