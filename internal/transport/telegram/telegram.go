// Package telegram delivers text to a Telegram chat through telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"eventbell/internal/transport"
)

const (
	Name      = "telegram"
	textLimit = 4000
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int    // forum topic, 0 for none
	BaseURL  string // default api.telegram.org
	Timeout  time.Duration

	HTTPClient *http.Client
}

type Channel struct {
	cfg Config
	bot *tele.Bot
	err error // bot construction error, surfaced by Configured
}

func New(cfg Config) *Channel {
	cfg.Token = strings.TrimSpace(cfg.Token)
	c := &Channel{cfg: cfg}
	if cfg.Token == "" {
		return c
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	// Offline skips getMe; this channel only sends.
	c.bot, c.err = tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		Client:  client,
		Offline: true,
	})
	return c
}

func (c *Channel) Name() string { return Name }

func (c *Channel) Configured() error {
	switch {
	case c.cfg.Token == "":
		return transport.NotConfigured(Name, "bot token is empty")
	case c.cfg.ChatID == 0:
		return transport.NotConfigured(Name, "chat id is empty")
	case c.err != nil:
		return transport.NotConfigured(Name, c.err.Error())
	}
	return nil
}

func (c *Channel) Deliver(ctx context.Context, text string) error {
	if c.bot == nil {
		return &transport.DeliveryError{Channel: Name, Reason: "bot not initialized", Err: c.err}
	}
	to := tele.ChatID(c.cfg.ChatID)
	opt := &tele.SendOptions{ThreadID: c.cfg.ThreadID, DisableWebPagePreview: true}

	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return &transport.DeliveryError{Channel: Name, Reason: "cancelled", Err: err}
		}
		if _, err := c.bot.Send(to, chunk, opt); err != nil {
			return deliveryError(err)
		}
	}
	return nil
}

func deliveryError(err error) error {
	de := &transport.DeliveryError{Channel: Name, Reason: err.Error(), Err: err}
	var te *tele.Error
	if errors.As(err, &te) {
		de.Status = te.Code
		de.Reason = te.Description
	}
	return de
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that do not leave tiny chunks.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
