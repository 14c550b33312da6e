// Package slack delivers text through the Slack Web API chat.postMessage method.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"eventbell/internal/httpauth"
	"eventbell/internal/transport"
)

const (
	Name           = "slack"
	DefaultBaseURL = "https://slack.com"
	postPath       = "/api/chat.postMessage"
)

type Config struct {
	Token     string
	ChannelID string
	BaseURL   string
	Timeout   time.Duration

	HTTPClient *http.Client
}

type Channel struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Channel {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChannelID = strings.TrimSpace(cfg.ChannelID)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Channel{cfg: cfg, http: httpauth.Client(cfg.Token, cfg.Timeout, cfg.HTTPClient)}
}

func (c *Channel) Name() string { return Name }

func (c *Channel) Configured() error {
	if c.cfg.Token == "" {
		return transport.NotConfigured(Name, "bot token is empty")
	}
	if c.cfg.ChannelID == "" {
		return transport.NotConfigured(Name, "channel id is empty")
	}
	return nil
}

type postMessage struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Slack answers 200 for most failures and reports them in the body.
type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Warning string `json:"warning"`
}

func (c *Channel) Deliver(ctx context.Context, text string) error {
	body, err := json.Marshal(postMessage{Channel: c.cfg.ChannelID, Text: text})
	if err != nil {
		return &transport.DeliveryError{Channel: Name, Reason: "marshal request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+postPath, bytes.NewReader(body))
	if err != nil {
		return &transport.DeliveryError{Channel: Name, Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return &transport.DeliveryError{Channel: Name, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ar apiResponse
	decodeErr := json.Unmarshal(raw, &ar)

	if resp.StatusCode >= 300 {
		reason := http.StatusText(resp.StatusCode)
		if decodeErr == nil && ar.Error != "" {
			reason = ar.Error
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			reason += " (retry after " + ra + "s)"
		}
		return &transport.DeliveryError{Channel: Name, Status: resp.StatusCode, Reason: reason, Body: transport.TruncateBody(raw)}
	}
	if decodeErr != nil {
		return &transport.DeliveryError{Channel: Name, Status: resp.StatusCode, Reason: "invalid response", Body: transport.TruncateBody(raw), Err: decodeErr}
	}
	if !ar.OK {
		reason := ar.Error
		if reason == "" {
			reason = "unknown_error"
		}
		return &transport.DeliveryError{Channel: Name, Status: resp.StatusCode, Reason: reason, Body: transport.TruncateBody(raw)}
	}
	return nil
}
