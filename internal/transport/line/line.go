// Package line delivers text through the LINE Messaging API push endpoint.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eventbell/internal/httpauth"
	"eventbell/internal/transport"
)

const (
	Name           = "line"
	DefaultBaseURL = "https://api.line.me"
	pushPath       = "/v2/bot/message/push"
	// LINE rejects text messages longer than this many characters.
	textLimit = 5000
)

type Config struct {
	Token   string
	UserID  string
	BaseURL string
	Timeout time.Duration

	// HTTPClient overrides the base client (tests).
	HTTPClient *http.Client
}

type Channel struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Channel {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Channel{cfg: cfg, http: httpauth.Client(cfg.Token, cfg.Timeout, cfg.HTTPClient)}
}

func (c *Channel) Name() string { return Name }

// ValidUserID reports whether id looks like a LINE user id ("U" followed by the id body).
func ValidUserID(id string) bool {
	return len(id) > 1 && strings.HasPrefix(id, "U")
}

func (c *Channel) Configured() error {
	switch {
	case c.cfg.Token == "":
		return transport.NotConfigured(Name, "channel access token is empty")
	case c.cfg.UserID == "":
		return transport.NotConfigured(Name, "user id is empty")
	case !ValidUserID(c.cfg.UserID):
		return transport.NotConfigured(Name, fmt.Sprintf("invalid user id %q: must start with U", c.cfg.UserID))
	}
	return nil
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type errorResponse struct {
	Message string `json:"message"`
	Details []struct {
		Message  string `json:"message"`
		Property string `json:"property"`
	} `json:"details"`
}

func (c *Channel) Deliver(ctx context.Context, text string) error {
	if r := []rune(text); len(r) > textLimit {
		text = string(r[:textLimit])
	}
	body, err := json.Marshal(pushRequest{
		To:       c.cfg.UserID,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return &transport.DeliveryError{Channel: Name, Reason: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+pushPath, bytes.NewReader(body))
	if err != nil {
		return &transport.DeliveryError{Channel: Name, Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &transport.DeliveryError{Channel: Name, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		de := &transport.DeliveryError{
			Channel: Name,
			Status:  resp.StatusCode,
			Reason:  http.StatusText(resp.StatusCode),
			Body:    transport.TruncateBody(raw),
		}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Message != "" {
			de.Reason = er.Message
			if len(er.Details) > 0 && er.Details[0].Message != "" {
				de.Reason += " (" + er.Details[0].Property + ": " + er.Details[0].Message + ")"
			}
		}
		return de
	}
	return nil
}
