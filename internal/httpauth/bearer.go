// Package httpauth builds HTTP clients for token-authenticated JSON APIs
// (Notion, LINE Messaging API, Slack Web API).
package httpauth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single API call when the caller does not set one.
const DefaultTimeout = 15 * time.Second

// Client returns an *http.Client that sends token as "Authorization: Bearer <token>".
//
// base may be nil; its Transport is reused when set (tests pass httptest clients).
func Client(token string, timeout time.Duration, base *http.Client) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(token), TokenType: "Bearer"})
	c := oauth2.NewClient(ctx, ts)
	c.Timeout = timeout
	return c
}
