// Package transport defines the outbound messaging channel contract and the
// error types channels report with.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by Configured when credentials are missing or invalid.
var ErrNotConfigured = errors.New("channel not configured")

// Channel is one outbound messaging channel.
type Channel interface {
	Name() string
	// Configured reports nil when the channel has usable credentials.
	// The returned error wraps ErrNotConfigured and names what is missing.
	Configured() error
	Deliver(ctx context.Context, text string) error
}

// NotConfigured builds an ErrNotConfigured with a reason.
func NotConfigured(channel, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrNotConfigured, channel, reason)
}

// DeliveryError is a delivery attempt the remote side rejected (or that never reached it).
type DeliveryError struct {
	Channel string
	Status  int    // HTTP status, 0 when the request failed before a response
	Reason  string // remote error code or short description
	Body    string // truncated response body
	Err     error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	b.WriteString(e.Channel)
	b.WriteString(" delivery failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// MaxBody bounds how much of a response body is kept on a DeliveryError.
const MaxBody = 2048

// TruncateBody trims a response body for diagnostics.
func TruncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > MaxBody {
		cut := MaxBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}

type limited struct {
	Channel
	lim *rate.Limiter
}

// Limited wraps ch so Deliver waits on lim first. A nil lim returns ch unchanged.
func Limited(ch Channel, lim *rate.Limiter) Channel {
	if ch == nil || lim == nil {
		return ch
	}
	return &limited{Channel: ch, lim: lim}
}

// NewLimiter returns a limiter for perSec sends per second, or nil when perSec <= 0.
func NewLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func (l *limited) Deliver(ctx context.Context, text string) error {
	if err := l.lim.Wait(ctx); err != nil {
		return &DeliveryError{Channel: l.Name(), Reason: "rate limit wait", Err: err}
	}
	return l.Channel.Deliver(ctx, text)
}
