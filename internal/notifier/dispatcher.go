package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventbell/internal/transport"
	logx "eventbell/pkg/logx"
)

const (
	individualFormat = "\nUpcoming event\nTitle: %s\nWhen: %s"
	summaryFormat    = "Event: %s\nTime: %s"

	defaultHistorySize = 50
)

// FormatIndividual renders a single upcoming-event reminder.
func FormatIndividual(title, when string) string { return fmt.Sprintf(individualFormat, title, when) }

// FormatSummary renders one line-item of the daily summary.
func FormatSummary(title, when string) string { return fmt.Sprintf(summaryFormat, title, when) }

type HistoryItem struct {
	At      time.Time `json:"at"`
	Channel string    `json:"channel,omitempty"` // empty when nothing delivered
	OK      bool      `json:"ok"`
	Summary bool      `json:"summary"`
	Error   string    `json:"error,omitempty"`
}

// Dispatcher is safe for concurrent use, though runs call it sequentially.
type Dispatcher struct {
	channels []transport.Channel
	log      logx.Logger
	now      func() time.Time

	hmu     sync.Mutex
	history []HistoryItem
	hsize   int
}

type Option func(*Dispatcher)

// WithHistorySize bounds the in-memory delivery history (0 disables it).
func WithHistorySize(n int) Option { return func(d *Dispatcher) { d.hsize = n } }

func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// New returns a dispatcher over channels, already in priority order.
func New(channels []transport.Channel, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		channels: append([]transport.Channel(nil), channels...),
		log:      log,
		now:      time.Now,
		hsize:    defaultHistorySize,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch formats an event message and delivers it. It reports whether any channel accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, title, when string, summary bool) bool {
	text := FormatIndividual(title, when)
	if summary {
		text = FormatSummary(title, when)
	}
	return d.deliver(ctx, text, summary)
}

// Announce delivers pre-formatted text, such as the daily summary header.
func (d *Dispatcher) Announce(ctx context.Context, text string) bool {
	return d.deliver(ctx, text, true)
}

func (d *Dispatcher) deliver(ctx context.Context, text string, summary bool) bool {
	var (
		attempted int
		lastErr   error
	)
	for _, ch := range d.channels {
		if ch == nil {
			continue
		}
		name := ch.Name()
		if err := ch.Configured(); err != nil {
			d.log.Warn("channel skipped", logx.String("channel", name), logx.Err(err))
			continue
		}
		attempted++
		err := ch.Deliver(ctx, text)
		if err == nil {
			d.log.Debug("notification delivered", logx.String("channel", name), logx.Bool("summary", summary))
			d.record(HistoryItem{Channel: name, OK: true, Summary: summary})
			return true
		}
		lastErr = err
		d.logFailure(name, err)
	}

	item := HistoryItem{Summary: summary}
	if attempted == 0 {
		d.log.Error("no configured channel", logx.Int("channels", len(d.channels)))
		item.Error = "no configured channel"
	} else {
		d.log.Error("all channels failed", logx.Int("attempted", attempted), logx.Err(lastErr))
		item.Error = lastErr.Error()
	}
	d.record(item)
	return false
}

func (d *Dispatcher) logFailure(name string, err error) {
	fields := []logx.Field{logx.String("channel", name), logx.Err(err)}
	var de *transport.DeliveryError
	if errors.As(err, &de) {
		if de.Status != 0 {
			fields = append(fields, logx.Int("status", de.Status))
		}
		if de.Reason != "" {
			fields = append(fields, logx.String("reason", de.Reason))
		}
		if de.Body != "" {
			fields = append(fields, logx.String("body", de.Body))
		}
	}
	d.log.Warn("channel delivery failed", fields...)
}

func (d *Dispatcher) record(it HistoryItem) {
	if d.hsize <= 0 {
		return
	}
	it.At = d.now()
	d.hmu.Lock()
	d.history = append(d.history, it)
	if over := len(d.history) - d.hsize; over > 0 {
		d.history = append(d.history[:0:0], d.history[over:]...)
	}
	d.hmu.Unlock()
}

// History returns recent delivery outcomes, oldest first.
func (d *Dispatcher) History() []HistoryItem {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return append([]HistoryItem(nil), d.history...)
}

// Channels returns the channel names in priority order.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		if ch != nil {
			out = append(out, ch.Name())
		}
	}
	return out
}
