package reminder

import (
	"context"
	"fmt"
	"time"

	"eventbell/internal/event"
	"eventbell/internal/storage"
	logx "eventbell/pkg/logx"
)

// DailySummary sends the once-a-day overview of the current day's pending
// events. It never marks events notified: each event still gets its own
// reminder later.
type DailySummary struct {
	cfg      Config
	store    EventStore
	notifier Notifier
	log      logx.Logger
}

func NewDailySummary(cfg Config, store EventStore, n Notifier, log logx.Logger) *DailySummary {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DailySummary{cfg: cfg.withDefaults(), store: store, notifier: n, log: log}
}

// Due reports whether now sits on the daily boundary at minute granularity.
func (d *DailySummary) Due(now time.Time) bool {
	if !d.cfg.DailyEnabled {
		return false
	}
	local := now.In(d.cfg.Location)
	return local.Hour() == d.cfg.DailyHour && local.Minute() == d.cfg.DailyMinute
}

// DayRange returns [start of day, start of next day) for t's calendar date in loc.
func DayRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// RunIfDue sends the summary when now is on the boundary and reports whether it ran.
func (d *DailySummary) RunIfDue(ctx context.Context, now time.Time) (bool, error) {
	if !d.Due(now) {
		return false, nil
	}
	return true, d.Run(ctx, now)
}

// Run sends the summary for now's calendar date unconditionally.
func (d *DailySummary) Run(ctx context.Context, now time.Time) error {
	start, end := DayRange(now, d.cfg.Location)
	recs, err := d.store.QueryRange(ctx, storage.RangeQuery{Start: &start, End: &end, Notified: false})
	if err != nil {
		return fmt.Errorf("daily summary: %w", err)
	}
	day := start.Format(dayLayout)

	// untitled and malformed records never make it into the summary, so an
	// empty day is decided after filtering them out
	items := make([]*event.Event, 0, len(recs))
	for _, rec := range recs {
		switch {
		case rec.Malformed():
			d.log.Warn("daily summary skipped malformed event", logx.String("event_id", rec.ID), logx.Err(rec.Err))
		case rec.Event.Title == "":
			d.log.Warn("daily summary skipped untitled event", logx.String("event_id", rec.ID))
		default:
			items = append(items, rec.Event)
		}
	}

	if len(items) == 0 {
		if !d.notifier.Announce(ctx, fmt.Sprintf("No events scheduled for %s", day)) {
			d.log.Warn("daily summary empty-day message not delivered", logx.String("day", day))
		}
		d.log.Info("daily summary sent", logx.String("day", day), logx.Int("events", 0))
		return nil
	}

	if !d.notifier.Announce(ctx, fmt.Sprintf("=== Events for %s ===", day)) {
		d.log.Warn("daily summary header not delivered", logx.String("day", day))
	}
	sent := 0
	for _, ev := range items {
		when := ev.ScheduledAt.In(d.cfg.Location).Format(summaryTimeLayout)
		if d.notifier.Dispatch(ctx, ev.Title, when, true) {
			sent++
		} else {
			d.log.Warn("daily summary item not delivered", logx.String("event_id", ev.ID))
		}
	}
	d.log.Info("daily summary sent", logx.String("day", day), logx.Int("events", len(items)), logx.Int("delivered", sent))
	return nil
}
