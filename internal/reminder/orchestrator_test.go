package reminder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"eventbell/internal/event"
	"eventbell/internal/storage"
	logx "eventbell/pkg/logx"
)

func TestRunDispatchesEligibleEventOnce(t *testing.T) {
	t.Parallel()
	loc := jst()
	now := at(loc, 2024, 6, 1, 9, 0)
	store := newMemStore(event.Event{ID: "A", Title: "Standup", ScheduledAt: at(loc, 2024, 6, 1, 9, 25), NotifyBefore: event.Minutes(30)})
	n := &recordingNotifier{}
	o := New(testConfig(loc), store, n, logx.Nop(), WithClock(fixedClock(now)))

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Dispatched != 1 || sum.Total != 1 || sum.RunID == "" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if n.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", n.count())
	}
	c := n.calls[0]
	if c.title != "Standup" || c.when != "2024-06-01 09:25" || c.summary {
		t.Fatalf("unexpected dispatch: %+v", c)
	}
	if !store.notified("A") {
		t.Fatal("event A should be marked notified")
	}

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("second pass delivered again: %d calls", n.count())
	}
}

func TestRunReconcilesPastEventWithoutDelivery(t *testing.T) {
	t.Parallel()
	loc := jst()
	now := at(loc, 2024, 6, 1, 9, 0)
	store := newMemStore(event.Event{ID: "B", Title: "Breakfast", ScheduledAt: at(loc, 2024, 6, 1, 8, 0)})
	n := &recordingNotifier{}

	sum, err := New(testConfig(loc), store, n, logx.Nop(), WithClock(fixedClock(now))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Reconciled != 1 || !store.notified("B") {
		t.Fatalf("event B should be reconciled: %+v", sum)
	}
	if n.count() != 0 {
		t.Fatalf("dispatcher invoked %d times for a past event", n.count())
	}
}

func TestRunCounters(t *testing.T) {
	t.Parallel()
	loc := jst()
	now := at(loc, 2024, 6, 1, 9, 0)

	tests := []struct {
		name   string
		events []event.Event
		setup  func(*memStore, *recordingNotifier)
		want   Summary
		marked map[string]bool
	}{
		{
			name:   "default lead time",
			events: []event.Event{{ID: "d", Title: "Default", ScheduledAt: now.Add(10 * time.Minute)}},
			want:   Summary{Total: 1, Dispatched: 1, Defaulted: 1},
			marked: map[string]bool{"d": true},
		},
		{
			name:   "too early",
			events: []event.Event{{ID: "e", Title: "Later", ScheduledAt: now.Add(2 * time.Hour), NotifyBefore: event.Minutes(30)}},
			want:   Summary{Total: 1, Skipped: 1},
			marked: map[string]bool{"e": false},
		},
		{
			name:   "dispatch failure",
			events: []event.Event{{ID: "f", Title: "Fail", ScheduledAt: now.Add(5 * time.Minute), NotifyBefore: event.Minutes(30)}},
			setup:  func(_ *memStore, n *recordingNotifier) { n.fail = true },
			want:   Summary{Total: 1, Failed: 1},
			marked: map[string]bool{"f": false},
		},
		{
			name:   "mark failure",
			events: []event.Event{{ID: "m", Title: "Mark", ScheduledAt: now.Add(5 * time.Minute), NotifyBefore: event.Minutes(30)}},
			setup:  func(s *memStore, _ *recordingNotifier) { s.setErr["m"] = storage.ErrUpdate },
			want:   Summary{Total: 1, MarkFailed: 1},
			marked: map[string]bool{"m": false},
		},
		{
			name:   "scheduled exactly now",
			events: []event.Event{{ID: "x", Title: "Now", ScheduledAt: now, NotifyBefore: event.Minutes(30)}},
			want:   Summary{Total: 1, Expired: 1},
			marked: map[string]bool{"x": false},
		},
		{
			name: "malformed record skipped",
			events: []event.Event{
				{ID: "ok", Title: "Fine", ScheduledAt: now.Add(time.Minute), NotifyBefore: event.Minutes(5)},
			},
			setup: func(s *memStore, _ *recordingNotifier) {
				s.broken = []event.Record{event.Malformed("bad", "missing scheduled_at")}
			},
			want:   Summary{Total: 2, Dispatched: 1, Malformed: 1},
			marked: map[string]bool{"ok": true},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newMemStore(tt.events...)
			n := &recordingNotifier{}
			if tt.setup != nil {
				tt.setup(store, n)
			}
			cfg := testConfig(loc)
			cfg.DailyEnabled = false
			got, err := New(cfg, store, n, logx.Nop(), WithClock(fixedClock(now))).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got.Total != tt.want.Total || got.Dispatched != tt.want.Dispatched || got.Failed != tt.want.Failed ||
				got.Skipped != tt.want.Skipped || got.Expired != tt.want.Expired || got.Defaulted != tt.want.Defaulted ||
				got.Malformed != tt.want.Malformed || got.MarkFailed != tt.want.MarkFailed {
				t.Fatalf("summary = %+v, want counters %+v", got, tt.want)
			}
			for id, want := range tt.marked {
				if store.notified(id) != want {
					t.Fatalf("notified(%s) = %v, want %v", id, !want, want)
				}
			}
		})
	}
}

func TestRunFailedDispatchIsRetriedNextRun(t *testing.T) {
	t.Parallel()
	loc := jst()
	now := at(loc, 2024, 6, 1, 9, 0)
	store := newMemStore(event.Event{ID: "r", Title: "Retry", ScheduledAt: now.Add(15 * time.Minute), NotifyBefore: event.Minutes(30)})
	n := &recordingNotifier{fail: true}
	o := New(testConfig(loc), store, n, logx.Nop(), WithClock(fixedClock(now)))

	if sum, _ := o.Run(context.Background()); sum.Failed != 1 {
		t.Fatalf("first run: %+v", sum)
	}
	n.fail = false
	if sum, _ := o.Run(context.Background()); sum.Dispatched != 1 {
		t.Fatalf("second run: %+v", sum)
	}
	if n.count() != 2 || !store.notified("r") {
		t.Fatalf("calls=%d notified=%v", n.count(), store.notified("r"))
	}
}

func TestUntitledEventUsesPlaceholder(t *testing.T) {
	t.Parallel()
	loc := jst()
	now := at(loc, 2024, 6, 1, 9, 0)
	store := newMemStore(event.Event{ID: "u", ScheduledAt: now.Add(time.Minute)})
	n := &recordingNotifier{}
	if _, err := New(testConfig(loc), store, n, logx.Nop(), WithClock(fixedClock(now))).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n.count() != 1 || n.calls[0].title != DefaultUntitledPlaceholder {
		t.Fatalf("unexpected calls: %+v", n.calls)
	}
}

func TestRunAbortsOnQueryFailure(t *testing.T) {
	t.Parallel()
	loc := jst()
	now := at(loc, 2024, 6, 1, 9, 0)
	queryErr := fmt.Errorf("%w: connection reset", storage.ErrQuery)

	tests := []struct {
		name  string
		setup func(*memStore)
		now   func() Clock
	}{
		{name: "reconcile", setup: func(s *memStore) { s.beforeErr = queryErr }},
		{name: "scan", setup: func(s *memStore) { s.rangeErr = queryErr }},
		{name: "daily", setup: func(s *memStore) { s.rangeErr = queryErr }, now: func() Clock {
			return fixedClock(at(loc, 2024, 6, 1, 0, 0))
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newMemStore(event.Event{ID: "a", Title: "A", ScheduledAt: now.Add(time.Minute)})
			tt.setup(store)
			clock := fixedClock(now)
			if tt.now != nil {
				clock = tt.now()
			}
			n := &recordingNotifier{}
			sum, err := New(testConfig(loc), store, n, logx.Nop(), WithClock(clock)).Run(context.Background())
			if !errors.Is(err, storage.ErrQuery) {
				t.Fatalf("expected ErrQuery, got %v", err)
			}
			if sum.Err == "" {
				t.Fatal("summary should carry the error")
			}
			if n.count() != 0 {
				t.Fatalf("aborted run delivered %d messages", n.count())
			}
		})
	}
}

func TestRunHugeLeadTimeStillDispatches(t *testing.T) {
	t.Parallel()
	loc := jst()
	now := at(loc, 2024, 6, 1, 9, 0)
	store := newMemStore(event.Event{ID: "far", Title: "Far lead", ScheduledAt: now.Add(10 * time.Minute), NotifyBefore: event.Minutes(200_000_000)})
	n := &recordingNotifier{}

	sum, err := New(testConfig(loc), store, n, logx.Nop(), WithClock(fixedClock(now))).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Dispatched != 1 || sum.Skipped != 0 || !store.notified("far") {
		t.Fatalf("event 10m away with a huge lead should be dispatched: %+v", sum)
	}
}
