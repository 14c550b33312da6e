package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"eventbell/internal/event"
	"eventbell/internal/storage"
)

// memStore is an in-memory EventStore with failure injection.
type memStore struct {
	mu     sync.Mutex
	events []*event.Event
	// broken is returned by every query as-is (malformed rows).
	broken []event.Record

	rangeErr  error
	beforeErr error
	setErr    map[string]error
	sets      []string
}

func newMemStore(evs ...event.Event) *memStore {
	s := &memStore{setErr: map[string]error{}}
	for i := range evs {
		ev := evs[i]
		s.events = append(s.events, &ev)
	}
	sort.SliceStable(s.events, func(i, j int) bool { return s.events[i].ScheduledAt.Before(s.events[j].ScheduledAt) })
	return s
}

func (s *memStore) QueryRange(ctx context.Context, q storage.RangeQuery) ([]event.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}
	var out []event.Record
	for _, ev := range s.events {
		if ev.Notified != q.Notified {
			continue
		}
		if q.Start != nil && ev.ScheduledAt.Before(*q.Start) {
			continue
		}
		if q.End != nil && !ev.ScheduledAt.Before(*q.End) {
			continue
		}
		out = append(out, event.OK(*ev))
	}
	return append(out, s.broken...), nil
}

func (s *memStore) QueryUnnotifiedBefore(ctx context.Context, t time.Time) ([]event.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeErr != nil {
		return nil, s.beforeErr
	}
	var out []event.Record
	for _, ev := range s.events {
		if !ev.Notified && ev.ScheduledAt.Before(t) {
			out = append(out, event.OK(*ev))
		}
	}
	return out, nil
}

func (s *memStore) SetNotified(ctx context.Context, id string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, id)
	if err := s.setErr[id]; err != nil {
		return err
	}
	for _, ev := range s.events {
		if ev.ID == id {
			ev.Notified = v
			return nil
		}
	}
	for _, r := range s.broken {
		if r.ID == id {
			return nil
		}
	}
	return errors.New("not found")
}

func (s *memStore) notified(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return ev.Notified
		}
	}
	return false
}

type sent struct {
	title, when string
	summary     bool
	announce    string
}

type recordingNotifier struct {
	mu    sync.Mutex
	fail  bool
	calls []sent
}

func (n *recordingNotifier) Dispatch(ctx context.Context, title, when string, summary bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, sent{title: title, when: when, summary: summary})
	return !n.fail
}

func (n *recordingNotifier) Announce(ctx context.Context, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, sent{announce: text})
	return !n.fail
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func jst() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

func at(loc *time.Location, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func testConfig(loc *time.Location) Config {
	return Config{
		DefaultNotifyBefore: DefaultNotifyBeforeMinutes,
		DailyEnabled:        true,
		Location:            loc,
	}
}
