package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventbell/internal/event"
	"eventbell/internal/storage"
	logx "eventbell/pkg/logx"
)

// Summary is the outcome of one run.
type Summary struct {
	RunID   string        `json:"run_id"`
	Started time.Time     `json:"started"`
	Took    time.Duration `json:"took"`

	Total      int `json:"total"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Expired    int `json:"expired"`
	Defaulted  int `json:"defaulted"`
	Malformed  int `json:"malformed"`
	MarkFailed int `json:"mark_failed"`
	Reconciled int `json:"reconciled"`

	DailySummaryRan bool   `json:"daily_summary_ran"`
	Err             string `json:"error,omitempty"`
}

type Orchestrator struct {
	cfg        Config
	store      EventStore
	notifier   Notifier
	updater    *StateUpdater
	reconciler *Reconciler
	daily      *DailySummary
	clock      Clock
	log        logx.Logger
}

type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

func New(cfg Config, store EventStore, n Notifier, log logx.Logger, opts ...Option) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	updater := NewStateUpdater(store, log)
	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		notifier:   n,
		updater:    updater,
		reconciler: NewReconciler(store, updater, log),
		daily:      NewDailySummary(cfg, store, n, log),
		clock:      time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one invocation. A store query failure in any phase aborts the
// rest of the run and is returned; per-record problems are counted instead.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	now := o.clock().In(o.cfg.Location)
	sum := Summary{RunID: uuid.NewString(), Started: now}
	log := o.log.With(logx.String("run_id", sum.RunID))
	log.Info("run started", logx.Time("now", now))

	err := o.run(ctx, now, &sum, log)
	sum.Took = o.clock().Sub(now)
	if err != nil {
		sum.Err = err.Error()
		log.Error("run aborted", logx.Err(err), logx.Duration("took", sum.Took))
		return sum, err
	}
	log.Info("run finished",
		logx.Int("total", sum.Total),
		logx.Int("dispatched", sum.Dispatched),
		logx.Int("failed", sum.Failed),
		logx.Int("skipped", sum.Skipped),
		logx.Int("expired", sum.Expired),
		logx.Int("defaulted", sum.Defaulted),
		logx.Int("malformed", sum.Malformed),
		logx.Int("mark_failed", sum.MarkFailed),
		logx.Int("reconciled", sum.Reconciled),
		logx.Bool("daily_summary", sum.DailySummaryRan),
		logx.Duration("took", sum.Took),
	)
	return sum, nil
}

func (o *Orchestrator) run(ctx context.Context, now time.Time, sum *Summary, log logx.Logger) error {
	n, err := o.reconciler.Reconcile(ctx, now)
	if err != nil {
		return err
	}
	sum.Reconciled = n

	ran, err := o.daily.RunIfDue(ctx, now)
	sum.DailySummaryRan = ran
	if err != nil {
		return err
	}

	recs, err := o.store.QueryRange(ctx, storage.RangeQuery{Start: &now, Notified: false})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	sum.Total = len(recs)
	if len(recs) == 0 {
		log.Warn("no upcoming events returned")
		return nil
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.handle(ctx, now, rec, sum, log)
	}
	return nil
}

func (o *Orchestrator) handle(ctx context.Context, now time.Time, rec event.Record, sum *Summary, log logx.Logger) {
	if rec.Malformed() {
		sum.Malformed++
		log.Warn("skipping malformed event", logx.String("event_id", rec.ID), logx.Err(rec.Err))
		return
	}
	ev := rec.Event
	before, defaulted := ev.NotifyBeforeOr(o.cfg.DefaultNotifyBefore)
	if defaulted {
		sum.Defaulted++
	}

	switch event.Evaluate(now, ev.ScheduledAt, event.LeadTime(before)) {
	case event.TooEarly:
		sum.Skipped++
	case event.Expired:
		// Became due between the reconcile query and the scan; next run reconciles it.
		sum.Expired++
	case event.Eligible:
		title := ev.DisplayTitle(o.cfg.UntitledPlaceholder)
		when := ev.ScheduledAt.In(o.cfg.Location).Format(individualTimeLayout)
		if !o.notifier.Dispatch(ctx, title, when, false) {
			sum.Failed++
			log.Warn("event not delivered", logx.String("event_id", ev.ID))
			return
		}
		if !o.updater.MarkNotified(ctx, ev.ID) {
			sum.MarkFailed++
			return
		}
		sum.Dispatched++
		log.Info("event notified", logx.String("event_id", ev.ID), logx.String("title", title), logx.Int("notify_before", before))
	}
}
