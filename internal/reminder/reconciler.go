package reminder

import (
	"context"
	"fmt"
	"time"

	logx "eventbell/pkg/logx"
)

// Reconciler writes off events whose scheduled instant has passed without a
// notification, so they stop being re-queried every run.
type Reconciler struct {
	store   EventStore
	updater *StateUpdater
	log     logx.Logger
}

func NewReconciler(store EventStore, updater *StateUpdater, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{store: store, updater: updater, log: log}
}

// Reconcile marks every unnotified event scheduled before now. Records that do
// not decode are still marked when they carry an id. It returns the number marked.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) (int, error) {
	recs, err := r.store.QueryUnnotifiedBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	marked := 0
	for _, rec := range recs {
		if rec.ID == "" {
			r.log.Warn("past event without id", logx.Err(rec.Err))
			continue
		}
		if rec.Malformed() {
			r.log.Debug("reconciling malformed event", logx.String("event_id", rec.ID), logx.Err(rec.Err))
		}
		if r.updater.MarkNotified(ctx, rec.ID) {
			marked++
		}
	}
	if marked > 0 {
		r.log.Info("past events reconciled", logx.Int("marked", marked), logx.Int("found", len(recs)))
	}
	return marked, nil
}
