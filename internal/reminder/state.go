package reminder

import (
	"context"

	logx "eventbell/pkg/logx"
)

// StateUpdater flips the notified flag. It does not check the prior value;
// runs are the only writer.
type StateUpdater struct {
	store EventStore
	log   logx.Logger
}

func NewStateUpdater(store EventStore, log logx.Logger) *StateUpdater {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StateUpdater{store: store, log: log}
}

func (u *StateUpdater) MarkNotified(ctx context.Context, id string) bool {
	if err := u.store.SetNotified(ctx, id, true); err != nil {
		u.log.Error("mark notified failed", logx.String("event_id", id), logx.Err(err))
		return false
	}
	return true
}
