package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "eventbell/pkg/logx"
)

type Config struct {
	Spec       string
	Location   *time.Location
	RunTimeout time.Duration // 0 disables the per-run deadline
}

// RunFunc is one triggered run.
type RunFunc func(ctx context.Context)

type Trigger struct {
	cfg  Config
	spec ParsedSpec
	run  RunFunc
	log  logx.Logger

	mu   sync.Mutex
	c    *cron.Cron
	id   cron.EntryID
	base context.Context
	job  cron.Job
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config, run RunFunc, log logx.Logger) (*Trigger, error) {
	if run == nil {
		return nil, fmt.Errorf("scheduler: run func is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	spec, err := ParseSchedule(cfg.Spec)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(spec.CronSpec()); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.Spec, err)
	}

	t := &Trigger{cfg: cfg, spec: spec, run: run, log: log, base: context.Background()}
	cl := cronLogger{log: log}
	t.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(t.fire))
	return t, nil
}

func (t *Trigger) fire() {
	t.mu.Lock()
	ctx := t.base
	t.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if t.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RunTimeout)
		defer cancel()
	}
	t.run(ctx)
}

// Start begins triggering. Runs derive their context from ctx.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return nil
	}
	t.base = ctx
	c := cron.New(cron.WithParser(parser), cron.WithLocation(t.cfg.Location), cron.WithLogger(cronLogger{log: t.log}))
	id, err := c.AddJob(t.spec.CronSpec(), t.job)
	if err != nil {
		return err
	}
	c.Start()
	t.c, t.id = c, id
	t.log.Info("trigger started",
		logx.String("spec", t.spec.CronSpec()),
		logx.String("tz", t.cfg.Location.String()),
		logx.Time("next", c.Entry(id).Next),
	)
	return nil
}

// Stop stops triggering and waits for a running job until ctx is done.
func (t *Trigger) Stop(ctx context.Context) {
	t.mu.Lock()
	c := t.c
	t.c = nil
	t.mu.Unlock()
	if c == nil {
		return
	}
	start := time.Now()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		t.log.Warn("trigger stop timed out; run still in progress")
	}
	t.log.Info("trigger stopped", logx.Duration("took", time.Since(start)))
}

// Next returns the next scheduled fire time, or zero when stopped.
func (t *Trigger) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return time.Time{}
	}
	return t.c.Entry(t.id).Next
}

// cronLogger adapts logx to cron.Logger. Routine cron chatter goes to debug.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
