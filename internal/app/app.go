// Package app builds the reminder pipeline from config and runs it once or
// as a cron-triggered daemon with config hot reload.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"eventbell/internal/config"
	"eventbell/internal/notifier"
	"eventbell/internal/reminder"
	"eventbell/internal/runtime/supervisor"
	"eventbell/internal/scheduler"
	"eventbell/internal/status"
	logx "eventbell/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger
	opts []reminder.Option
	hist *status.History

	// runMu serializes runs with pipeline swaps so a store is never closed mid-run.
	runMu sync.Mutex

	mu      sync.RWMutex
	cfg     *config.Config
	pipe    *pipeline
	trigger *scheduler.Trigger
	status  *status.Server

	sup *supervisor.Supervisor
}

type Option func(*options)

type options struct {
	getenv func(string) string
	clock  reminder.Clock
}

// WithEnv replaces os.Getenv for credential overrides.
func WithEnv(getenv func(string) string) Option { return func(o *options) { o.getenv = getenv } }

// WithClock fixes the run clock (tests).
func WithClock(c reminder.Clock) Option { return func(o *options) { o.clock = c } }

// LoadConfig parses and validates the config file without building anything.
func LoadConfig(path string, opts ...Option) (*config.ConfigManager, *config.Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfgm := config.NewConfigManager(path)
	if o.getenv != nil {
		cfgm.SetEnv(o.getenv)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfgm, cfg, nil
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfgm, cfg, err := LoadConfig(cfgPath, opts...)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))

	var ropts []reminder.Option
	if o.clock != nil {
		ropts = append(ropts, reminder.WithClock(o.clock))
	}
	pipe, err := buildPipeline(cfg, log, ropts...)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgm: cfgm,
		logs: logSvc,
		log:  log.With(logx.String("comp", "app")),
		opts: ropts,
		hist: status.NewHistory(cfg.Status.HistorySize),
		cfg:  cfg,
		pipe: pipe,
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
}

func (a *App) current() *pipeline {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pipe
}

// History returns recorded run summaries, newest first.
func (a *App) History() []reminder.Summary { return a.hist.List() }

// RunOnce executes one reminder invocation and records its summary.
func (a *App) RunOnce(ctx context.Context) (reminder.Summary, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	sum, err := a.current().orch.Run(ctx)
	a.hist.Add(sum)
	return sum, err
}

// Close releases the pipeline and log sinks. Use it after RunOnce; Stop calls it for daemons.
func (a *App) Close() error {
	a.runMu.Lock()
	err := a.current().Close()
	a.runMu.Unlock()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// Start runs the daemon: cron trigger, config watch, optional status server
// and systemd notification.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.mu.RLock()
	cfg := a.cfg
	a.mu.RUnlock()

	tr, err := a.newTrigger(cfg)
	if err != nil {
		return err
	}
	if err := tr.Start(runCtx); err != nil {
		return err
	}
	a.mu.Lock()
	a.trigger = tr
	a.mu.Unlock()

	if err := a.startStatus(runCtx, cfg); err != nil {
		return err
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return c.Validate() })
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, next)
			}
		}
	})
	// a panicking watcher comes back instead of cancelling the daemon
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("daemon started",
		logx.String("config", a.cfgm.Path()),
		logx.Strings("channels", a.current().dispatcher.Channels()),
		logx.String("store", cfg.Store.Driver),
	)
	return nil
}

// Done is closed when the daemon context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal daemon error.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) newTrigger(cfg *config.Config) (*scheduler.Trigger, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDurationField("schedule.run_timeout", cfg.Schedule.RunTimeout)
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Config{
		Spec:       cfg.Schedule.Spec,
		Location:   loc,
		RunTimeout: timeout,
	}, func(ctx context.Context) {
		// failures are logged by the orchestrator and kept in history
		_, _ = a.RunOnce(ctx)
	}, a.log.With(logx.String("comp", "scheduler")))
}

func (a *App) next() time.Time {
	a.mu.RLock()
	tr := a.trigger
	a.mu.RUnlock()
	if tr == nil {
		return time.Time{}
	}
	return tr.Next()
}

func (a *App) deliveries() []notifier.HistoryItem { return a.current().dispatcher.History() }

func (a *App) startStatus(ctx context.Context, cfg *config.Config) error {
	if !cfg.Status.Enabled {
		return nil
	}
	srv := status.New(cfg.Status.Addr, a.hist, a.log.With(logx.String("comp", "status")),
		status.WithDeliveries(a.deliveries),
		status.WithNext(a.next),
	)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	a.mu.Lock()
	a.status = srv
	a.mu.Unlock()
	return nil
}

func (a *App) stopStatus(ctx context.Context) {
	a.mu.Lock()
	srv := a.status
	a.status = nil
	a.mu.Unlock()
	if srv != nil {
		srv.Stop(ctx)
	}
}

// applyConfig reconfigures only what changed; a part that fails to rebuild
// keeps its previous version.
func (a *App) applyConfig(ctx context.Context, next *config.Config) {
	a.mu.RLock()
	prev := a.cfg
	a.mu.RUnlock()

	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	has := func(s string) bool { return slices.Contains(sections, s) }

	if has("logging") {
		a.logs.Apply(logConfig(next))
	}

	if config.NeedsRebuild(sections) {
		if err := a.swapPipeline(next); err != nil {
			a.log.Warn("pipeline rebuild failed; keeping previous", logx.Err(err))
		}
	}

	if has("schedule") || has("timezone") {
		if err := a.swapTrigger(ctx, next); err != nil {
			a.log.Warn("schedule rebuild failed; keeping previous", logx.Err(err))
		}
	}

	if has("status") {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		a.stopStatus(stopCtx)
		cancel()
		if err := a.startStatus(ctx, next); err != nil {
			a.log.Warn("status server restart failed", logx.Err(err))
		}
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) swapPipeline(cfg *config.Config) error {
	p, err := buildPipeline(cfg, a.logs.Logger(), a.opts...)
	if err != nil {
		return err
	}
	a.runMu.Lock()
	a.mu.Lock()
	old := a.pipe
	a.pipe = p
	a.mu.Unlock()
	a.runMu.Unlock()
	if err := old.Close(); err != nil {
		a.log.Warn("closing previous store failed", logx.Err(err))
	}
	return nil
}

func (a *App) swapTrigger(ctx context.Context, cfg *config.Config) error {
	tr, err := a.newTrigger(cfg)
	if err != nil {
		return err
	}
	a.mu.Lock()
	old := a.trigger
	a.trigger = nil
	a.mu.Unlock()
	if old != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		old.Stop(stopCtx)
		cancel()
	}
	if err := tr.Start(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	a.trigger = tr
	a.mu.Unlock()
	return nil
}

// Stop shuts the daemon down in order, bounding each step.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context)) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		fn(stepCtx)
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("trigger", 5*time.Second, func(c context.Context) {
		a.mu.Lock()
		tr := a.trigger
		a.trigger = nil
		a.mu.Unlock()
		if tr != nil {
			tr.Stop(c)
		}
	})
	step("status", time.Second, a.stopStatus)
	step("supervisor", 2*time.Second, func(c context.Context) {
		if err := a.sup.Stop(c); err != nil {
			a.log.Warn("supervisor stop", logx.Err(err), logx.Int64("still_active", a.sup.Active()))
		}
	})

	a.log.Info("stopped")
	return a.Close()
}
