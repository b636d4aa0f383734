// Package app wires one load run: pools, sender, repeaters, observability,
// and the bounded shutdown that ends it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dittoload/internal/config"
	"dittoload/internal/ditto"
	"dittoload/internal/eventbus"
	"dittoload/internal/fleet"
	"dittoload/internal/observability/httpd"
	"dittoload/internal/observability/metrics"
	"dittoload/internal/runtime/sdnotify"
	"dittoload/internal/runtime/supervisor"
	"dittoload/internal/sender"
	"dittoload/internal/storage"
	"dittoload/internal/task/repeater"
	logx "dittoload/pkg/logx"

	"github.com/google/uuid"
)

type App struct {
	plan plan

	log  logx.Logger
	logs *logx.Service
	cfgm *config.Manager

	out       io.Writer
	transport sender.Transport
	notifier  *sdnotify.Notifier

	runID   string
	metrics *metrics.Metrics
	bus     eventbus.Bus

	sup   *supervisor.Supervisor
	tasks []*repeater.Repeater
}

type Option func(*App)

func WithLogger(l logx.Logger) Option { return func(a *App) { a.log = l } }

// WithLogService lets config reloads re-apply logging settings.
func WithLogService(s *logx.Service) Option { return func(a *App) { a.logs = s } }

// WithConfigManager enables hot reload of the file behind m.
func WithConfigManager(m *config.Manager) Option { return func(a *App) { a.cfgm = m } }

// WithOutput redirects dry-run output (stdout by default).
func WithOutput(w io.Writer) Option { return func(a *App) { a.out = w } }

// WithTransport replaces the Ditto client used in live mode.
func WithTransport(t sender.Transport) Option { return func(a *App) { a.transport = t } }

func WithNotifier(n *sdnotify.Notifier) Option { return func(a *App) { a.notifier = n } }

// New resolves cfg into a run plan. Nothing is started.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	p, err := mapPlan(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{plan: p, out: os.Stdout}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}
	if a.log.IsZero() {
		a.log = logx.Nop()
	}
	if a.notifier == nil {
		a.notifier = sdnotify.New()
	}
	a.runID = uuid.NewString()
	a.log = a.log.With(logx.String("comp", "app"), logx.String("run", a.runID))
	a.metrics = metrics.New()
	a.bus = eventbus.New()
	return a, nil
}

func (a *App) RunID() string             { return a.runID }
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Run blocks until the configured duration elapses, ctx is cancelled or a
// task fails fatally, then stops every task and waits for them (bounded by
// the join timeout per task). A fatal configuration error is returned.
func (a *App) Run(ctx context.Context) error {
	p := a.plan
	started := time.Now()

	store, err := storage.Open(p.Storage, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				a.log.Warn("storage close failed", logx.Err(err))
			}
		}()
	}

	snd := a.newSender(store)

	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	sup := a.sup

	rng := fleet.NewRand(p.Seed)
	classes := []struct {
		plan classPlan
		pool func() []fleet.Entity
	}{
		{p.Stations, func() []fleet.Entity { return fleet.Stations(fleet.GenerateStations(rng, p.Stations.Pool, p.Base)) }},
		{p.Buses, func() []fleet.Entity { return fleet.Buses(fleet.GenerateBuses(rng, p.Buses.Pool, p.Base)) }},
	}
	for _, c := range classes {
		if c.plan.Count <= 0 {
			a.log.Info("class disabled", logx.String("class", c.plan.Name))
			continue
		}
		pool := c.pool()
		r, err := repeater.New(c.plan.Name, c.plan.Interval,
			batchWorker(c.plan.Name, rng, pool, c.plan.Count, snd),
			repeater.WithLogger(a.log.With(logx.String("comp", "repeater"))),
			repeater.WithBus(a.bus),
			repeater.WithFatal(sender.IsConfigError),
		)
		if err != nil {
			sup.Cancel()
			return err
		}
		a.tasks = append(a.tasks, r)
		a.log.Info("task scheduled",
			logx.String("class", c.plan.Name),
			logx.Int("batch", c.plan.Count),
			logx.Int("pool", len(pool)),
			logx.Duration("interval", c.plan.Interval),
		)
	}
	if len(a.tasks) == 0 {
		a.log.Warn("no classes scheduled; waiting for stop")
	}

	sup.Go0("metrics.consume", a.metrics.Consume(a.bus))
	if p.HTTP != nil {
		srv := httpd.New(*p.HTTP, httpd.Sources{
			Health:  a.health,
			Tasks:   a.taskSnapshots,
			Metrics: a.metrics.Handler(),
		}, a.log.With(logx.String("comp", "httpd")))
		sup.GoRestart("httpd", srv.Serve, 500*time.Millisecond, 10*time.Second)
	}
	if a.cfgm != nil && a.cfgm.Path() != "" {
		a.startConfigReload(sup)
	}
	for _, r := range a.tasks {
		r := r
		sup.Go("task."+r.Name(), r.Run)
	}

	if store != nil {
		a.recordRun(store, storage.RunRecord{RunID: a.runID, StartedAt: started, Namespace: p.Namespace, DryRun: p.DryRun})
	}
	mode := "live"
	if p.DryRun {
		mode = "dry-run"
	}
	_, _ = a.notifier.Ready(fmt.Sprintf("%s run %s: %d task(s)", mode, a.runID, len(a.tasks)))
	a.log.Info("run started",
		logx.String("namespace", p.Namespace),
		logx.String("mode", mode),
		logx.Duration("duration", p.Duration),
	)

	reason := a.wait(ctx, sup)

	_, _ = a.notifier.Stopping()
	_, _ = a.notifier.Status("stopping: %s", reason)
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.shutdown()

	fatal := sup.Err()
	tot := a.metrics.Totals()
	fields := []logx.Field{
		logx.String("reason", string(reason)),
		logx.Duration("elapsed", time.Since(started)),
		logx.Uint64("pushes", tot.Pushes),
		logx.Uint64("push_failures", tot.PushFailures),
		logx.Uint64("ticks", tot.Ticks),
		logx.Uint64("tick_failures", tot.TickFailures),
	}
	if fatal != nil {
		a.log.Error("run ended with fatal error", append(fields, logx.Err(fatal))...)
	} else {
		a.log.Info("run finished", fields...)
	}
	if store != nil {
		rec := storage.RunRecord{
			RunID: a.runID, StartedAt: started, EndedAt: time.Now(),
			Namespace: p.Namespace, DryRun: p.DryRun,
			Pushes: tot.Pushes, Failures: tot.PushFailures,
		}
		if fatal != nil {
			rec.Error = fatal.Error()
		}
		a.recordRun(store, rec)
	}
	return fatal
}

func (a *App) newSender(store storage.Store) *sender.Sender {
	p := a.plan
	opts := []sender.Option{
		sender.WithOutput(a.out),
		sender.WithLogger(a.log.With(logx.String("comp", "sender"))),
		sender.WithObserver(a.metrics),
	}
	if store != nil {
		opts = append(opts, sender.WithObserver(&journal{store: store, runID: a.runID, log: a.log}))
	}
	tr := a.transport
	if tr == nil && !p.DryRun {
		tr = ditto.New(p.Ditto)
	}
	return sender.New(tr, p.Namespace, p.DryRun, opts...)
}

// wait blocks on the first of: duration elapsed, external stop, fatal error.
func (a *App) wait(ctx context.Context, sup *supervisor.Supervisor) StopReason {
	var timeout <-chan time.Time
	if a.plan.Duration > 0 {
		t := time.NewTimer(a.plan.Duration)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-timeout:
		return StopDuration
	case <-sup.Context().Done():
	}
	switch {
	case sup.Err() != nil:
		return StopFatalError
	case ctx.Err() != nil:
		return StopInterrupt
	default:
		return StopUnknown
	}
}

// shutdown signals every task, cancels the shared context and joins each
// task for at most the join timeout. A task that does not finish in time is
// reported and left behind.
func (a *App) shutdown() {
	for _, r := range a.tasks {
		r.RequestStop()
	}
	a.sup.Cancel()

	for _, r := range a.tasks {
		jctx, cancel := context.WithTimeout(context.Background(), a.plan.JoinTimeout)
		err := r.Wait(jctx)
		cancel()
		if err != nil {
			a.log.Warn("task did not stop in time",
				logx.String("task", r.Name()),
				logx.Duration("join_timeout", a.plan.JoinTimeout),
			)
		}
	}

	wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.sup.Wait(wctx); errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("background goroutines still running after stop", logx.Int64("active", a.sup.Counters().Active))
	}
}

func (a *App) recordRun(store storage.Store, r storage.RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.RecordRun(ctx, r); err != nil {
		a.log.Warn("run journal write failed", logx.Err(err))
	}
}

func (a *App) health() (any, bool) {
	snap := a.sup.Snapshot()
	return map[string]any{
		"run_id":     a.runID,
		"supervisor": snap,
		"totals":     a.metrics.Totals(),
	}, snap.FirstError == ""
}

func (a *App) taskSnapshots() any {
	out := make([]repeater.Snapshot, 0, len(a.tasks))
	for _, r := range a.tasks {
		out = append(out, r.Snapshot())
	}
	return out
}

// startConfigReload follows the config file and re-applies logging.
// Other sections only take effect on the next run.
func (a *App) startConfigReload(sup *supervisor.Supervisor) {
	sub := a.cfgm.Subscribe(4)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				changed, _ := config.SummarizeChange(last, cfg)
				last = cfg
				if a.logs != nil {
					a.logs.Apply(mapLogConfig(cfg.Logging))
				}
				if pending := config.RestartRequired(changed); len(pending) > 0 {
					a.log.Warn("config changed; restart required for these sections", logx.Any("sections", pending))
				}
			}
		}
	})
	sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
}
