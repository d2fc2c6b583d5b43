// Package app wires configuration, storage, interpretation, reminders and the chat
// transport into the running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/semaphore"

	"agendabot/internal/config"
	"agendabot/internal/eventbus"
	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/interpret"
	"agendabot/internal/notifier"
	"agendabot/internal/observability"
	"agendabot/internal/reminder"
	"agendabot/internal/runtime/supervisor"
	"agendabot/internal/storage"
	"agendabot/internal/task/engine"
	"agendabot/internal/task/scheduler"
	kit "agendabot/internal/transport"
	telegram "agendabot/internal/transport/telegram/adapter"
	"agendabot/internal/validate"
	logx "agendabot/pkg/logx"
)

// maxInflight bounds messages handled concurrently.
const maxInflight = 16

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter   kit.Adapter
	engine    *engine.Service
	sched     *scheduler.Service
	reminders *reminder.Scheduler
	notif     *notifier.Service
	debug     *observability.Server
	pipeline  handlerFunc
	orch      *interpret.Orchestrator
	ensemble  *intent.Ensemble

	closers  []io.Closer
	updates  chan kit.Message
	inflight *semaphore.Weighted
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg.Logging))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, log)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	sc, err := mapStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.Component("storage"))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.MustNewMetrics(reg)
	dcfg, err := mapDebug(cfg.Debug)
	if err != nil {
		return nil, err
	}

	engCfg, err := mapEngine(cfg.TaskEngine)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, log.Component("taskengine"), bus)
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Interpreter.Timezone}, eng, log.Component("scheduler"), bus)

	ncfg, err := mapNotifier(cfg.Notifier)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log, bus)
	notif.SetOperator(cfg.Telegram.OperatorChat)

	rcfg, eventLead, err := mapReminder(cfg.Reminders)
	if err != nil {
		return nil, err
	}
	ropts := []reminder.Option{
		reminder.WithLogger(log),
		reminder.WithBus(bus),
		reminder.WithObserver(metrics.ReminderStage),
	}
	if cfg.Telegram.OperatorChat != 0 {
		ropts = append(ropts, reminder.WithAlerter(notif))
		logs.SetAlerter(notif)
	}
	worker := reminder.NewWorker(rcfg, store, notif, ropts...)
	reminders := reminder.NewScheduler(rcfg, store, sched, worker, ropts...)

	orch, ensemble, closers, err := buildInterpreter(cfg, store, bus, metrics, log)
	if err != nil {
		return nil, err
	}
	loc, err := mapLocation(cfg.Interpreter)
	if err != nil {
		return nil, err
	}

	allowed := map[int64]bool{}
	for _, id := range cfg.Telegram.AllowedUserIDs {
		allowed[id] = true
	}
	handleTimeout, err := config.ParseDurationOrDefault("telegram.handle_timeout", cfg.Telegram.HandleTimeout, DefaultHandleTimeout)
	if err != nil {
		return nil, err
	}
	handler := NewHandler(HandlerDeps{
		Interpreter: orch,
		Store:       store,
		Reminders:   reminders,
		Metrics:     metrics,
		Location:    loc,
		Log:         log,
		EventLead:   eventLead,
	})
	pipeline := chain(handlerEndpoint(handler),
		withRecover(),
		withRequestLog(),
		withAccess(allowed),
		withRateLimit(newUserLimiter(cfg.Telegram.RatePerMinute, cfg.Telegram.RateBurst)),
		withTimeout(handleTimeout),
	)

	return &App{
		cfgm:      cfgm,
		log:       log.Component("app"),
		logs:      logs,
		bus:       bus,
		store:     store,
		adapter:   ad,
		engine:    eng,
		sched:     sched,
		reminders: reminders,
		notif:     notif,
		debug:     observability.NewServer(dcfg, reg, log),
		pipeline:  pipeline,
		orch:      orch,
		ensemble:  ensemble,
		closers:   closers,
		updates:   make(chan kit.Message, 256),
		inflight:  semaphore.NewWeighted(maxInflight),
	}, nil
}

// buildInterpreter assembles the classifier ensemble, extractor, validator and
// recurrence phase. It returns the backends that hold resources.
func buildInterpreter(cfg *config.Config, store storage.Store, bus eventbus.Bus, metrics *observability.Metrics, log logx.Logger) (*interpret.Orchestrator, *intent.Ensemble, []io.Closer, error) {
	backends, iopts, err := mapClassifier(cfg.Classifier)
	if err != nil {
		return nil, nil, nil, err
	}
	members, err := newRegistry().Build(backends, log.Component("classifier"))
	if err != nil {
		return nil, nil, nil, err
	}
	var closers []io.Closer
	for _, m := range members {
		if c, ok := m.Backend.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	iopts = append(iopts, intent.WithLogger(log), intent.WithObserver(metrics.ObserveBackend))
	ensemble := intent.NewEnsemble(members, iopts...)
	log.Info("classifier ready", logx.Strings("backends", ensemble.Names()))

	exOpt, err := mapExtract(cfg.Interpreter)
	if err != nil {
		return nil, nil, nil, err
	}
	vcfg, err := mapValidate(cfg.Interpreter)
	if err != nil {
		return nil, nil, nil, err
	}
	cal, err := openCalendar(cfg.Calendar)
	if err != nil {
		log.Warn("calendar advisories disabled", logx.String("path", cfg.Calendar.Path), logx.Err(err))
	}
	rec, err := mapRecurrence(cfg.Recurrence)
	if err != nil {
		return nil, nil, nil, err
	}
	loc, err := mapLocation(cfg.Interpreter)
	if err != nil {
		return nil, nil, nil, err
	}

	orch := interpret.New(ensemble, extract.New(exOpt), validate.New(vcfg, store, cal, log), rec,
		interpret.WithLogger(log),
		interpret.WithBus(bus),
		interpret.WithObserver(metrics.ObservePhase),
		interpret.WithLocation(loc),
	)
	return orch, ensemble, closers, nil
}

// Done is closed when the app context ends, by Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateReload(cfg) })

	a.engine.Start(run)
	a.sched.Start(run)
	a.notif.Start(run)
	if err := a.reminders.Start(run); err != nil {
		return fmt.Errorf("reminders: %w", err)
	}
	a.debug.SetStatus(a.status)
	a.debug.Start(run)

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		cmds := make([]kit.BotCommand, len(BotCommands))
		for i, c := range BotCommands {
			cmds[i] = kit.BotCommand{Command: c.Command, Description: c.Description}
		}
		a.sup.Go0("menu.update", func(c context.Context) {
			if err := mu.UpdateMenuCommands(c, cmds); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	a.sup.Go("updates.dispatch", a.dispatch)
	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })

	notifySystemd(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

type status struct {
	Scheduler  scheduler.Snapshot  `json:"scheduler"`
	Supervisor supervisor.Counters `json:"supervisor"`
	Phases     []string            `json:"phases"`
	Backends   []string            `json:"backends"`
}

func (a *App) status() any {
	return status{
		Scheduler:  a.sched.Snapshot(),
		Supervisor: a.sup.Counters(),
		Phases:     a.orch.Phases(),
		Backends:   a.ensemble.Names(),
	}
}

func (a *App) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-a.updates:
			if err := a.inflight.Acquire(ctx, 1); err != nil {
				return nil
			}
			go func() {
				defer a.inflight.Release(1)
				a.handle(ctx, msg)
			}()
		}
	}
}

func (a *App) handle(ctx context.Context, msg kit.Message) {
	req := newRequest(msg, a.log)
	if err := a.pipeline(ctx, req); err != nil || req.reply == "" {
		return
	}
	err := a.notif.Reply(ctx, msg.Target(), req.reply)
	if errors.Is(err, notifier.ErrDisabled) {
		_, err = a.adapter.SendText(ctx, msg.Target(), req.reply, nil)
	}
	if err != nil {
		a.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch {
			case e.Matches("task"):
			case e.Type == eventbus.ReminderFailed, e.Type == eventbus.NotifierFailed:
				a.log.Warn("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			default:
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}
}

// validateReload rejects a reloaded config before it is committed.
func validateReload(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapNotifier(cfg.Notifier); err != nil {
		return err
	}
	_, err := mapDebug(cfg.Debug)
	return err
}

func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyReload(ctx, last, next)
			last = next
		}
	}
}

func (a *App) applyReload(ctx context.Context, prev, next *config.Config) {
	changed, attrs := config.SummarizeConfigChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(next.Logging))

	if ncfg, err := mapNotifier(next.Notifier); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
		if ncfg.Enabled {
			a.notif.Start(ctx)
		} else {
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		}
	}

	if dcfg, err := mapDebug(next.Debug); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.debug.Reconfigure(ctx, dcfg)
	}

	if restart := config.RestartRequired(changed); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	eventbus.Publish(a.bus, eventbus.ConfigReloaded, changed)
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order. Each step is bounded so one
// stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	notifySystemd(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "handlers", 5*time.Second, func(c context.Context) error {
		if err := a.inflight.Acquire(c, maxInflight); err != nil {
			return err
		}
		a.inflight.Release(maxInflight)
		return nil
	})
	a.step(ctx, "debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "classifier", time.Second, func(context.Context) error {
		var errs []error
		for _, c := range a.closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	})
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	started := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(started)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(started)))
	}
}
