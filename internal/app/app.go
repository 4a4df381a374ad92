// Package app wires configuration, storage, push delivery, the
// reminder engine, the scheduler and the HTTP API into one process
// with a managed lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"notlarim/internal/api"
	"notlarim/internal/config"
	"notlarim/internal/export"
	"notlarim/internal/msggen"
	"notlarim/internal/push"
	"notlarim/internal/remind"
	"notlarim/internal/runtime/supervisor"
	"notlarim/internal/scheduler"
	"notlarim/internal/store"
	"notlarim/pkg/logx"
)

const defaultHorizon = 5 * time.Minute

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	st     store.Store
	pusher push.Pusher
	engine *remind.Engine
	sched  *scheduler.Service
	api    *api.Service

	sup *supervisor.Supervisor

	remindersOn bool
	dedupOn     bool
	horizon     time.Duration
}

// New loads and validates the config file at path and constructs every
// service. Nothing is started yet; call Start.
func New(ctx context.Context, path string) (*App, error) {
	cfgm := config.NewManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validateConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	horizon, err := config.ParseDurationOrDefault("reminders.horizon", cfg.Reminders.Horizon, defaultHorizon)
	if err != nil {
		return nil, err
	}
	busy, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	pusher, err := push.New(ctx, push.Config{
		Channel:         cfg.Push.Channel,
		CredentialsFile: cfg.Push.CredentialsFile,
		BotToken:        cfg.Push.BotToken,
	}, log.With(logx.String("comp", "push")))
	if err != nil {
		_ = st.Close()
		_ = logs.Close()
		return nil, fmt.Errorf("init push channel: %w", err)
	}

	engine := remind.NewEngine(remind.Config{
		Horizon:    horizon,
		Workers:    cfg.Reminders.Workers,
		RatePerSec: cfg.Reminders.RatePerSec,
		Dedup:      cfg.Reminders.Dedup,
	}, st, pusher, st, nil, log.With(logx.String("comp", "remind")))

	sched := scheduler.New(scheduler.Config{
		Workers:     cfg.Scheduler.Workers,
		QueueSize:   cfg.Scheduler.QueueSize,
		HistorySize: cfg.Scheduler.HistorySize,
		Timezone:    cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "scheduler")))

	gen := msggen.New(msggen.Config{
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	}, st, log.With(logx.String("comp", "msggen")))

	exp := export.New(export.Config{BackupDir: cfg.Export.BackupDir}, st, log.With(logx.String("comp", "export")))

	readTO, _ := config.ParseDurationOrDefault("api.read_timeout", cfg.API.ReadTimeout, 10*time.Second)
	writeTO, _ := config.ParseDurationOrDefault("api.write_timeout", cfg.API.WriteTimeout, 30*time.Second)
	idleTO, _ := config.ParseDurationOrDefault("api.idle_timeout", cfg.API.IdleTimeout, time.Minute)
	apiSvc := api.New(api.Config{
		Enabled:      cfg.API.Enabled,
		Addr:         cfg.API.Addr,
		Token:        cfg.API.Token,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
		IdleTimeout:  idleTO,
	}, gen, exp, log.With(logx.String("comp", "api")))

	return &App{
		cfgm:        cfgm,
		logs:        logs,
		log:         log,
		st:          st,
		pusher:      pusher,
		engine:      engine,
		sched:       sched,
		api:         apiSvc,
		remindersOn: cfg.Reminders.Enabled,
		dedupOn:     cfg.Reminders.Dedup,
		horizon:     horizon,
	}, nil
}

// Start registers the scheduled jobs and brings every service up under
// a supervisor. It returns once the process is ready; use Done to wait
// for an internal failure.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true))

	if a.remindersOn {
		// The tick cadence equals the scan horizon, so consecutive
		// windows tile the timeline without gap or overlap.
		err := a.sched.AddInterval("reminders.tick", a.horizon, a.horizon, scheduler.OverlapSkip,
			func(ctx context.Context) error {
				_, err := a.engine.RunTick(ctx)
				return err
			})
		if err != nil {
			return err
		}
	}
	if a.dedupOn {
		err := a.sched.AddInterval("dedup.prune", time.Hour, time.Minute, scheduler.OverlapSkip,
			func(ctx context.Context) error { return a.st.PruneDedup(ctx) })
		if err != nil {
			return err
		}
	}

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.api.Start(a.sup.Context()); err != nil {
		a.sched.Stop(ctx)
		return err
	}

	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.reload", a.reloadLoop)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("notlarim started",
		logx.Bool("reminders", a.remindersOn),
		logx.Bool("dedup", a.dedupOn),
		logx.Duration("horizon", a.horizon),
		logx.Bool("api", a.api.Enabled()))
	return nil
}

// Done closes when the supervisor context ends, either through Stop or
// because a supervised goroutine failed.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.sup.Context().Done()
}

// Stop shuts everything down in reverse start order, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.api.Stop(ctx)
	a.sched.Stop(ctx)

	var firstErr error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if err := a.pusher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.st.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	a.log.Info("notlarim stopped", logx.Err(firstErr))
	_ = a.logs.Close()
	return firstErr
}

// reloadLoop applies config file changes published by the watcher.
// Logging and the dispatch rate limit are applied live; everything
// else is reported as requiring a restart.
func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)

	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			sections, fields := config.SummarizeChange(prev, cfg)
			if len(sections) == 0 {
				prev = cfg
				continue
			}
			a.log.Info("config reloaded", fields...)

			var restart []string
			for _, sec := range sections {
				switch sec {
				case "logging":
					a.logs.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
					})
				case "reminders":
					if rateOnlyChange(prev, cfg) && a.engine.SetRate(cfg.Reminders.RatePerSec) {
						a.log.Info("dispatch rate updated", logx.Int("rate_per_sec", cfg.Reminders.RatePerSec))
					} else {
						restart = append(restart, sec)
					}
				default:
					restart = append(restart, sec)
				}
			}
			if len(restart) > 0 {
				a.log.Warn("config change requires restart",
					logx.String("sections", strings.Join(restart, ",")))
			}
			prev = cfg
		}
	}
}

func rateOnlyChange(oldCfg, newCfg *config.Config) bool {
	tmp := oldCfg.Reminders
	tmp.RatePerSec = newCfg.Reminders.RatePerSec
	return tmp == newCfg.Reminders
}

// validateConfig rejects a config before it is committed, both at
// startup and on hot reload.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if _, err := config.ParseDurationField("reminders.horizon", cfg.Reminders.Horizon); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout); err != nil {
		return err
	}
	for _, f := range []struct{ path, raw string }{
		{"api.read_timeout", cfg.API.ReadTimeout},
		{"api.write_timeout", cfg.API.WriteTimeout},
		{"api.idle_timeout", cfg.API.IdleTimeout},
	} {
		if _, err := config.ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", "sqlite", "sqlite3", "postgres", "pgx":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", cfg.Store.Driver)
	}

	switch ch := strings.ToLower(strings.TrimSpace(cfg.Push.Channel)); ch {
	case "", "none":
	case "fcm":
		if strings.TrimSpace(cfg.Push.CredentialsFile) == "" {
			return errors.New("push.credentials_file: required for the fcm channel")
		}
	case "telegram":
		if strings.TrimSpace(cfg.Push.BotToken) == "" {
			return errors.New("push.bot_token: required for the telegram channel")
		}
	default:
		return fmt.Errorf("push.channel: unknown channel %q", cfg.Push.Channel)
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	if cfg.Reminders.RatePerSec < 0 {
		return errors.New("reminders.rate_per_sec: must be >= 0")
	}
	if cfg.Reminders.Workers < 0 {
		return errors.New("reminders.workers: must be >= 0")
	}

	return nil
}
