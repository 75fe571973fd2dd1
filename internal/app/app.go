package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"paydigest/internal/config"
	rtsup "paydigest/internal/runtime/supervisor"
	"paydigest/internal/scheduler"
	"paydigest/internal/sdnotify"
	"paydigest/internal/server"
	"paydigest/internal/storage"
	"paydigest/internal/summary"
	"paydigest/internal/webhook"
	logx "paydigest/pkg/logx"
)

// App is the long-running `serve` process: webhook listener, optional
// in-process scheduler and systemd notifications over one store.
type App struct {
	cfg *config.Config
	log logx.Logger

	store storage.Store
	job   *summary.Job
	http  *server.Service
	sched *scheduler.Service
	sd    *sdnotify.Notifier

	sup *rtsup.Supervisor
}

// New connects to storage (migrating first) and builds every component.
// Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "app"))

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, store storage.Store, log logx.Logger) (*App, error) {
	job, err := NewJob(cfg, store, log)
	if err != nil {
		return nil, err
	}

	in := webhook.NewIngestor(mapWebhookConfig(cfg), store, log.With(logx.String("comp", "webhook")))
	gin.SetMode(gin.ReleaseMode)
	engine, err := server.NewEngine(mapRoutesConfig(cfg), in, store.Ping, log.With(logx.String("comp", "http")))
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:   cfg,
		log:   log,
		store: store,
		job:   job,
		http:  server.New(srvCfg, engine, log.With(logx.String("comp", "http"))),
		sd:    sdnotify.New(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd"))),
	}

	if cfg.Scheduler.Enabled {
		sc, err := mapSchedulerConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.sched, err = scheduler.New(sc, a.runJob, log.With(logx.String("comp", "scheduler")))
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) runJob(ctx context.Context) error {
	_, err := a.job.Run(ctx)
	return err
}

// Addr is the bound listener address once Start has returned.
func (a *App) Addr() string { return a.http.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start binds the listener, then starts the scheduler and systemd
// notifications. A bind failure is returned as is.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.http.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sup.Go("http.watch", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case <-a.http.Done():
			if err := a.http.Err(); err != nil {
				return err
			}
			return nil
		}
	})

	if a.sched != nil {
		a.sched.Start(a.sup.Context())
	}

	a.sd.Ready()
	a.sd.Status("listening on " + a.http.Addr())
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.Watchdog(c, a.store.Ping)
	})

	a.log.Info("app started",
		logx.String("addr", a.http.Addr()),
		logx.Bool("scheduler", a.sched != nil),
	)
	return nil
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.store.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Scheduler first so no new run starts against a closing store.
	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error {
		if a.sched != nil {
			a.sched.Stop(c)
		}
		return nil
	})
	a.step(ctx, "http", 10*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })

	a.sup.Cancel()
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}

	a.log.Info("stopped")
	return nil
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
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
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
