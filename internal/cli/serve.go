package cli

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paydigest/internal/app"
	"paydigest/internal/config"
	logx "paydigest/pkg/logx"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr     string
		schedule bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook listener",
		Long: `Run the PayPal webhook listener until SIGINT or SIGTERM.

With --schedule (or scheduler.enabled / SCHEDULER_ENABLED) the daily job also
runs in-process on scheduler.spec; otherwise call "paydigest run-daily" from cron.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withLogger(func(cfg *config.Config, log logx.Logger) error {
				return serve(cmdContext(cmd), serveConfig(cfg, addr, schedule), log)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "run the daily job in-process")
	return cmd
}

// serveConfig applies the serve flags to a copy of cfg.
func serveConfig(cfg *config.Config, addr string, schedule bool) *config.Config {
	c := *cfg
	c.Server.TrustedProxies = slices.Clone(cfg.Server.TrustedProxies)
	if addr = strings.TrimSpace(addr); addr != "" {
		c.Server.Addr = addr
	}
	if schedule {
		c.Scheduler.Enabled = true
	}
	return &c
}

func serve(ctx context.Context, cfg *config.Config, log logx.Logger) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		return err
	}
	if err := a.Start(ctx); err != nil {
		log.Error("startup failed", logx.Err(err))
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigs:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			return err
		}
	}
	return nil
}
