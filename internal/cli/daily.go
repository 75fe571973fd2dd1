package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"paydigest/internal/app"
	"paydigest/internal/config"
	logx "paydigest/pkg/logx"
)

func newRunDailyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-daily",
		Short: "Summarize yesterday, deliver it and apply retention",
		Long: `Summarize yesterday (in summary.timezone), store the summary, deliver it to
Telegram and delete data older than retention.days.

A day that already has a summary is skipped silently. The command exits 1 when
the database is unreachable or the summary cannot be stored; a failed delivery
is logged and leaves the summary unsent without failing the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withLogger(func(cfg *config.Config, log logx.Logger) error {
				rep, err := app.RunDaily(cmdContext(cmd), cfg, log)
				if err != nil {
					log.Error("daily run failed", logx.Err(err))
					return err
				}
				fmt.Fprintf(out(cmd), "%s %s attempts=%d swept_payments=%d swept_summaries=%d\n",
					rep.Result.Day, rep.Result.Outcome, rep.Result.Delivery.Attempts,
					rep.Sweep.Payments, rep.Sweep.Summaries)
				return nil
			})
		},
	}
}
