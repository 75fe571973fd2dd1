package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"paydigest/internal/app"
	"paydigest/internal/config"
	logx "paydigest/pkg/logx"
)

func newSummariesCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "summaries",
		Short: "List stored daily summaries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be > 0")
			}
			return opts.withLogger(func(cfg *config.Config, log logx.Logger) error {
				ctx := cmdContext(cmd)
				st, err := app.OpenStore(ctx, cfg, log)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()

				rows, err := st.ListSummaries(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tTRANSACTIONS\tTOTAL\tSENT")
				for _, s := range rows {
					sent := "-"
					if s.Sent() {
						sent = s.TelegramSent.UTC().Format(time.DateTime)
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Date, s.TotalTransactions, s.TotalAmount.StringFixed(2), sent)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 30, "number of days to show")
	return cmd
}
