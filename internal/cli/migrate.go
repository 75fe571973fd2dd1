package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"paydigest/internal/app"
	"paydigest/internal/config"
	logx "paydigest/pkg/logx"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withLogger(func(cfg *config.Config, log logx.Logger) error {
				res, err := app.Migrate(cmdContext(cmd), cfg, log)
				if err != nil {
					return err
				}
				state := "up to date"
				if res.Changed {
					state = "migrated"
				}
				if res.Dirty {
					state += " (dirty)"
				}
				fmt.Fprintf(out(cmd), "schema version %d: %s\n", res.Version, state)
				return nil
			})
		},
	}
}
