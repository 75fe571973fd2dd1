// Package cli is the paydigest command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"paydigest/internal/app"
	"paydigest/internal/config"
	logx "paydigest/pkg/logx"
)

type rootOptions struct {
	configPath string
	envFile    string

	// lookup replaces os.LookupEnv in tests.
	lookup func(string) (string, bool)
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(version, &rootOptions{})
}

func newRootCmd(version string, opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "paydigest",
		Short: "PayPal payment ingestion with a daily Telegram digest",
		Long: `paydigest records completed PayPal sales received by webhook and, once a day,
stores and delivers a summary of the previous day's income to a Telegram chat.

Run "paydigest serve" behind a reverse proxy for the webhook, and
"paydigest run-daily" from cron shortly after midnight.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional JSON or YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the process environment")

	root.AddCommand(
		newServeCmd(opts),
		newRunDailyCmd(opts),
		newMigrateCmd(opts),
		newSummariesCmd(opts),
		newLogsCmd(opts),
	)
	return root
}

// Execute runs the CLI and returns the process exit status.
func Execute(version string) int {
	root := NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:    o.configPath,
		EnvFile: o.envFile,
		Lookup:  o.lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// withLogger loads config, builds the logger and runs fn, closing the log
// file afterwards.
func (o *rootOptions) withLogger(fn func(cfg *config.Config, log logx.Logger) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	logs, log := app.NewLogger(cfg)
	defer func() { _ = logs.Close() }()
	return fn(cfg, log)
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
