package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/app"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Operate the commerce webhook pipeline",
	Long: `pipelinectl manages the commerce webhook pipeline from the terminal.

Apply migrations, replay raw events onto the event log, inspect pipeline
statistics and send fake checkout webhooks to a running gateway.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger = app.NewLogger(cfg.Logging, os.Stderr).With("service", "pipelinectl")
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(migrateCmd, replayCmd, statsCmd, seedCmd)
}

// connect builds a runtime for commands that need Postgres and Redis.
func connect(ctx context.Context) (*app.Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return app.New(ctx, cfg, logger)
}
