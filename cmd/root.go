// Package cmd defines and implements the CLI commands for the aggregator executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/config"
	"github.com/JakeFAU/progress-aggregator/internal/server"
	"github.com/JakeFAU/progress-aggregator/internal/simulate"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Run(ctx context.Context) error
	Simulate(ctx context.Context, opts simulate.Options) (simulate.Result, error)
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates the root command with its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "aggregator",
		Short: "Aggregates progress reported by concurrent contributors.",
		Long: `aggregator combines the progress of many independent contributors into
one tracker per job and fans the resulting events out to logs, Prometheus,
Postgres and Pub/Sub.`,
		SilenceUsage: true,

		// Runs after flags are parsed but before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newServeCmd(), newSimulateCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
