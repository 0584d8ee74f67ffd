package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/simulate"
)

// newSimulateCmd creates the 'simulate' subcommand. It runs one synthetic job
// through a tracker in the foreground and prints the final snapshot.
func newSimulateCmd() *cobra.Command {
	var opts simulate.Options
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Runs one simulated job through an aggregate tracker",
		Long: `Starts a tracker, joins synthetic contributors that report progress in
steps, and waits for the tracker to finish. Events flow through every
configured sink exactly as they would for a job launched via the API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulateCommand(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "tracker display name (default from config)")
	cmd.Flags().IntVar(&opts.Contributors, "contributors", 0, "number of contributors (default from config)")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "progress steps per contributor (default from config)")
	return cmd
}

func runSimulateCommand(cmd *cobra.Command, opts simulate.Options) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := appInstance.Close(closeCtx); cerr != nil {
			appInstance.Logger().Warn("failed to close application", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := appInstance.Simulate(ctx, opts)
	printResult(cmd, result)
	if err != nil {
		return fmt.Errorf("run simulation: %w", err)
	}
	return nil
}

func printResult(cmd *cobra.Command, result simulate.Result) {
	out := cmd.OutOrStdout()
	snap := result.Snapshot
	percent := 0.0
	if snap.Total > 0 {
		percent = 100 * float64(snap.Position) / float64(snap.Total)
	}
	fmt.Fprintf(out, "tracker %s (%s)\n", result.TrackerID, snap.Name)
	fmt.Fprintf(out, "position %d/%d (%.1f%%) finished=%t elapsed=%s\n",
		snap.Position, snap.Total, percent, snap.Finished, result.Elapsed.Round(time.Millisecond))
}
