// Package cmd wires the CLI surface: serve, migrate, scheduler and tick.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the root command. SIGINT/SIGTERM cancel the command context so
// long-running subcommands shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:   "fedpulse",
		Short: "Federal Reserve news analysis engine",
	}
	root.AddCommand(serveCMD(), migrateCMD(), schedulerCMD(), tickCMD())
	return root.ExecuteContext(ctx)
}
