package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casperarmani/backendmultchat/internal/session"
)

// sweepCmd represents the sweep-sessions command
var sweepCmd = &cobra.Command{
	Use:   "sweep-sessions",
	Short: "Remove session records left without a TTL",
	Long: `Scan all session records and delete any that lost their expiration,
the same cleanup the server runs periodically.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store := session.NewStore(rdb, cfg.Session.Lifetime, cfg.Session.RefreshThreshold, logger)
	removed, err := store.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	logger.Info().Int("removed", removed).Msg("Session sweep complete")
	return nil
}
