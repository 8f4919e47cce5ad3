package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/casperarmani/backendmultchat/internal/cache"
	"github.com/casperarmani/backendmultchat/internal/health"
	"github.com/casperarmani/backendmultchat/internal/session"
	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report backend health and operational metrics",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	queue := taskqueue.New(rdb, logger)
	sessions := session.NewStore(rdb, cfg.Session.Lifetime, cfg.Session.RefreshThreshold, logger)
	responseCache := cache.New(rdb, cfg.Cache.DefaultTTL, logger)
	monitor := health.NewMonitor(rdb, queue, responseCache, sessions)

	report := monitor.Health(ctx)
	metrics, err := monitor.Collect(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to collect metrics")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if err := enc.Encode(metrics); err != nil {
		return err
	}

	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("backend is unhealthy")
	}
	return nil
}
