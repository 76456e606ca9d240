package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run the daily snapshot and burndown cycle once",
	Long:  "Fetches every job (or jobs updated within katapult.lookback_hours), records pole snapshots, recomputes burndown records and publishes to the configured sinks.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Pipeline.Concurrency = c
		}

		env, err := initPipeline(ctx, "daily")
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		res, err := env.Pipeline.Daily(ctx)
		if err != nil {
			return eris.Wrap(err, "daily")
		}
		zap.L().Info("daily run finished", zap.Duration("elapsed", time.Since(start)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":    res.RunID,
			"processed": res.Processed,
			"failed":    res.Failed,
			"skipped":   res.Skipped,
			"carried":   res.Carried,
			"records":   len(res.Records),
			"report":    res.Report,
		})
	},
}

func init() {
	dailyCmd.Flags().Int("concurrency", 0, "jobs processed in parallel (default from config)")
	rootCmd.AddCommand(dailyCmd)
}
