package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "burndown",
	Short:   "Utility pole burndown forecasting",
	Version: version,
	Long: `burndown pulls pole jobs from the Katapult provider API and resolves each
pole's attributes into daily per-job metrics. Snapshots, status changes and
forecasts are kept in SQLite or Postgres.

Results go out through the GIS feature service (GeoJSON and shapefile), a
weekly xlsx workbook, email reports, Notion pages and the read-only HTTP API
started by "serve".`,
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// loadRuntime reads configuration and installs the global logger before any
// subcommand runs.
func loadRuntime(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c
	zap.L().Debug("runtime loaded", zap.String("command", cmd.Name()), zap.String("version", version))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
