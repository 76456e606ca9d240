package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deeplydigital/pole-burndown/internal/pipeline"
)

var exportCmd = &cobra.Command{
	Use:   "export [job-id...]",
	Short: "Export job features as shapefiles and GeoJSON",
	Long:  "Fetches the listed jobs (every job when none are given) and writes poles, connections and anchors for offline delivery. The store is not touched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")

		ex, err := initExtractor()
		if err != nil {
			return err
		}
		provider := initProvider()

		ids := args
		if len(ids) == 0 {
			jobs, err := provider.ListJobs(ctx)
			if err != nil {
				return eris.Wrap(err, "export: list jobs")
			}
			for _, j := range jobs {
				ids = append(ids, j.ID)
			}
		}

		p := pipeline.New(cfg, nil, provider, pipeline.WithExtractor(ex))
		res, err := p.Export(ctx, ids, out)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		fmt.Fprintf(os.Stdout, "Exported %d jobs to %s: %d poles, %d connections, %d anchors.\n",
			res.Jobs, res.Dir, res.Poles, res.Connections, res.Anchors)
		if len(res.Failed) > 0 {
			fmt.Fprintf(os.Stdout, "Failed to fetch %d jobs: %v\n", len(res.Failed), res.Failed)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "export", "output directory")
	rootCmd.AddCommand(exportCmd)
}
