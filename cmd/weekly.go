package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deeplydigital/pole-burndown/internal/report"
)

var weeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Assemble the weekly status report",
	Long:  "Reads stored burndown records, status changes and user metrics for the week starting --start-date and writes the weekly workbook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		start, end, err := dateRange(cmd, func(t time.Time) time.Time { return t.AddDate(0, 0, 6) })
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "weekly")
		if err != nil {
			return err
		}
		defer env.Close()

		// The end date is inclusive on the command line.
		res, err := env.Pipeline.Weekly(ctx, start, end.AddDate(0, 0, 1))
		if err != nil {
			return eris.Wrap(err, "weekly")
		}
		fmt.Fprint(os.Stdout, report.WeeklySummary(report.Printer(cfg.Report.Locale), res.Status))
		if res.Report != "" {
			fmt.Fprintf(os.Stdout, "\nReport: %s\n", res.Report)
		}
		return nil
	},
}

func init() {
	addDateFlags(weeklyCmd, "last date, inclusive (default start date + 6 days)")
	rootCmd.AddCommand(weeklyCmd)
}
