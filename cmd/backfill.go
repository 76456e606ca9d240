package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute burndown records from stored job snapshots",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		start, end, err := dateRange(cmd, func(t time.Time) time.Time { return t })
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "backfill")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Backfill(ctx, start, end)
		if err != nil {
			return eris.Wrap(err, "backfill")
		}
		fmt.Fprintf(os.Stdout, "Backfilled %d days (%d without data), %d records written.\n",
			res.Days, res.Empty, res.Records)
		return nil
	},
}

func init() {
	addDateFlags(backfillCmd, "last date, inclusive (default start date)")
	rootCmd.AddCommand(backfillCmd)
}
