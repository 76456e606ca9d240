package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fmt.Fprintln(os.Stdout, "Schema up to date.")
		return nil
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate snapshot rows left by repeated runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.Dedupe(ctx)
		if err != nil {
			return eris.Wrap(err, "dedupe")
		}
		fmt.Fprintf(os.Stdout, "Removed %d duplicate rows (%d job, %d pole).\n",
			res.Total(), res.JobMetrics, res.PoleMetrics)

		n, err := st.CountDLQ(ctx)
		if err != nil {
			return eris.Wrap(err, "count dlq")
		}
		if n > 0 {
			fmt.Fprintf(os.Stdout, "%d jobs are queued for retry.\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(dedupeCmd)
}
