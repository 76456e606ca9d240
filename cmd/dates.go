package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// parseDate parses a YYYY-MM-DD date as UTC midnight.
func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse date %q", s)
	}
	return t, nil
}

// dateRange reads --start-date and --end-date. A missing end defaults to
// defaultEnd(start).
func dateRange(cmd *cobra.Command, defaultEnd func(time.Time) time.Time) (time.Time, time.Time, error) {
	startStr, _ := cmd.Flags().GetString("start-date")
	endStr, _ := cmd.Flags().GetString("end-date")
	if startStr == "" {
		return time.Time{}, time.Time{}, eris.New("--start-date is required")
	}
	start, err := parseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endStr == "" {
		return start, defaultEnd(start), nil
	}
	end, err := parseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.Errorf("--end-date %s is before --start-date %s", endStr, startStr)
	}
	return start, end, nil
}

func addDateFlags(cmd *cobra.Command, endHelp string) {
	cmd.Flags().String("start-date", "", "first date, YYYY-MM-DD")
	cmd.Flags().String("end-date", "", endHelp)
}
