package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/burndown"
	"github.com/deeplydigital/pole-burndown/internal/report"
)

// BackfillResult summarizes a backfill.
type BackfillResult struct {
	RunID   string `json:"run_id"`
	Days    int    `json:"days"`
	Empty   int    `json:"empty"`
	Records int    `json:"records"`
}

// Backfill recomputes burndown records for every day from start through end
// (inclusive dates, UTC) using stored job rows. Each day folds the newest row
// of every job recorded that day; days without rows are left untouched.
func (p *Pipeline) Backfill(ctx context.Context, start, end time.Time) (*BackfillResult, error) {
	first, last := day(start), day(end)
	if last.Before(first) {
		return nil, eris.Errorf("pipeline: end date %s before start date %s",
			last.Format(time.DateOnly), first.Format(time.DateOnly))
	}

	run, err := p.store.StartRun(ctx, KindBackfill, p.now())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	defer p.finish(ctx, run)
	res := &BackfillResult{RunID: run.ID}

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "pipeline: backfill cancelled")
		}
		log := zap.L().With(zap.String("date", d.Format(time.DateOnly)))

		rows, err := p.store.ListJobMetrics(ctx, d, d.AddDate(0, 0, 1))
		if err != nil {
			run.Failed++
			return res, eris.Wrapf(err, "pipeline: list jobs for %s", d.Format(time.DateOnly))
		}
		if len(rows) == 0 {
			res.Empty++
			run.Skipped++
			log.Debug("pipeline: no stored jobs")
			continue
		}

		newest := report.Newest(rows)
		asOf := newest[0].Timestamp
		for _, m := range newest {
			if m.Timestamp.After(asOf) {
				asOf = m.Timestamp
			}
		}
		acc := burndown.NewAccumulator(p.cfg.Rates, asOf)
		for _, m := range newest {
			acc.FoldMetric(m)
		}

		records := acc.Snapshot(d)
		if err := p.store.UpsertBurndown(ctx, records); err != nil {
			run.Failed++
			return res, eris.Wrapf(err, "pipeline: upsert burndown for %s", d.Format(time.DateOnly))
		}
		res.Days++
		res.Records += len(records)
		run.Processed++
		log.Info("pipeline: day backfilled", zap.Int("jobs", acc.Jobs()), zap.Int("records", len(records)))
	}

	zap.L().Info("pipeline: backfill complete",
		zap.String("run_id", run.ID),
		zap.Int("days", res.Days),
		zap.Int("empty", res.Empty),
		zap.Int("records", res.Records),
	)
	return res, nil
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
