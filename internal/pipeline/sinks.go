package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/gis"
	"github.com/deeplydigital/pole-burndown/internal/notify"
	"github.com/deeplydigital/pole-burndown/internal/report"
)

// syncGIS replaces each refreshed job's features. Failures are logged and do
// not stop the run.
func (p *Pipeline) syncGIS(ctx context.Context, outcomes []outcome) {
	if p.gis == nil {
		return
	}
	var synced, failed int
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		jf := gis.FromResult(o.job, o.result)
		if jf.Count() == 0 {
			continue
		}
		if _, err := p.gis.Sync(ctx, jf); err != nil {
			failed++
			zap.L().Warn("pipeline: gis sync failed", zap.String("job_id", o.job.ID), zap.Error(err))
			continue
		}
		synced++
	}
	zap.L().Info("pipeline: gis sync complete", zap.Int("synced", synced), zap.Int("failed", failed))
}

// publishDaily writes the workbook, emails it and mirrors burndown records to
// Notion. It returns the workbook path, empty when none was written.
func (p *Pipeline) publishDaily(ctx context.Context, d report.Daily) string {
	path := p.writeDaily(d)

	if p.mailer != nil {
		msg := notify.Message{
			Subject: "Aerial Status Report " + d.Generated.Format("01/02/2006"),
			Text:    report.DailySummary(report.Printer(p.cfg.Report.Locale), d),
		}
		if path != "" {
			msg.Attachments = []string{path}
		}
		if err := p.mailer.Send(ctx, msg); err != nil {
			zap.L().Warn("pipeline: email failed", zap.Error(err))
		}
	}

	if p.notion != nil && len(d.Burndown) > 0 {
		res, err := p.notion.Publish(ctx, d.Burndown)
		if err != nil {
			zap.L().Warn("pipeline: notion publish failed", zap.Error(err))
		} else {
			zap.L().Info("pipeline: notion published", zap.Int("created", res.Created), zap.Int("updated", res.Updated))
		}
	}
	return path
}

func (p *Pipeline) writeDaily(d report.Daily) string {
	if p.cfg.Report.OutputDir == "" {
		return ""
	}
	f, err := report.DailyWorkbook(d)
	if err != nil {
		zap.L().Warn("pipeline: build workbook", zap.Error(err))
		return ""
	}
	path, err := report.Save(f, p.cfg.Report.OutputDir, DailyReportPrefix, d.Generated)
	if err != nil {
		zap.L().Warn("pipeline: save workbook", zap.Error(err))
		return ""
	}
	zap.L().Info("pipeline: workbook written", zap.String("path", path))
	return path
}
