package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/notify"
	"github.com/deeplydigital/pole-burndown/internal/report"
)

// WeeklyResult is the assembled status plus the written workbook path.
type WeeklyResult struct {
	RunID  string              `json:"run_id"`
	Status *model.WeeklyStatus `json:"status"`
	Report string              `json:"report,omitempty"`
}

// Weekly assembles stored metrics for [start, end), writes the weekly
// workbook and emails it when a mailer is configured.
func (p *Pipeline) Weekly(ctx context.Context, start, end time.Time) (*WeeklyResult, error) {
	now := p.now()
	run, err := p.store.StartRun(ctx, KindWeekly, now)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	defer p.finish(ctx, run)

	ws, err := report.NewAssembler(p.store).Assemble(ctx, start, end)
	if err != nil {
		run.Failed++
		return nil, eris.Wrap(err, "pipeline: assemble weekly")
	}
	res := &WeeklyResult{RunID: run.ID, Status: ws}

	if dir := p.cfg.Report.OutputDir; dir != "" {
		f, err := report.WeeklyWorkbook(ws, now)
		if err != nil {
			run.Failed++
			return nil, eris.Wrap(err, "pipeline: build weekly workbook")
		}
		if res.Report, err = report.Save(f, dir, WeeklyReportPrefix, now); err != nil {
			run.Failed++
			return nil, eris.Wrap(err, "pipeline: save weekly workbook")
		}
	}
	run.Processed = len(ws.Utilities) + len(ws.Projects)

	if p.mailer != nil {
		msg := notify.Message{
			Subject: "Weekly Status Report " + start.Format("01/02/2006"),
			Text:    report.WeeklySummary(report.Printer(p.cfg.Report.Locale), ws),
		}
		if res.Report != "" {
			msg.Attachments = []string{res.Report}
		}
		if err := p.mailer.Send(ctx, msg); err != nil {
			zap.L().Warn("pipeline: weekly email failed", zap.Error(err))
		}
	}

	zap.L().Info("pipeline: weekly report complete",
		zap.String("run_id", run.ID),
		zap.Int("utilities", len(ws.Utilities)),
		zap.Int("projects", len(ws.Projects)),
		zap.String("report", res.Report),
	)
	return res, nil
}
