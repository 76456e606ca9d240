package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deeplydigital/pole-burndown/internal/burndown"
	"github.com/deeplydigital/pole-burndown/internal/extract"
	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/report"
	"github.com/deeplydigital/pole-burndown/internal/resilience"
	"github.com/deeplydigital/pole-burndown/internal/store"
)

// DLQ stages.
const (
	StageFetch  = "fetch"
	StageRecord = "record"
)

// DailyResult summarizes one daily run.
type DailyResult struct {
	RunID     string                 `json:"run_id"`
	Processed int                    `json:"processed"`
	Failed    int                    `json:"failed"`
	Skipped   int                    `json:"skipped"`
	Carried   int                    `json:"carried"`
	Records   []model.BurndownRecord `json:"records"`
	Report    string                 `json:"report,omitempty"`
}

type target struct {
	id   string
	name string
	dlq  *resilience.DLQEntry
}

type outcome struct {
	job    model.Job
	result extract.Result
	err    error
}

// Daily runs the full cycle once. Per-job failures are queued for retry and
// counted; only listing jobs or writing burndown records fails the run.
func (p *Pipeline) Daily(ctx context.Context) (*DailyResult, error) {
	now := p.now()
	log := zap.L().With(zap.String("kind", KindDaily))

	run, err := p.store.StartRun(ctx, KindDaily, now)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	defer p.finish(ctx, run)
	res := &DailyResult{RunID: run.ID}

	targets, skipped, err := p.targets(ctx, now)
	if err != nil {
		return nil, err
	}
	run.Skipped = skipped
	log.Info("pipeline: processing jobs", zap.Int("jobs", len(targets)), zap.Int("concurrency", p.concurrency()))

	outcomes := p.process(ctx, targets, now)

	acc := burndown.NewAccumulator(p.cfg.Rates, now)
	var jobs []model.Job
	failed := make(map[string]bool)
	for i, o := range outcomes {
		if o.err != nil {
			run.Failed++
			failed[targets[i].id] = true
			continue
		}
		run.Processed++
		acc.Fold(o.job, o.result.Nodes)
		jobs = append(jobs, o.job)
	}

	// With a lookback window every unlisted job is carried; otherwise only
	// the ones that failed this run.
	var only map[string]bool
	if p.cfg.Katapult.LookbackHours <= 0 {
		only = failed
	}
	carried, err := p.carryForward(ctx, acc, now, only)
	if err != nil {
		log.Warn("pipeline: carry forward failed", zap.Error(err))
	}
	jobs = append(jobs, carried...)
	res.Carried = len(carried)

	res.Records = acc.Snapshot(now)
	if err := p.store.UpsertBurndown(ctx, res.Records); err != nil {
		return nil, eris.Wrap(err, "pipeline: upsert burndown")
	}

	p.syncGIS(ctx, outcomes)
	res.Report = p.publishDaily(ctx, report.Daily{Generated: now, Jobs: jobs, Burndown: res.Records})

	res.Processed, res.Failed, res.Skipped = run.Processed, run.Failed, run.Skipped
	log.Info("pipeline: daily run complete",
		zap.String("run_id", run.ID),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("carried", res.Carried),
		zap.Int("records", len(res.Records)),
	)
	return res, nil
}

// targets lists the jobs to refresh in provider order, followed by queued
// failures that are due again. Entries out of retry budget are dropped and
// counted as skipped.
func (p *Pipeline) targets(ctx context.Context, now time.Time) ([]target, int, error) {
	var out []target
	index := make(map[string]int)
	add := func(id, name string) {
		if _, ok := index[id]; ok || id == "" {
			return
		}
		index[id] = len(out)
		out = append(out, target{id: id, name: name})
	}

	if h := p.cfg.Katapult.LookbackHours; h > 0 {
		updated, err := p.provider.ListUpdatedJobs(ctx, now.Add(-time.Duration(h)*time.Hour), now)
		if err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: list updated jobs")
		}
		for _, j := range updated {
			add(j.ID, j.Name)
		}
	} else {
		all, err := p.provider.ListJobs(ctx)
		if err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: list jobs")
		}
		for _, j := range all {
			add(j.ID, j.Name)
		}
	}

	if !p.cfg.Pipeline.RetryFailed {
		return out, 0, nil
	}
	due, err := p.store.DueDLQ(ctx, now, resilience.DLQFilter{Limit: p.cfg.Pipeline.DLQBatchLimit})
	if err != nil {
		zap.L().Warn("pipeline: read retry queue", zap.Error(err))
		return out, 0, nil
	}
	skipped := 0
	for _, e := range due {
		if !e.CanRetry() {
			zap.L().Warn("pipeline: giving up on job",
				zap.String("job_id", e.JobID),
				zap.String("stage", e.Stage),
				zap.Int("retries", e.RetryCount),
				zap.String("error", e.Error),
			)
			if err := p.store.RemoveDLQ(ctx, e.JobID); err != nil {
				zap.L().Warn("pipeline: remove dlq entry", zap.String("job_id", e.JobID), zap.Error(err))
			}
			skipped++
			continue
		}
		add(e.JobID, e.JobName)
		out[index[e.JobID]].dlq = &e
	}
	return out, skipped, nil
}

// process handles targets concurrently. Outcomes keep target order so the
// fold sees jobs in provider order.
func (p *Pipeline) process(ctx context.Context, targets []target, now time.Time) []outcome {
	outcomes := make([]outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(p.concurrency())
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = p.processOne(ctx, t, now)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) processOne(ctx context.Context, t target, now time.Time) outcome {
	log := zap.L().With(zap.String("job_id", t.id))

	raw, err := p.provider.GetJob(ctx, t.id)
	if err != nil {
		p.fail(ctx, t, StageFetch, err, now)
		return outcome{err: err}
	}
	r := p.extractor.Extract(raw)
	job := extract.Summary(raw, r)

	rec, err := p.store.RecordJob(ctx, model.Snapshot{Job: job, Nodes: r.Nodes}, now)
	if err != nil {
		p.fail(ctx, t, StageRecord, err, now)
		return outcome{err: err}
	}
	if t.dlq != nil {
		if err := p.store.RemoveDLQ(ctx, t.id); err != nil {
			log.Warn("pipeline: remove dlq entry", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("job_name", job.Name),
		zap.String("status", job.Status),
		zap.Int("poles", rec.Poles),
		zap.Int("skipped_nodes", r.Skipped.MissingCoordinates+r.Skipped.Unclassified),
	}
	if rec.StatusChange != nil {
		fields = append(fields, zap.String("new_status", rec.StatusChange.NewStatus))
	}
	log.Debug("pipeline: job recorded", fields...)
	return outcome{job: job, result: r}
}

func (p *Pipeline) fail(ctx context.Context, t target, stage string, err error, now time.Time) {
	entry := resilience.NewDLQEntry(t.id, t.name, stage, err, now)
	if t.dlq != nil {
		entry = t.dlq.Failed(err, now)
		entry.Stage = stage
	}
	zap.L().Warn("pipeline: job failed",
		zap.String("job_id", t.id),
		zap.String("stage", stage),
		zap.String("error_class", string(entry.ErrorClass)),
		zap.Time("next_retry_at", entry.NextRetryAt),
		zap.Error(err),
	)
	if qerr := p.store.EnqueueDLQ(ctx, entry); qerr != nil {
		zap.L().Error("pipeline: enqueue dlq entry", zap.String("job_id", t.id), zap.Error(qerr))
	}
}

// carryForward folds the newest stored row of each job not refreshed this
// run. only restricts carrying to those job ids when non-nil. Carried jobs
// are returned with make-ready counts rebuilt from their stored poles.
func (p *Pipeline) carryForward(ctx context.Context, acc *burndown.Accumulator, now time.Time, only map[string]bool) ([]model.Job, error) {
	if only != nil && len(only) == 0 {
		return nil, nil
	}
	rows, err := p.store.ListJobMetrics(ctx, now.Add(-CarryForwardWindow), now)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list stored jobs")
	}

	var out []model.Job
	for _, m := range report.Newest(rows) {
		if only != nil && !only[m.JobID] {
			continue
		}
		before := acc.Jobs()
		acc.FoldMetric(m)
		if acc.Jobs() == before {
			continue
		}
		job, err := p.jobFromMetric(ctx, m)
		if err != nil {
			return out, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (p *Pipeline) jobFromMetric(ctx context.Context, m model.JobMetric) (model.Job, error) {
	job := model.Job{
		ID:             m.JobID,
		Name:           m.JobName,
		Status:         m.Status,
		Utility:        m.Utility,
		Project:        m.Project,
		AssignedUsers:  m.AssignedUsers,
		Priority:       m.Priority,
		TargetDate:     m.TargetDate,
		TotalPoles:     m.TotalPoles,
		CompletedPoles: m.CompletedPoles,
		BackOfficeDone: m.BackOfficeDone,
		MRStatusCounts: make(map[model.MRStatus]int),
	}
	poles, err := p.store.ListPoleMetrics(ctx, m.JobID, m.Timestamp)
	if err != nil {
		return job, eris.Wrapf(err, "pipeline: list stored poles %s", m.JobID)
	}
	for _, pm := range poles {
		job.MRStatusCounts[pm.MRStatus]++
	}
	return job, nil
}

// The weekly assembler reads straight from the store.
var _ report.Source = (store.Store)(nil)
