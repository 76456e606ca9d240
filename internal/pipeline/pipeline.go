// Package pipeline runs the daily burndown cycle: fetch jobs from the
// provider, extract canonical nodes, persist snapshots, recompute burndown
// records and publish them to the configured sinks.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/config"
	"github.com/deeplydigital/pole-burndown/internal/extract"
	"github.com/deeplydigital/pole-burndown/internal/gis"
	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/notify"
	"github.com/deeplydigital/pole-burndown/internal/report"
	"github.com/deeplydigital/pole-burndown/internal/store"
	"github.com/deeplydigital/pole-burndown/pkg/katapult"
)

// Run kinds recorded in the runs table.
const (
	KindDaily    = "daily"
	KindBackfill = "backfill"
	KindWeekly   = "weekly"
)

// Report file prefixes.
const (
	DailyReportPrefix  = "Aerial_Status_Report"
	WeeklyReportPrefix = "Weekly_Status_Report"
)

// CarryForwardWindow bounds how old a stored job row may be and still count
// toward today's burndown when the job was not refreshed.
const CarryForwardWindow = 30 * 24 * time.Hour

// FeatureSync replaces a job's features in the GIS service.
type FeatureSync interface {
	Sync(ctx context.Context, jf gis.JobFeatures) (gis.SyncResult, error)
}

// Publisher mirrors burndown records to a document store.
type Publisher interface {
	Publish(ctx context.Context, records []model.BurndownRecord) (report.PublishResult, error)
}

// Mailer delivers report emails.
type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Pipeline orchestrates one run against a store and a job provider.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	provider  katapult.Client
	extractor *extract.Extractor
	gis       FeatureSync
	notion    Publisher
	mailer    Mailer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGIS enables the feature service sink.
func WithGIS(s FeatureSync) Option {
	return func(p *Pipeline) { p.gis = s }
}

// WithNotion enables the Notion sink.
func WithNotion(pub Publisher) Option {
	return func(p *Pipeline) { p.notion = pub }
}

// WithMailer enables report emails.
func WithMailer(m Mailer) Option {
	return func(p *Pipeline) { p.mailer = m }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithClock overrides the run clock (for testing).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. Sinks are disabled unless passed as options.
func New(cfg *config.Config, st store.Store, provider katapult.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		store:     st,
		provider:  provider,
		extractor: extract.New(extract.WithAttachmentCompany(cfg.Resolver.AttachmentCompany)),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) concurrency() int {
	if p.cfg.Pipeline.Concurrency < 1 {
		return 1
	}
	return p.cfg.Pipeline.Concurrency
}

// finish closes the run record even when ctx has been cancelled.
func (p *Pipeline) finish(ctx context.Context, run *store.Run) {
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Warn("pipeline: finish run", zap.String("run_id", run.ID), zap.Error(err))
	}
}
