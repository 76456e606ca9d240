// Package store persists per-run job snapshots and derived burndown records.
package store

import (
	"context"
	"time"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// RecordResult describes what one RecordJob call wrote.
type RecordResult struct {
	Poles        int                 `json:"poles"`
	Users        int                 `json:"users"`
	StatusChange *model.StatusChange `json:"status_change,omitempty"`
}

// DedupeResult counts rows removed by Dedupe.
type DedupeResult struct {
	JobMetrics  int64 `json:"job_metrics"`
	PoleMetrics int64 `json:"pole_metrics"`
}

// Total returns all rows removed.
func (r DedupeResult) Total() int64 { return r.JobMetrics + r.PoleMetrics }

// Run is one execution of a pipeline command.
type Run struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
}

// Store defines the persistence interface for burndown metrics. Window
// queries are half-open: [start, end).
type Store interface {
	// Snapshots
	RecordJob(ctx context.Context, snap model.Snapshot, ts time.Time) (*RecordResult, error)
	LatestJobStatus(ctx context.Context, jobID string) (*model.StatusChange, error)
	ListJobMetrics(ctx context.Context, start, end time.Time) ([]model.JobMetric, error)
	ListPoleMetrics(ctx context.Context, jobID string, ts time.Time) ([]model.PoleMetric, error)
	ListStatusChanges(ctx context.Context, start, end time.Time) ([]model.StatusChange, error)
	ListUserMetrics(ctx context.Context, start, end time.Time) ([]model.UserMetric, error)

	// Burndown
	UpsertBurndown(ctx context.Context, records []model.BurndownRecord) error
	ListBurndown(ctx context.Context, start, end time.Time) ([]model.BurndownRecord, error)

	// Failed jobs
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DueDLQ(ctx context.Context, now time.Time, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	RemoveDLQ(ctx context.Context, jobID string) error
	CountDLQ(ctx context.Context) (int, error)

	// Runs
	StartRun(ctx context.Context, kind string, startedAt time.Time) (*Run, error)
	FinishRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, since time.Time) ([]Run, error)

	// Lifecycle
	Dedupe(ctx context.Context) (DedupeResult, error)
	Migrate(ctx context.Context) error
	Close() error
}
