package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deeplydigital/pole-burndown/internal/pipeline"
	"github.com/deeplydigital/pole-burndown/internal/store"
)

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	// Runs started within the lookback window.
	Runs      int `json:"runs"`
	Unclosed  int `json:"unclosed"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// FailRate is failed jobs over attempted jobs (processed + failed).
	FailRate float64 `json:"fail_rate"`

	// LastDaily is when the newest daily run in the window finished.
	LastDaily *time.Time `json:"last_daily,omitempty"`

	DLQDepth int `json:"dlq_depth"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunSource is the subset of the store the collector reads.
type RunSource interface {
	ListRuns(ctx context.Context, since time.Time) ([]store.Run, error)
	CountDLQ(ctx context.Context) (int, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	src RunSource
	now func() time.Time
}

// NewCollector creates a collector. now may be nil.
func NewCollector(src RunSource, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{src: src, now: now}
}

// Collect summarizes runs started within the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.src.ListRuns(ctx, now.Add(-time.Duration(lookbackHours)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.Runs = len(runs)
	for _, r := range runs {
		if r.FinishedAt == nil {
			snap.Unclosed++
			continue
		}
		snap.Processed += r.Processed
		snap.Failed += r.Failed
		snap.Skipped += r.Skipped
		if r.Kind == pipeline.KindDaily && (snap.LastDaily == nil || r.FinishedAt.After(*snap.LastDaily)) {
			snap.LastDaily = r.FinishedAt
		}
	}
	if attempted := snap.Processed + snap.Failed; attempted > 0 {
		snap.FailRate = float64(snap.Failed) / float64(attempted)
	}

	depth, err := c.src.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = depth

	return snap, nil
}
