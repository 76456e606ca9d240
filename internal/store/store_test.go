package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testSnapshot(status string) model.Snapshot {
	edited := t0.Add(-2 * time.Hour)
	poa := model.Height{TotalInches: 132}
	return model.Snapshot{
		Job: model.Job{
			ID:             "job-1",
			Name:           "North Loop 14",
			Status:         status,
			Utility:        "Ameren",
			Project:        "North Loop",
			AssignedUsers:  []string{"u1"},
			Priority:       2,
			TotalPoles:     2,
			CompletedPoles: 1,
			BackOfficeDone: 1,
		},
		Nodes: []model.Node{
			{
				ID: "n1", Type: model.NodeTypePole, Utility: "Ameren",
				FieldCompleted: true, BackOfficeComplete: true, MRStatus: model.MRStatusNone,
				PoleHeight: "40", PoleClass: "4", POAHeight: &poa,
				LastEditor: &model.Edit{Editor: "alice", At: edited},
			},
			{ID: "n2", Type: model.NodeTypePole, Utility: "Ameren", MRStatus: model.MRStatusComm},
			{ID: "a1", Type: model.NodeTypeAnchor},
		},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("RecordJobIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		snap := testSnapshot(model.StatusSentToPE)

		res, err := s.RecordJob(ctx, snap, t0)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Poles)
		assert.Equal(t, 1, res.Users)
		require.NotNil(t, res.StatusChange)
		assert.True(t, res.StatusChange.IsOrigin())

		res, err = s.RecordJob(ctx, snap, t0)
		require.NoError(t, err)
		assert.Nil(t, res.StatusChange)

		jobs, err := s.ListJobMetrics(ctx, t0, t0.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-1", jobs[0].JobID)
		assert.Equal(t, []string{"u1"}, jobs[0].AssignedUsers)
		assert.Equal(t, 2, jobs[0].TotalPoles)
		assert.True(t, t0.Equal(jobs[0].Timestamp))

		poles, err := s.ListPoleMetrics(ctx, "job-1", t0)
		require.NoError(t, err)
		require.Len(t, poles, 2)
		assert.Equal(t, "n1", poles[0].NodeID)
		assert.Equal(t, "alice", poles[0].FieldCompletedBy)
		require.NotNil(t, poles[0].POAHeightInches)
		assert.Equal(t, 132, *poles[0].POAHeightInches)
		assert.Nil(t, poles[1].POAHeightInches)
		assert.Equal(t, model.MRStatusComm, poles[1].MRStatus)

		changes, err := s.ListStatusChanges(ctx, t0, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, changes, 1)

		users, err := s.ListUserMetrics(ctx, t0, t0.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "alice", users[0].UserID)
		assert.Equal(t, model.RoleField, users[0].Role)
	})

	t.Run("StatusChangeDuration", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		t1 := t0.Add(36 * time.Hour)

		_, err := s.RecordJob(ctx, testSnapshot(model.StatusSentToPE), t0)
		require.NoError(t, err)
		res, err := s.RecordJob(ctx, testSnapshot(model.StatusDelivered), t1)
		require.NoError(t, err)
		require.NotNil(t, res.StatusChange)

		changes, err := s.ListStatusChanges(ctx, t0, t1.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, changes, 2)
		assert.Nil(t, changes[0].PreviousStatus)
		assert.Nil(t, changes[0].DurationHours)
		require.NotNil(t, changes[1].PreviousStatus)
		assert.Equal(t, model.StatusSentToPE, *changes[1].PreviousStatus)
		assert.Equal(t, model.StatusDelivered, changes[1].NewStatus)
		require.NotNil(t, changes[1].DurationHours)
		assert.InDelta(t, 36.0, *changes[1].DurationHours, 1e-9)
		assert.Equal(t, "alice", changes[1].ChangedBy)

		latest, err := s.LatestJobStatus(ctx, "job-1")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, model.StatusDelivered, latest.NewStatus)
	})

	t.Run("BackfillReadsStatusAsOf", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		t1 := t0.Add(24 * time.Hour)

		_, err := s.RecordJob(ctx, testSnapshot(model.StatusDelivered), t1)
		require.NoError(t, err)
		// An earlier snapshot recorded later still sees no prior status.
		res, err := s.RecordJob(ctx, testSnapshot(model.StatusSentToPE), t0)
		require.NoError(t, err)
		require.NotNil(t, res.StatusChange)
		assert.True(t, res.StatusChange.IsOrigin())
	})

	t.Run("LatestJobStatusMissing", func(t *testing.T) {
		s := newStore(t)
		sc, err := s.LatestJobStatus(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, sc)
	})

	t.Run("UpsertBurndownReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		eta := day.Add(72 * time.Hour)

		rec := model.BurndownRecord{
			EntityType: model.EntityUtility, Entity: "Ameren", Date: day,
			TotalPoles: 10, CompletedPoles: 2, RunRate: 100, EstimatedCompletion: &eta,
			BackOfficeResources: 1,
		}
		require.NoError(t, s.UpsertBurndown(ctx, []model.BurndownRecord{rec}))
		rec.CompletedPoles = 5
		rec.EstimatedCompletion = nil
		project := model.BurndownRecord{
			EntityType: model.EntityProject, Entity: "North Loop", Date: day,
			TotalPoles: 4, ScheduleStatus: "On Track",
		}
		require.NoError(t, s.UpsertBurndown(ctx, []model.BurndownRecord{rec, project}))

		got, err := s.ListBurndown(ctx, day, day.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, model.EntityUtility, got[0].EntityType)
		assert.Equal(t, 5, got[0].CompletedPoles)
		assert.Nil(t, got[0].EstimatedCompletion)
		assert.Equal(t, model.EntityProject, got[1].EntityType)
		assert.Equal(t, "On Track", got[1].ScheduleStatus)
	})

	t.Run("UpsertBurndownEmpty", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.UpsertBurndown(context.Background(), nil))
	})

	t.Run("DLQLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		fail := resilience.NewTransientError(errors.New("gateway timeout"), 504)
		e := resilience.NewDLQEntry("job-1", "North Loop 14", "fetch", fail, t0)
		require.NoError(t, s.EnqueueDLQ(ctx, e))

		due, err := s.DueDLQ(ctx, t0, resilience.DLQFilter{})
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = s.DueDLQ(ctx, t0.Add(2*time.Hour), resilience.DLQFilter{})
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "job-1", due[0].JobID)
		assert.Equal(t, resilience.ClassTransient, due[0].ErrorClass)

		// Re-enqueueing the same job replaces its entry.
		require.NoError(t, s.EnqueueDLQ(ctx, due[0].Failed(fail, t0.Add(2*time.Hour))))
		n, err := s.CountDLQ(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		due, err = s.DueDLQ(ctx, t0.Add(48*time.Hour), resilience.DLQFilter{ErrorClass: resilience.ClassPermanent})
		require.NoError(t, err)
		assert.Empty(t, due)

		require.NoError(t, s.RemoveDLQ(ctx, "job-1"))
		n, err = s.CountDLQ(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("DueDLQIncludesExhausted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e := resilience.NewDLQEntry("job-9", "South 4", "record", errors.New("bad data"), t0)
		e.RetryCount = e.MaxRetries
		require.NoError(t, s.EnqueueDLQ(ctx, e))

		due, err := s.DueDLQ(ctx, t0.Add(25*time.Hour), resilience.DLQFilter{})
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.False(t, due[0].CanRetry())
	})

	t.Run("Runs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.StartRun(ctx, "daily", t0)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)

		run.Processed, run.Failed, run.Skipped = 10, 1, 2
		require.NoError(t, s.FinishRun(ctx, run))
		require.NotNil(t, run.FinishedAt)

		err = s.FinishRun(ctx, &Run{ID: "missing"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run not found")

		_, err = s.StartRun(ctx, "weekly", t0.Add(2*time.Hour))
		require.NoError(t, err)

		runs, err := s.ListRuns(ctx, t0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "daily", runs[0].Kind)
		assert.Equal(t, 1, runs[0].Failed)
		assert.NotNil(t, runs[0].FinishedAt)
		assert.Equal(t, "weekly", runs[1].Kind)
		assert.Nil(t, runs[1].FinishedAt)

		runs, err = s.ListRuns(ctx, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("DedupeClean", func(t *testing.T) {
		s := newStore(t)
		res, err := s.Dedupe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.Total())
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestStoreInterface(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
