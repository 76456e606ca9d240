package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/deeplydigital/pole-burndown/internal/gis"
	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/notify"
	"github.com/deeplydigital/pole-burndown/internal/report"
	"github.com/deeplydigital/pole-burndown/internal/store"
	"github.com/deeplydigital/pole-burndown/pkg/katapult"
)

// mockProvider implements katapult.Client.
type mockProvider struct{ mock.Mock }

func (m *mockProvider) ListJobs(ctx context.Context) ([]katapult.JobSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]katapult.JobSummary), args.Error(1)
}

func (m *mockProvider) GetJob(ctx context.Context, id string) (*katapult.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*katapult.Job), args.Error(1)
}

func (m *mockProvider) ListUpdatedJobs(ctx context.Context, from, to time.Time) ([]katapult.UpdatedJob, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]katapult.UpdatedJob), args.Error(1)
}

func (m *mockProvider) ListUsers(ctx context.Context) ([]katapult.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]katapult.User), args.Error(1)
}

// mockSync implements FeatureSync.
type mockSync struct{ mock.Mock }

func (m *mockSync) Sync(ctx context.Context, jf gis.JobFeatures) (gis.SyncResult, error) {
	args := m.Called(ctx, jf)
	return args.Get(0).(gis.SyncResult), args.Error(1)
}

// mockPublisher implements Publisher.
type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, records []model.BurndownRecord) (report.PublishResult, error) {
	args := m.Called(ctx, records)
	return args.Get(0).(report.PublishResult), args.Error(1)
}

// mockMailer implements Mailer.
type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// failingStore fails RecordJob for selected job ids and delegates the rest.
type failingStore struct {
	store.Store
	fail map[string]error
}

func (s *failingStore) RecordJob(ctx context.Context, snap model.Snapshot, ts time.Time) (*store.RecordResult, error) {
	if err, ok := s.fail[snap.Job.ID]; ok {
		return nil, err
	}
	return s.Store.RecordJob(ctx, snap, ts)
}
