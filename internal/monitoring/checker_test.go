package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deeplydigital/pole-burndown/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitorConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockSource{}, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockSource{}, nil), NewAlerter(config.MonitorConfig{}), config.MonitorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckPostsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitorConfig{
		WebhookURL:          ts.URL,
		LookbackWindowHours: 24,
		DLQDepthThreshold:   10,
		StaleAfterHours:     26,
	}
	checker := NewChecker(NewCollector(&mockSource{dlqCount: 12}, fixed(t0)), NewAlerter(cfg), cfg)

	assert.Equal(t, 2, checker.Check(context.Background()))
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitorConfig{LookbackWindowHours: 24, StaleAfterHours: 26}
	checker := NewChecker(NewCollector(&mockSource{listErr: errors.New("db down")}, fixed(t0)), NewAlerter(cfg), cfg)

	assert.Zero(t, checker.Check(context.Background()))
}
