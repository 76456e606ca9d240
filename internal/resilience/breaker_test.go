package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("gis", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	fail := func(context.Context) error { return errors.New("down") }

	require.Error(t, b.Execute(context.Background(), fail))
	assert.Equal(t, BreakerClosed, b.State())
	require.Error(t, b.Execute(context.Background(), fail))
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("notion", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	b.now = func() time.Time { return now }

	require.Error(t, b.Execute(context.Background(), func(context.Context) error { return errors.New("x") }))
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("email", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	b.now = func() time.Time { return now }

	for range 3 {
		_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	}
	now = now.Add(time.Minute)
	require.Error(t, b.Execute(context.Background(), func(context.Context) error { return errors.New("still") }))
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakers_GetAndStates(t *testing.T) {
	bs := NewBreakers(DefaultBreakerConfig())
	assert.Same(t, bs.Get("gis:poles"), bs.Get("gis:poles"))
	bs.Get("notion")
	states := bs.States()
	assert.Len(t, states, 2)
	assert.Equal(t, BreakerClosed, states["notion"])
}

func TestFromBreakerConfig(t *testing.T) {
	cfg := FromBreakerConfig(0, 10)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.ResetTimeout)
}
