package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/config"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
)

type mockTriggers struct {
	mock.Mock
}

func (m *mockTriggers) StartDueBookings(ctx context.Context, now time.Time) application.TriggerResult {
	return m.Called(ctx, now).Get(0).(application.TriggerResult)
}

func (m *mockTriggers) CompleteDueBookings(ctx context.Context, now time.Time) application.TriggerResult {
	return m.Called(ctx, now).Get(0).(application.TriggerResult)
}

func (m *mockTriggers) ExpireStaleApprovals(ctx context.Context, now time.Time) application.TriggerResult {
	return m.Called(ctx, now).Get(0).(application.TriggerResult)
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:      true,
		StartSpec:    "@every 1m",
		CompleteSpec: "@every 1m",
		ExpireSpec:   "*/5 * * * *",
	}
}

func TestNew_RegistersJobs(t *testing.T) {
	s, err := New(new(mockTriggers), clock.NewRealClock(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.entries, 3)

	_, ok := s.Next("expire")
	assert.True(t, ok)
	_, ok = s.Next("unknown")
	assert.False(t, ok)
}

func TestNew_InvalidSpec(t *testing.T) {
	cfg := testConfig()
	cfg.CompleteSpec = "every minute"

	_, err := New(new(mockTriggers), clock.NewRealClock(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complete")
}

func TestJob_UsesClockTime(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	triggers := new(mockTriggers)
	s, err := New(triggers, clock.NewMockClock(now), testConfig(), zap.NewNop())
	require.NoError(t, err)

	triggers.On("StartDueBookings", mock.Anything, now).Return(application.TriggerResult{Job: "start", Processed: 2})
	triggers.On("ExpireStaleApprovals", mock.Anything, now).Return(application.TriggerResult{
		Job: "expire", Failed: 1, Err: errors.New("booking x: conflict"),
	})

	s.job("start", triggers.StartDueBookings)()
	s.job("expire", triggers.ExpireStaleApprovals)()

	triggers.AssertExpectations(t)
}

func TestStartStop(t *testing.T) {
	s, err := New(new(mockTriggers), clock.NewRealClock(), testConfig(), zap.NewNop())
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Error(t, s.ctx.Err())
}
