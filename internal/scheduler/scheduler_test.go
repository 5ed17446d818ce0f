package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunCycle(ctx context.Context, trigger ingest.Trigger) (ingest.CycleResult, error) {
	args := m.Called(ctx, trigger)
	return args.Get(0).(ingest.CycleResult), args.Error(1)
}

func TestNew(t *testing.T) {
	t.Run("accepts descriptors", func(t *testing.T) {
		s, err := New(Config{Spec: "@every 10m"}, new(mockRunner), zerolog.Nop())
		require.NoError(t, err)
		assert.NotZero(t, s.entryID)
	})

	t.Run("accepts five field expressions", func(t *testing.T) {
		_, err := New(Config{Spec: "*/15 * * * *"}, new(mockRunner), zerolog.Nop())
		require.NoError(t, err)
	})

	t.Run("rejects invalid spec", func(t *testing.T) {
		_, err := New(Config{Spec: "every ten minutes"}, new(mockRunner), zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid schedule")
	})
}

func TestScheduler_StartAndStop(t *testing.T) {
	runner := new(mockRunner)
	s, err := New(Config{Spec: "@every 1h"}, runner, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, s.Next().IsZero())
	s.Start()
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Next(), time.Minute)

	require.NoError(t, s.Stop(context.Background()))
	runner.AssertNotCalled(t, "RunCycle", mock.Anything, mock.Anything)
}

func TestScheduler_RunOnStart(t *testing.T) {
	runner := new(mockRunner)
	called := make(chan struct{})
	runner.On("RunCycle", mock.Anything, ingest.TriggerStartup).
		Run(func(mock.Arguments) { close(called) }).
		Return(ingest.CycleResult{Outcome: domain.CycleOutcomeMerged}, nil).Once()

	s, err := New(Config{Spec: "@every 1h", RunOnStart: true}, runner, zerolog.Nop())
	require.NoError(t, err)
	s.Start()

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("startup cycle did not run")
	}
	require.NoError(t, s.Stop(context.Background()))
	runner.AssertExpectations(t)
}

func TestScheduler_StopCancelsRunningCycle(t *testing.T) {
	runner := new(mockRunner)
	started := make(chan struct{})
	var cycleCtx context.Context
	runner.On("RunCycle", mock.Anything, ingest.TriggerStartup).
		Run(func(args mock.Arguments) {
			cycleCtx = args.Get(0).(context.Context)
			close(started)
			<-cycleCtx.Done()
		}).
		Return(ingest.CycleResult{Outcome: domain.CycleOutcomeFailed}, context.Canceled)

	s, err := New(Config{Spec: "@every 1h", RunOnStart: true}, runner, zerolog.Nop())
	require.NoError(t, err)
	s.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, cycleCtx.Err(), context.Canceled)
}

func TestScheduler_Run(t *testing.T) {
	t.Run("cycle in progress is tolerated", func(t *testing.T) {
		runner := new(mockRunner)
		runner.On("RunCycle", mock.Anything, ingest.TriggerSchedule).
			Return(ingest.CycleResult{Outcome: domain.CycleOutcomeSkipped}, domain.ErrCycleInProgress).Once()

		s, err := New(Config{Spec: "@every 1h"}, runner, zerolog.Nop())
		require.NoError(t, err)

		assert.NotPanics(t, s.tick)
		runner.AssertExpectations(t)
	})

	t.Run("failure is logged", func(t *testing.T) {
		runner := new(mockRunner)
		runner.On("RunCycle", mock.Anything, ingest.TriggerSchedule).
			Return(ingest.CycleResult{Outcome: domain.CycleOutcomeFailed}, domain.ErrPersistence).Once()

		s, err := New(Config{Spec: "@every 1h"}, runner, zerolog.Nop())
		require.NoError(t, err)

		assert.NotPanics(t, s.tick)
		runner.AssertExpectations(t)
	})
}
