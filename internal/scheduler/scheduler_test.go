package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/vaultbackend/internal/observability"
)

// soon runs the first time shortly after registration and then hourly.
var soon = Schedule{Frequency: time.Hour, Timeout: time.Second, InitialDelay: 20 * time.Millisecond}

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()

	s := New(observability.NopLogger(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestScheduler_RunsTask(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s := newTestScheduler(t, WithMetrics(metrics))

	var runs atomic.Int32
	err := s.CreateScheduledTaskRunner(soon).Run(context.Background(), TaskInvocation{
		ID: "refresh",
		Fn: func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			runs.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.runsTotal.WithLabelValues("refresh", "success")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"refresh"}, s.Tasks())

	next, ok := s.NextRun("refresh")
	require.True(t, ok)
	assert.True(t, next.After(time.Now().Add(30*time.Minute)))
}

func TestScheduler_TaskFailureIsRecorded(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	metrics := NewMetrics(nil)
	s := New(observability.NewZapLogger(zap.New(core)), WithMetrics(metrics))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	err := s.CreateScheduledTaskRunner(soon).Run(context.Background(), TaskInvocation{
		ID: "failing",
		Fn: func(context.Context) error { return errors.New("vault unavailable") },
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.runsTotal.WithLabelValues("failing", "error")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	entries := logs.FilterMessage("scheduled task failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failing", entries[0].ContextMap()["task"])
	// A failed run keeps the task registered for the next tick.
	assert.Equal(t, []string{"failing"}, s.Tasks())
}

func TestScheduler_TimeoutBoundsRun(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)

	done := make(chan error, 1)
	schedule := Schedule{Frequency: time.Hour, Timeout: 30 * time.Millisecond, InitialDelay: 10 * time.Millisecond}
	err := s.CreateScheduledTaskRunner(schedule).Run(context.Background(), TaskInvocation{
		ID: "slow",
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		},
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("task was not canceled by its timeout")
	}
}

func TestScheduler_ReplacesTaskWithSameID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	s := New(observability.NewZapLogger(zap.New(core)))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	var first, second atomic.Int32
	runner := s.CreateScheduledTaskRunner(soon)

	require.NoError(t, runner.Run(context.Background(), TaskInvocation{
		ID: "refresh-vault-token",
		Fn: func(context.Context) error { first.Add(1); return nil },
	}))
	require.NoError(t, runner.Run(context.Background(), TaskInvocation{
		ID: "refresh-vault-token",
		Fn: func(context.Context) error { second.Add(1); return nil },
	}))

	assert.Len(t, s.cron.Entries(), 1)
	assert.Equal(t, []string{"refresh-vault-token"}, s.Tasks())
	assert.Equal(t, 1, logs.FilterMessage("replacing scheduled task").Len())

	require.Eventually(t, func() bool { return second.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, first.Load())
}

func TestScheduler_ContextCancelUnregisters(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.CreateScheduledTaskRunner(DefaultSchedule()).Run(ctx, TaskInvocation{
		ID: "refresh",
		Fn: func(context.Context) error { return nil },
	}))
	require.Equal(t, []string{"refresh"}, s.Tasks())

	cancel()
	require.Eventually(t, func() bool { return len(s.Tasks()) == 0 }, 5*time.Second, 10*time.Millisecond)
	_, ok := s.NextRun("refresh")
	assert.False(t, ok)
}

func TestScheduler_RecoversPanic(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(observability.NewZapLogger(zap.New(core)))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.NoError(t, s.CreateScheduledTaskRunner(soon).Run(context.Background(), TaskInvocation{
		ID: "panics",
		Fn: func(context.Context) error { panic("boom") },
	}))

	require.Eventually(t, func() bool { return logs.FilterMessage("cron: panic").Len() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestScheduler_InvalidRegistrations(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	runner := s.CreateScheduledTaskRunner(DefaultSchedule())

	assert.ErrorIs(t, runner.Run(context.Background(), TaskInvocation{Fn: func(context.Context) error { return nil }}), ErrInvalidTask)
	assert.ErrorIs(t, runner.Run(context.Background(), TaskInvocation{ID: "x"}), ErrInvalidTask)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, runner.Run(ctx, TaskInvocation{ID: "x", Fn: func(context.Context) error { return nil }}), context.Canceled)

	bad := s.CreateScheduledTaskRunner(Schedule{Cron: "nope"})
	assert.Error(t, bad.Run(context.Background(), TaskInvocation{ID: "x", Fn: func(context.Context) error { return nil }}))
	assert.Empty(t, s.Tasks())
}

func TestScheduler_StopNotStarted(t *testing.T) {
	t.Parallel()

	s := New(nil)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestCronLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := cronLogger{logger: observability.NewZapLogger(zap.New(core))}

	l.Info("wake", "now", "t", 7, "odd")
	l.Error(errors.New("bad"), "panic", "stack", "...")

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, "cron: wake", all[0].Message)
	assert.Equal(t, zapcore.DebugLevel, all[0].Level)
	assert.Equal(t, "t", all[0].ContextMap()["now"])
	assert.Equal(t, "cron: panic", all[1].Message)
	assert.Equal(t, "bad", all[1].ContextMap()["error"])
}
