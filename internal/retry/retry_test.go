package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("vault sealed")

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		JitterFactor:   0.1,
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 0.25, cfg.JitterFactor)
}

func TestConfig_EffectiveValues(t *testing.T) {
	t.Parallel()

	var nilCfg *Config
	assert.Equal(t, DefaultMaxRetries, nilCfg.maxRetries())
	assert.Equal(t, DefaultInitialBackoff, nilCfg.initialBackoff())
	assert.Equal(t, DefaultMaxBackoff, nilCfg.maxBackoff())
	assert.Equal(t, DefaultJitterFactor, nilCfg.jitterFactor())

	cfg := &Config{MaxRetries: 7, InitialBackoff: time.Second, MaxBackoff: time.Minute, JitterFactor: 3}
	assert.Equal(t, 7, cfg.maxRetries())
	assert.Equal(t, time.Second, cfg.initialBackoff())
	assert.Equal(t, time.Minute, cfg.maxBackoff())
	assert.Equal(t, MaxJitterFactor, cfg.jitterFactor())
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	var retried []int
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, &Options{
		OnRetry: func(attempt int, err error, _ time.Duration) {
			retried = append(retried, attempt)
			assert.ErrorIs(t, err, errTransient)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return errTransient
	}, nil)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permission denied")
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return permanent
	}, &Options{ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) }})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(3), func() error {
		calls++
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100*time.Millisecond, Backoff(0, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, Backoff(2, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, time.Second, Backoff(10, 100*time.Millisecond, time.Second, 0))

	jittered := Backoff(1, 100*time.Millisecond, time.Second, 0.5)
	assert.GreaterOrEqual(t, jittered, 200*time.Millisecond)
	assert.LessOrEqual(t, jittered, 300*time.Millisecond)
}
