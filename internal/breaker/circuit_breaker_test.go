package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingCall(ctx context.Context) (interface{}, error) {
	return nil, errors.New("boom")
}

func okCall(ctx context.Context) (interface{}, error) {
	return "ok", nil
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.OpenTimeout = time.Hour
	cfg.MaxRetryAttempts = 1
	b := New("test", cfg, nil)

	for i := 0; i < 3; i++ {
		_, _, err := b.Call(context.Background(), failingCall, nil, "")
		assert.Error(t, err)
	}
	assert.Equal(t, StateOpen, b.CurrentState())
}

func TestBreakerServesCacheWhenOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OpenTimeout = time.Hour
	cfg.MaxRetryAttempts = 1
	b := New("test", cfg, nil)

	_, _, err := b.Call(context.Background(), okCall, nil, "k1")
	require.NoError(t, err)

	_, _, err = b.Call(context.Background(), failingCall, nil, "")
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.CurrentState())

	result, fromCache, err := b.Call(context.Background(), failingCall, nil, "k1")
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "ok", result)
}

func TestBreakerUsesFallbackWhenOpenAndNoCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OpenTimeout = time.Hour
	cfg.MaxRetryAttempts = 1
	b := New("test", cfg, nil)

	_, _, _ = b.Call(context.Background(), failingCall, nil, "")
	assert.Equal(t, StateOpen, b.CurrentState())

	fallback := func(ctx context.Context) (interface{}, error) { return "fallback", nil }
	result, fromCache, err := b.Call(context.Background(), failingCall, fallback, "")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "fallback", result)
}

func TestBreakerTransitionsHalfOpenThenClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 2
	cfg.OpenTimeout = 10 * time.Millisecond
	cfg.MaxRetryAttempts = 1
	b := New("test", cfg, nil)

	_, _, _ = b.Call(context.Background(), failingCall, nil, "")
	assert.Equal(t, StateOpen, b.CurrentState())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.CurrentState())

	_, _, err := b.Call(context.Background(), okCall, nil, "")
	require.NoError(t, err)
	_, _, err = b.Call(context.Background(), okCall, nil, "")
	require.NoError(t, err)

	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreakerOpensAgainOnHalfOpenFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 2
	cfg.OpenTimeout = 10 * time.Millisecond
	cfg.MaxRetryAttempts = 1
	b := New("test", cfg, nil)

	_, _, _ = b.Call(context.Background(), failingCall, nil, "")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.CurrentState())

	_, _, err := b.Call(context.Background(), failingCall, nil, "")
	assert.Error(t, err)
	assert.Equal(t, StateOpen, b.CurrentState())
}

func TestCallRetriesBeforeRecordingFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 10
	cfg.MaxRetryAttempts = 3
	cfg.BaseBackoffDelay = time.Millisecond
	cfg.MaxBackoffDelay = 5 * time.Millisecond
	b := New("test", cfg, nil)

	var attempts int
	flaky := func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}

	result, fromCache, err := b.Call(context.Background(), flaky, nil, "")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateClosed, b.CurrentState(), "a call that eventually succeeds must not count as an overall failure")
}

func TestCallGivesUpAfterMaxRetryAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 10
	cfg.MaxRetryAttempts = 3
	cfg.BaseBackoffDelay = time.Millisecond
	cfg.MaxBackoffDelay = 5 * time.Millisecond
	b := New("test", cfg, nil)

	var attempts int
	alwaysFails := func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("boom")
	}

	_, _, err := b.Call(context.Background(), alwaysFails, nil, "")
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCallRetryAbortsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 5
	cfg.BaseBackoffDelay = time.Hour
	b := New("test", cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	alwaysFails := func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts == 1 {
			cancel()
		}
		return nil, errors.New("boom")
	}

	_, _, err := b.Call(ctx, alwaysFails, nil, "")
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "retry loop must not sleep through a cancelled context")
}
