package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	status int
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d", e.status) }

func (e *statusError) HTTPStatus() int { return e.status }

// fastOptions keeps the backoff waits negligible in tests.
func fastOptions() Options {
	return Options{
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Rand:      func() float64 { return 0 },
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, fastOptions())

	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &statusError{status: 503}
		}
		return 42, nil
	}, fastOptions())

	assert.True(t, res.Success)
	assert.Equal(t, 42, res.Value)
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	lastErr := &statusError{status: 500}
	res := Do(context.Background(), func(ctx context.Context) (int, error) {
		return 0, lastErr
	}, fastOptions())

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.Err, error(lastErr))
}

func TestDo_NonRetriableStopsImmediately(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &statusError{status: 401}
	}, fastOptions())

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomRetryCondition(t *testing.T) {
	opts := fastOptions()
	opts.RetryIf = func(err error) bool { return false }

	calls := 0
	res := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &statusError{status: 503}
	}, opts)

	assert.False(t, res.Success)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := Options{
		BaseDelay: time.Hour, // backoff would block without cancellation
		Rand:      func() float64 { return 0 },
	}

	done := make(chan Result[int], 1)
	go func() {
		done <- Do(ctx, func(ctx context.Context) (int, error) {
			return 0, &statusError{status: 503}
		}, opts)
	}()

	cancel()

	select {
	case res := <-done:
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, 1, res.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDelay_FormulaAndCap(t *testing.T) {
	opts := Options{
		BaseDelay:     time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
		Rand:          func() float64 { return 1 }, // maximum jitter
	}.withDefaults()

	// base*factor^(n-1)*(1+0.1), capped at MaxDelay.
	assert.Equal(t, 1100*time.Millisecond, delay(1, opts))
	assert.Equal(t, 2200*time.Millisecond, delay(2, opts))
	assert.Equal(t, 4400*time.Millisecond, delay(3, opts))
	assert.Equal(t, 8800*time.Millisecond, delay(4, opts))
	assert.Equal(t, 10*time.Second, delay(5, opts))
}

func TestDelay_NoJitter(t *testing.T) {
	opts := Options{Rand: func() float64 { return 0 }}.withDefaults()
	assert.Equal(t, time.Second, delay(1, opts))
	assert.Equal(t, 2*time.Second, delay(2, opts))
}

func TestDefaultRetryIf(t *testing.T) {
	retryIf := DefaultRetryIf(AlwaysOnline())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server_error", &statusError{status: 500}, true},
		{"rate_limited", &statusError{status: 429}, true},
		{"unauthorized", &statusError{status: 401}, false},
		{"bad_request", &statusError{status: 400}, false},
		{"timeout", context.DeadlineExceeded, true},
		{"wrapped_status", fmt.Errorf("fetch: %w", &statusError{status: 503}), true},
		{"plain_error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryIf(tt.err))
		})
	}
}

type offlineNetwork struct{ online bool }

func (n *offlineNetwork) Online() bool { return n.online }

func (n *offlineNetwork) WaitOnline(ctx context.Context) error {
	n.online = true
	return ctx.Err()
}

func TestDefaultRetryIf_Offline(t *testing.T) {
	retryIf := DefaultRetryIf(&offlineNetwork{online: false})
	assert.True(t, retryIf(errors.New("anything")), "offline failures are always retriable")
}

func TestAlwaysOnline(t *testing.T) {
	n := AlwaysOnline()
	assert.True(t, n.Online())
	require.NoError(t, n.WaitOnline(context.Background()))
}
