package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff.NextDelay(tt.attempt); got != tt.expected {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries: retries,
		Backoff:    &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:    errs.IsRetryable,
		Logger:     logger.NewNopLogger(),
	}
}

func TestDoDefaultIsSingleAttempt(t *testing.T) {
	calls := 0
	timeout := errs.NewTimeout("https://example.com/a.pdf", context.DeadlineExceeded)

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return timeout
	}, fastConfig(0))

	assert.Equal(t, 1, calls)
	assert.Equal(t, errs.ErrorTypeTimeout, errs.TypeOf(err))
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	var retried []int

	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.NewConnection("https://example.com", errors.New("reset"))
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoNeverRetriesPermanentErrors(t *testing.T) {
	for _, permanent := range []error{
		errs.NewURLExpired("https://wellbin-uploads.s3.amazonaws.com/x"),
		errs.NewDownload(404, "Not Found", "https://example.com"),
		errs.NewDownload(500, "Internal Server Error", "https://example.com"),
	} {
		calls := 0
		err := Do(context.Background(), func(ctx context.Context) error {
			calls++
			return permanent
		}, fastConfig(5))

		assert.Equal(t, 1, calls, permanent.Error())
		assert.Equal(t, permanent, err)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.NewTimeout("u", nil)
	}, fastConfig(2))

	assert.Equal(t, 3, calls)
	assert.Equal(t, errs.ErrorTypeMaxRetries, errs.TypeOf(err))
	assert.True(t, errors.Is(err, errs.ErrorTypeTimeout))
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return errs.NewConnection("u", nil)
	}, cfg)

	assert.Equal(t, 1, calls)
	assert.Equal(t, errs.ErrorTypeConnection, errs.TypeOf(err))
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	n, err := DoWithResult(context.Background(), func(ctx context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, errs.NewTimeout("u", nil)
		}
		return 42, nil
	}, fastConfig(1))

	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
