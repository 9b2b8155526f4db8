package retry

import (
	"context"
	"time"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/logger"
)

type Operation func(ctx context.Context) error

type OperationWithResult[T any] func(ctx context.Context) (T, error)

type Config struct {
	// MaxRetries is the number of extra attempts after the first one.
	// Zero runs the operation exactly once.
	MaxRetries int
	Backoff    BackoffStrategy
	// RetryIf decides whether an error is worth another attempt.
	RetryIf func(error) bool
	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig performs a single attempt. Retries are opt-in and limited
// to transient transport failures.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 0,
		Backoff:    DefaultExponentialBackoff(),
		RetryIf:    errs.IsRetryable,
		Logger:     logger.GetLogger(),
	}
}

// Do runs op until it succeeds, returns an error RetryIf rejects, or the
// retry budget is spent. In the last case the final error is wrapped in a
// max-retries error.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = errs.IsRetryable
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}

	attempts := cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":     attempt,
				"error":       err.Error(),
				"delay_ms":    delay.Milliseconds(),
				"max_retries": cfg.MaxRetries,
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return lastErr
		}
	}

	if cfg.MaxRetries == 0 {
		return lastErr
	}
	if cfg.Logger != nil {
		cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
			"attempts":   attempts,
			"last_error": lastErr.Error(),
		})
	}
	return errs.NewMaxRetriesExceeded(attempts, lastErr)
}

func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T
	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)
	return result, err
}
