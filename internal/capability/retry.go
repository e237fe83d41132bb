package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"adforge/internal/campaign"
	"adforge/internal/logging"
)

// retryInitialInterval is the base delay before the first retry.
const retryInitialInterval = 500 * time.Millisecond

// retryMaxInterval caps the exponential backoff delay.
const retryMaxInterval = 10 * time.Second

// Retry runs fn with exponential backoff. Only transient failures (timeouts,
// 5xx) are retried, up to maxRetries additional attempts; content-policy and
// quota errors surface on the first attempt. The last error is returned
// once attempts are exhausted.
func Retry(ctx context.Context, operation string, maxRetries int, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		if attempt <= maxRetries {
			logging.APIDebug("%s attempt %d/%d failed, will retry: %v",
				operation, attempt, maxRetries+1, err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	if err := backoff.Retry(wrapped, policy); err != nil {
		return fmt.Errorf("%s failed after %d attempt(s): %w", operation, attempt, err)
	}
	return nil
}

// retryable reports whether the error may succeed on retry. Content-policy
// rejections and quota exhaustion never do; provider timeouts and 5xx do.
func retryable(err error) bool {
	if campaign.IsContentPolicy(err) {
		return false
	}
	var ese *campaign.ExternalServiceError
	if errors.As(err, &ese) {
		return ese.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
