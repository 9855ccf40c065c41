package objective

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
)

// RetryConfig holds retry configuration for model calls
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-request timeout (default: 60s)

	// Circuit breaker settings
	FailureThreshold int           // Failures before opening circuit (default: 5)
	OpenTimeout      time.Duration // How long to keep circuit open (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           60 * time.Second,
		FailureThreshold:  5,
		OpenTimeout:       30 * time.Second,
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// circuitBreaker fails fast after FailureThreshold consecutive retriable
// failures, then lets one probe through once OpenTimeout has passed.
type circuitBreaker struct {
	mu          sync.Mutex
	failures    int
	open        bool
	lastFailure time.Time
	threshold   int
	openTimeout time.Duration
	now         func() time.Time
}

func (cb *circuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return nil
	}
	if cb.now().Sub(cb.lastFailure) > cb.openTimeout {
		return nil
	}
	return ErrCircuitOpen
}

func (cb *circuitBreaker) success() {
	cb.mu.Lock()
	cb.failures = 0
	cb.open = false
	cb.mu.Unlock()
}

func (cb *circuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = cb.now()
	if cb.threshold > 0 && cb.failures >= cb.threshold {
		cb.open = true
	}
}

// retryWithBackoff executes fn with retry and exponential backoff.
func (r *Runner) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire call slot for %s: %w", operation, err)
	}
	defer r.sem.Release(1)

	var lastErr error
	backoff := r.retry.InitialBackoff

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if err := r.breaker.allow(); err != nil {
			return fmt.Errorf("%s failed: %w", operation, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.retry.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			r.breaker.success()
			if attempt > 0 {
				r.log.Info("model call succeeded after retries",
					zap.String("operation", operation), zap.Int("retries", attempt))
			}
			return nil
		}
		lastErr = err

		if !isRetriableError(err) {
			r.log.Warn("model call failed with non-retriable error",
				zap.String("operation", operation), zap.Error(err))
			return err
		}
		r.breaker.failure()

		if attempt == r.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: context canceled: %w", operation, ctx.Err())
		}

		r.log.Info("model call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.retry.MaxRetries+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * r.retry.BackoffMultiplier)
			if backoff > r.retry.MaxBackoff {
				backoff = r.retry.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s failed: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.retry.MaxRetries+1, lastErr)
}

// isRetriableError reports whether err is transient: timeouts, rate limits,
// server errors and connection failures.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "connection refused", "connection reset", "timeout", "temporary failure", "overloaded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
