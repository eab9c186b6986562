package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
)

// RetryPolicy controls how a backend call is retried
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// resilientBackend retries failed calls with exponential backoff and
// paces requests through a shared limiter.
type resilientBackend struct {
	inner   Backend
	policy  RetryPolicy
	limiter *rate.Limiter
	logger  *log.Logger
}

// WithResilience wraps a backend with retry and rate limiting. A nil limiter disables pacing.
func WithResilience(inner Backend, policy RetryPolicy, limiter *rate.Limiter, logger *log.Logger) Backend {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxRetries
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultInitialBackoff
	}
	if logger == nil {
		logger = log.Default()
	}
	return &resilientBackend{inner: inner, policy: policy, limiter: limiter, logger: logger}
}

func (b *resilientBackend) Name() string {
	return b.inner.Name()
}

func (b *resilientBackend) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	var lastErr error
	backoff := b.policy.InitialBackoff
	for attempt := 0; attempt < b.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("%s: %w (last error: %v)", b.Name(), ctx.Err(), lastErr)
			case <-timer.C:
			}
			backoff *= 2
		}

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("%s: rate limiter: %w", b.Name(), err)
			}
		}

		text, err := b.inner.Invoke(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, ErrBlocked) || ctx.Err() != nil {
			break
		}
		b.logger.Printf("Warning: %s attempt %d/%d failed: %v", b.Name(), attempt+1, b.policy.MaxAttempts, err)
	}
	return "", fmt.Errorf("%s failed after retries: %w", b.Name(), lastErr)
}
