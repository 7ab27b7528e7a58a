package middleware

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/perplext/redteam-core/src/provider/core"
)

// RetryMiddleware retries a transient provider failure with exponential
// backoff and jitter, bailing out immediately on abort errors.
type RetryMiddleware struct {
	config *core.RetryConfig
}

// NewRetryMiddleware creates a retry middleware; a nil config falls back to
// core.DefaultRetryConfig.
func NewRetryMiddleware(config *core.RetryConfig) *RetryMiddleware {
	if config == nil {
		config = core.DefaultRetryConfig()
	}
	return &RetryMiddleware{config: config}
}

// Execute runs fn, retrying on a retryable *core.ProviderError until
// MaxRetries is exhausted or ctx is cancelled.
func (m *RetryMiddleware) Execute(ctx context.Context, fn func(ctx context.Context) (core.Envelope, error)) (core.Envelope, error) {
	var result core.Envelope
	var err error

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil || !m.isRetryableError(err) {
			return result, err
		}
		if attempt == m.config.MaxRetries {
			break
		}

		backoff := m.calculateBackoff(attempt, rng)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return core.Envelope{}, ctx.Err()
		}
	}

	return result, fmt.Errorf("max retries reached: %w", err)
}

func (m *RetryMiddleware) isRetryableError(err error) bool {
	providerErr, ok := err.(*core.ProviderError)
	if !ok {
		return false
	}
	if providerErr.IsAbort() {
		return false
	}
	for _, code := range m.config.RetryableStatusCodes {
		if providerErr.StatusCode == code {
			return true
		}
	}
	return providerErr.StatusCode == http.StatusTooManyRequests ||
		(providerErr.StatusCode >= 500 && providerErr.StatusCode < 600)
}

func (m *RetryMiddleware) calculateBackoff(attempt int, rng *rand.Rand) time.Duration {
	backoff := float64(m.config.InitialBackoff) * math.Pow(m.config.BackoffMultiplier, float64(attempt))
	jitter := 0.5 + rng.Float64()*0.5
	backoff *= jitter
	if backoff > float64(m.config.MaxBackoff) {
		backoff = float64(m.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// UpdateConfig replaces the retry configuration, copying to avoid races with
// an in-flight Execute reading the old config.
func (m *RetryMiddleware) UpdateConfig(config *core.RetryConfig) {
	if config == nil {
		return
	}
	configCopy := *config
	m.config = &configCopy
}

// GetConfig returns a copy of the current retry configuration.
func (m *RetryMiddleware) GetConfig() *core.RetryConfig {
	configCopy := *m.config
	return &configCopy
}
