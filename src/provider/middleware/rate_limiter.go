// Package middleware provides resilience wrappers (rate limiting, retry,
// circuit breaking) placed in front of the HTTP-backed provider implementations.
package middleware

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter bounds requests-per-minute, tokens-per-minute, and concurrent
// in-flight requests for a single provider.
type RateLimiter struct {
	mutex              sync.RWMutex
	requestLimiter     *rate.Limiter
	tokenLimiter       *rate.Limiter
	concurrencyLimiter chan struct{}
	enabled            bool
}

// NewRateLimiter creates a rate limiter; non-positive arguments fall back to
// conservative per-provider defaults.
func NewRateLimiter(requestsPerMinute, tokensPerMinute, maxConcurrentRequests, burstSize int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if tokensPerMinute <= 0 {
		tokensPerMinute = 100000
	}
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = 10
	}
	if burstSize <= 0 {
		burstSize = requestsPerMinute / 10
		if burstSize < 1 {
			burstSize = 1
		}
	}

	return &RateLimiter{
		requestLimiter:     rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burstSize),
		tokenLimiter:       rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60.0), tokensPerMinute/10),
		concurrencyLimiter: make(chan struct{}, maxConcurrentRequests),
		enabled:            true,
	}
}

// Wait blocks until a request slot and the per-minute request budget allow
// proceeding, or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mutex.RLock()
	enabled := l.enabled
	l.mutex.RUnlock()
	if !enabled {
		return nil
	}

	if err := l.requestLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("request rate limit exceeded: %w", err)
	}

	select {
	case l.concurrencyLimiter <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("concurrency limit wait cancelled: %w", ctx.Err())
	}
	return nil
}

// Release frees the concurrency slot acquired by Wait.
func (l *RateLimiter) Release() {
	l.mutex.RLock()
	enabled := l.enabled
	l.mutex.RUnlock()
	if !enabled {
		return
	}
	select {
	case <-l.concurrencyLimiter:
	default:
	}
}

// WaitForTokens blocks until the per-minute token budget permits spending n tokens.
func (l *RateLimiter) WaitForTokens(ctx context.Context, tokens int) error {
	l.mutex.RLock()
	enabled := l.enabled
	l.mutex.RUnlock()
	if !enabled || tokens <= 0 {
		return nil
	}
	if err := l.tokenLimiter.WaitN(ctx, tokens); err != nil {
		return fmt.Errorf("token rate limit exceeded: %w", err)
	}
	return nil
}

func (l *RateLimiter) Enable() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.enabled = true
}

func (l *RateLimiter) Disable() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.enabled = false
}

// EstimateTokens is a rough chars/4 estimate, used to pre-charge the token
// bucket before a provider knows the model's actual usage response.
func EstimateTokens(s string) int {
	return len(s) / 4
}
