package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perplext/redteam-core/src/provider/core"
)

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	cfg := core.DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	m := NewRetryMiddleware(cfg)

	attempts := 0
	env, err := m.Execute(context.Background(), func(ctx context.Context) (core.Envelope, error) {
		attempts++
		if attempts < 2 {
			return core.Envelope{}, &core.ProviderError{StatusCode: http.StatusServiceUnavailable, Type: "transient"}
		}
		return core.Envelope{Output: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", env.Output)
	assert.Equal(t, 2, attempts)
}

func TestRetryDoesNotRetryAbortErrors(t *testing.T) {
	m := NewRetryMiddleware(nil)
	attempts := 0
	_, err := m.Execute(context.Background(), func(ctx context.Context) (core.Envelope, error) {
		attempts++
		return core.Envelope{}, &core.ProviderError{StatusCode: http.StatusUnauthorized, Type: "abort"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsMaxRetries(t *testing.T) {
	cfg := core.DefaultRetryConfig()
	cfg.MaxRetries = 2
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	m := NewRetryMiddleware(cfg)

	attempts := 0
	_, err := m.Execute(context.Background(), func(ctx context.Context) (core.Envelope, error) {
		attempts++
		return core.Envelope{}, &core.ProviderError{StatusCode: http.StatusTooManyRequests, Type: "transient"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetryNonProviderErrorIsNotRetried(t *testing.T) {
	m := NewRetryMiddleware(nil)
	attempts := 0
	_, err := m.Execute(context.Background(), func(ctx context.Context) (core.Envelope, error) {
		attempts++
		return core.Envelope{}, assert.AnError
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
