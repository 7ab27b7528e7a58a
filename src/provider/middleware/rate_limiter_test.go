package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWaitAndRelease(t *testing.T) {
	l := NewRateLimiter(6000, 1000000, 2, 10)
	require.NoError(t, l.Wait(context.Background()))
	l.Release()
}

func TestRateLimiterDisabledSkipsLimiting(t *testing.T) {
	l := NewRateLimiter(1, 1, 1, 1)
	l.Disable()
	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
}

func TestRateLimiterWaitForTokensZeroIsNoop(t *testing.T) {
	l := NewRateLimiter(60, 100000, 10, 20)
	assert.NoError(t, l.WaitForTokens(context.Background(), 0))
}

func TestRateLimiterWaitForTokensConsumesBudget(t *testing.T) {
	l := NewRateLimiter(60, 100000, 10, 20)
	assert.NoError(t, l.WaitForTokens(context.Background(), 500))
}

func TestEstimateTokensApproximatesCharsOverFour(t *testing.T) {
	assert.Equal(t, 5, EstimateTokens("twenty characters!!!"))
}
