package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perplext/redteam-core/src/provider/core"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCallAPIParsesSuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	env, err := p.CallAPI(context.Background(), "hi", core.CallContext{}, core.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", env.Output)
	require.NotNil(t, env.TokenUsage)
	assert.Equal(t, 5, env.TokenUsage.Total)
}

func TestCallAPISurfacesAbortOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	env, err := p.CallAPI(context.Background(), "hi", core.CallContext{}, core.CallOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, env.Error)
}

func TestSupportsJSONModeTrue(t *testing.T) {
	p, err := New(Config{APIKey: "key"})
	require.NoError(t, err)
	assert.True(t, p.SupportsJSONMode())
}
