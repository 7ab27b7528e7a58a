package anthropic

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
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))
		w.Write([]byte(`{"content":[{"type":"text","text":"hello from claude"}],"usage":{"input_tokens":4,"output_tokens":6}}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	env, err := p.CallAPI(context.Background(), "hi", core.CallContext{}, core.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", env.Output)
	require.NotNil(t, env.TokenUsage)
	assert.Equal(t, 10, env.TokenUsage.Total)
}

func TestCallAPISurfacesServerErrorInEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"api_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "key", BaseURL: srv.URL, RetryConfig: &core.RetryConfig{MaxRetries: 0}})
	require.NoError(t, err)

	env, err := p.CallAPI(context.Background(), "hi", core.CallContext{}, core.CallOptions{})
	require.NoError(t, err)
	assert.Contains(t, env.Error, "overloaded")
}

func TestSupportsJSONModeFalse(t *testing.T) {
	p, err := New(Config{APIKey: "key"})
	require.NoError(t, err)
	assert.False(t, p.SupportsJSONMode())
}
