// Package anthropic implements core.Provider against the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perplext/redteam-core/src/provider/core"
	"github.com/perplext/redteam-core/src/provider/middleware"
)

const defaultModel = "claude-3-opus-20240229"

// Config configures a Provider instance.
type Config struct {
	APIKey            string
	BaseURL           string
	DefaultModel      string
	Timeout           time.Duration
	AdditionalHeaders map[string]string
	RetryConfig       *core.RetryConfig
	RateLimit         RateLimitConfig
}

// RateLimitConfig mirrors the teacher's per-provider defaults.
type RateLimitConfig struct {
	RequestsPerMinute     int
	TokensPerMinute       int
	MaxConcurrentRequests int
	BurstSize             int
}

// Provider calls the Anthropic Messages API, wrapped in rate limiting, retry,
// and circuit-breaking middleware.
type Provider struct {
	config         Config
	client         *http.Client
	rateLimiter    *middleware.RateLimiter
	retry          *middleware.RetryMiddleware
	circuitBreaker *middleware.CircuitBreakerMiddleware
	redactor       *middleware.Redactor
}

// New constructs an Anthropic provider; requires a non-empty APIKey.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: APIKey is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	rl := cfg.RateLimit
	if rl.RequestsPerMinute == 0 {
		rl.RequestsPerMinute = 60
	}
	if rl.TokensPerMinute == 0 {
		rl.TokensPerMinute = 100000
	}
	if rl.MaxConcurrentRequests == 0 {
		rl.MaxConcurrentRequests = 10
	}
	if rl.BurstSize == 0 {
		rl.BurstSize = 20
	}

	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		rateLimiter: middleware.NewRateLimiter(
			rl.RequestsPerMinute, rl.TokensPerMinute, rl.MaxConcurrentRequests, rl.BurstSize,
		),
		retry: middleware.NewRetryMiddleware(cfg.RetryConfig),
		circuitBreaker: middleware.NewCircuitBreakerMiddleware(middleware.CircuitBreakerConfig{
			FailureThreshold:         5,
			ResetTimeout:             30 * time.Second,
			HalfOpenSuccessThreshold: 2,
		}),
		redactor: middleware.NewRedactor(),
	}, nil
}

// ID implements core.Provider.
func (p *Provider) ID() string { return "anthropic:" + p.config.DefaultModel }

// SupportsJSONMode implements core.Provider. Claude has no dedicated JSON
// response-format flag; JSON-mode is enforced via prompt instructions
// upstream in the strategy/attacker layer, so the provider itself does not
// natively guarantee it.
func (p *Provider) SupportsJSONMode() bool { return false }

// CallAPI implements core.Provider by sending prompt as a single user turn
// (or, when prompt is itself a pre-rendered transcript, verbatim) to the
// Messages API.
func (p *Provider) CallAPI(ctx context.Context, prompt string, callCtx core.CallContext, opts core.CallOptions) (core.Envelope, error) {
	result, err := p.retry.Execute(ctx, func(ctx context.Context) (core.Envelope, error) {
		return p.circuitBreaker.Execute(ctx, func(ctx context.Context) (core.Envelope, error) {
			if waitErr := p.rateLimiter.Wait(ctx); waitErr != nil {
				return core.Envelope{}, waitErr
			}
			defer p.rateLimiter.Release()
			if waitErr := p.rateLimiter.WaitForTokens(ctx, middleware.EstimateTokens(prompt)); waitErr != nil {
				return core.Envelope{}, waitErr
			}
			return p.doCall(ctx, prompt)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return core.Envelope{}, ctx.Err()
		}
		log.Warn().Err(err).Str("provider", p.ID()).Msg("anthropic call failed")
		return core.Envelope{Error: err.Error()}, nil
	}
	return result, nil
}

func (p *Provider) doCall(ctx context.Context, prompt string) (core.Envelope, error) {
	body := map[string]interface{}{
		"model": p.config.DefaultModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens": 1024,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return core.Envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.config.APIKey)
	req.Header.Set("Anthropic-Version", "2023-06-01")
	for k, v := range p.config.AdditionalHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return core.Envelope{}, &core.ProviderError{ProviderID: p.ID(), Message: err.Error(), Type: "transport"}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return core.Envelope{}, p.parseError(resp.StatusCode, respBody)
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return core.Envelope{}, fmt.Errorf("parse response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return core.Envelope{
		Output: text.String(),
		TokenUsage: &core.TokenUsage{
			Total:       parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
			Prompt:      parsed.Usage.InputTokens,
			Completion:  parsed.Usage.OutputTokens,
			NumRequests: 1,
		},
	}, nil
}

func (p *Provider) parseError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := fmt.Sprintf("anthropic error (status %d)", statusCode)
	errType := "transient"
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = p.redactor.Redact(errResp.Error.Message)
		errType = errResp.Error.Type
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		errType = "abort"
	}
	return &core.ProviderError{ProviderID: p.ID(), StatusCode: statusCode, Type: errType, Message: message}
}
