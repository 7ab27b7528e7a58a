// Package openai implements core.Provider against the OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perplext/redteam-core/src/provider/core"
	"github.com/perplext/redteam-core/src/provider/middleware"
)

const defaultModel = "gpt-4o-mini"

// Config configures a Provider instance.
type Config struct {
	APIKey            string
	BaseURL           string
	DefaultModel      string
	Timeout           time.Duration
	AdditionalHeaders map[string]string
	RetryConfig       *core.RetryConfig
}

// Provider calls the OpenAI chat completions API. It advertises JSON-mode
// support via response_format, making it the provider manager's natural
// choice for jsonOnly/preferSmallModel calls (the attacker role).
type Provider struct {
	config         Config
	client         *http.Client
	rateLimiter    *middleware.RateLimiter
	retry          *middleware.RetryMiddleware
	circuitBreaker *middleware.CircuitBreakerMiddleware
	redactor       *middleware.Redactor
}

// New constructs an OpenAI provider; requires a non-empty APIKey.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: APIKey is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Provider{
		config:      cfg,
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: middleware.NewRateLimiter(60, 150000, 10, 20),
		retry:       middleware.NewRetryMiddleware(cfg.RetryConfig),
		circuitBreaker: middleware.NewCircuitBreakerMiddleware(middleware.CircuitBreakerConfig{
			FailureThreshold:         5,
			ResetTimeout:             30 * time.Second,
			HalfOpenSuccessThreshold: 2,
		}),
		redactor: middleware.NewRedactor(),
	}, nil
}

// ID implements core.Provider.
func (p *Provider) ID() string { return "openai:" + p.config.DefaultModel }

// SupportsJSONMode implements core.Provider.
func (p *Provider) SupportsJSONMode() bool { return true }

// CallAPI implements core.Provider.
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
			return p.doCall(ctx, prompt, opts.JSONOnly)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return core.Envelope{}, ctx.Err()
		}
		log.Warn().Err(err).Str("provider", p.ID()).Msg("openai call failed")
		return core.Envelope{Error: err.Error()}, nil
	}
	return result, nil
}

func (p *Provider) doCall(ctx context.Context, prompt string, jsonOnly bool) (core.Envelope, error) {
	body := map[string]interface{}{
		"model": p.config.DefaultModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if jsonOnly {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return core.Envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
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
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return core.Envelope{}, fmt.Errorf("parse response: %w", err)
	}

	var output string
	if len(parsed.Choices) > 0 {
		output = parsed.Choices[0].Message.Content
	}

	return core.Envelope{
		Output: output,
		TokenUsage: &core.TokenUsage{
			Total:       parsed.Usage.TotalTokens,
			Prompt:      parsed.Usage.PromptTokens,
			Completion:  parsed.Usage.CompletionTokens,
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
	message := fmt.Sprintf("openai error (status %d)", statusCode)
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
