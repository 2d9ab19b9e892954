// Package compat talks to OpenAI-compatible embedding endpoints (Ollama, vLLM, TEI)
// whose payloads do not always match the OpenAI schema.
package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kailas-cloud/topoagent/internal/domain"
	"github.com/kailas-cloud/topoagent/internal/metrics"
)

// DefaultTimeout bounds a single embedding call.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 32 << 20

// Config holds the provider settings.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Provider string
	Metrics  *metrics.Embedding
	// HTTPClient overrides the default client; its Timeout is left untouched.
	HTTPClient *http.Client
}

// Embedder calls POST {base}/embeddings with the raw input string.
type Embedder struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	model    string
	provider string
	metrics  *metrics.Embedding
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// NewEmbedder creates a compat embedder.
func NewEmbedder(cfg *Config) *Embedder {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "compat"
	}
	return &Embedder{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		provider: provider,
		metrics:  cfg.Metrics,
	}
}

// Embed implements domain.Embedder. Every failure wraps domain.ErrEmbeddingProviderError.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, errType, err := e.embed(ctx, text)
	if err != nil {
		e.metrics.ObserveError(e.provider, e.model, errType, time.Since(start))
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	e.metrics.ObserveSuccess(e.provider, e.model, time.Since(start), res.PromptTokens, res.TotalTokens)
	return res, nil
}

func (e *Embedder) embed(ctx context.Context, text string) (domain.EmbeddingResult, string, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return domain.EmbeddingResult{}, "encode", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return domain.EmbeddingResult{}, "request", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.EmbeddingResult{}, "timeout", fmt.Errorf("request timed out: %w", err)
		}
		return domain.EmbeddingResult{}, "unreachable", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return domain.EmbeddingResult{}, "timeout", fmt.Errorf("read response: %w", err)
		}
		return domain.EmbeddingResult{}, "read", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if detail := errorDetail(body); detail != "" {
			return domain.EmbeddingResult{}, "api_error", fmt.Errorf("embedding API error %d: %s", resp.StatusCode, detail)
		}
		return domain.EmbeddingResult{}, "api_error", fmt.Errorf("embedding API error %d: %s", resp.StatusCode, truncate(body, 256))
	}

	res, err := decodeEmbedding(body)
	if err != nil {
		return domain.EmbeddingResult{}, "unexpected_shape", err
	}
	return res, "", nil
}

// HealthCheck issues GET {base}/models.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("list models: status %d", resp.StatusCode)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
