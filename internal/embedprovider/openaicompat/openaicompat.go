// Package openaicompat implements the remote dense embedding provider
// against an OpenAI-compatible `/embeddings` HTTP endpoint, with
// semaphore-bounded concurrency and rate-paced request starts.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config configures the remote dense embedding provider.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	MaxWorkers int
	Timeout    time.Duration
}

// Provider calls an OpenAI-compatible embeddings endpoint.
type Provider struct {
	cfg     Config
	client  *http.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New builds a Provider. BaseURL and Model are required.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: base URL required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openaicompat: model required")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sem:    semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		// Pace request starts at max_workers per second (burst of
		// max_workers) so retries and batch fan-out can't stampede
		// the endpoint even while worker slots are free.
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxWorkers), cfg.MaxWorkers),
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates embeddings for texts, preserving input order. A
// single HTTP call is made for the whole batch; the caller (the
// embedding pipeline stage) is responsible for chunking to
// entities_per_embedding_batch before calling Embed.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("openaicompat: texts must not be empty")
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("openaicompat: acquiring worker slot: %w", err)
	}
	defer p.sem.Release(1)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openaicompat: waiting for rate limit: %w", err)
	}

	body, err := json.Marshal(embeddingsRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("openaicompat: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openaicompat: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("openaicompat: decoding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openaicompat: expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openaicompat: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, vec := range out {
		if len(vec) != p.cfg.Dimension && p.cfg.Dimension > 0 {
			return nil, fmt.Errorf("openaicompat: embedding %d has dimension %d, want %d", i, len(vec), p.cfg.Dimension)
		}
	}
	return out, nil
}

// Dimension returns the configured embedding dimension.
func (p *Provider) Dimension() int { return p.cfg.Dimension }

// Close releases the underlying HTTP client's idle connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
