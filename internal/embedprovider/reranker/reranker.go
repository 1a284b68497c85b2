// Package reranker implements the cross-encoder reranking stage
// against a vLLM-compatible `/rerank` HTTP endpoint.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config configures the reranker client.
type Config struct {
	BaseURL               string
	Model                 string
	TimeoutSecs           int
	MaxConcurrentRequests int
}

// Provider calls a vLLM-compatible cross-encoder rerank endpoint.
type Provider struct {
	cfg    Config
	client *http.Client
	sem    *semaphore.Weighted
}

// New builds a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reranker: base URL required")
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 15
	}
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 16
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float32 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank scores candidates against query and returns their indices
// sorted by descending relevance, truncated to topK.
func (p *Provider) Rerank(ctx context.Context, query string, candidates []string, topK int) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("reranker: acquiring request slot: %w", err)
	}
	defer p.sem.Release(1)

	body, err := json.Marshal(rerankRequest{Model: p.cfg.Model, Query: query, Documents: candidates})
	if err != nil {
		return nil, fmt.Errorf("reranker: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reranker: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reranker: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reranker: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("reranker: decoding response: %w", err)
	}

	sortByRelevanceDesc(parsed.Results)
	if topK > 0 && topK < len(parsed.Results) {
		parsed.Results = parsed.Results[:topK]
	}

	out := make([]int, len(parsed.Results))
	for i, r := range parsed.Results {
		out[i] = r.Index
	}
	return out, nil
}

func sortByRelevanceDesc(results []rerankResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].RelevanceScore > results[j-1].RelevanceScore; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// Close releases the underlying HTTP client's idle connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
