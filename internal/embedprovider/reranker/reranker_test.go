package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerank_SortsByRelevanceDescending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := rerankResponse{Results: []rerankResult{
			{Index: 0, RelevanceScore: 0.2},
			{Index: 1, RelevanceScore: 0.9},
			{Index: 2, RelevanceScore: 0.5},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, Model: "reranker-v1"})
	require.NoError(t, err)
	defer p.Close()

	out, err := p.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out)
}

func TestRerank_EmptyCandidates(t *testing.T) {
	p, err := New(Config{BaseURL: "http://unused"})
	require.NoError(t, err)
	out, err := p.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, out)
}
