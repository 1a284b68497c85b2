package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_PreservesOrderAndValidatesDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embeddingsResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: len(req.Input) - 1 - i, Embedding: []float32{float32(i), float32(i)}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, Model: "test-model", Dimension: 2})
	require.NoError(t, err)
	defer p.Close()

	out, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{2, 2}, out[0])
	assert.Equal(t, []float32{0, 0}, out[2])
}

func TestEmbed_RejectsEmptyInput(t *testing.T) {
	p, err := New(Config{BaseURL: "http://unused", Model: "m"})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), nil)
	assert.Error(t, err)
}

func TestNew_RequiresBaseURLAndModel(t *testing.T) {
	_, err := New(Config{Model: "m"})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "http://x"})
	assert.Error(t, err)
}
