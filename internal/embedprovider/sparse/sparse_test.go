package sparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_EmbedSparse_RespectsTopK(t *testing.T) {
	p := New(Config{TopK: 2})
	out, err := p.EmbedSparse(context.Background(), []string{"alpha beta gamma delta alpha alpha"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.LessOrEqual(t, len(out[0].Indices), 2)
}

func TestProvider_EmbedSparse_EmptyInput(t *testing.T) {
	p := New(Config{})
	out, err := p.EmbedSparse(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Empty(t, out[0].Indices)
}
