package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		coll    string
		wantErr bool
	}{
		{"valid lowercase", "repo_abc123", false},
		{"empty", "", true},
		{"uppercase rejected", "RepoABC", true},
		{"path traversal rejected", "../etc/passwd", true},
		{"spaces rejected", "repo name", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.coll)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.CircuitBreakerSize)
	assert.Positive(t, cfg.RetryBackoff)
	assert.Positive(t, cfg.MaxMessageSize)
}
