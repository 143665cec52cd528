package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/kbank/internal/config"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"", ProviderStatic, false},
		{"static", ProviderStatic, false},
		{"OLLAMA", ProviderOllama, false},
		{"mlx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEmbedder_StaticIsCached(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "static"
	cfg.Dimensions = 128

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
	assert.Equal(t, 128, e.Dimensions())
}

func TestNewEmbedder_OllamaUnreachableIsError(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "ollama"
	cfg.OllamaHost = "http://127.0.0.1:1"
	cfg.Timeout = "100ms"

	_, err := NewEmbedder(context.Background(), cfg)
	assert.Error(t, err)
}
