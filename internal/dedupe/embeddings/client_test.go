package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientStubProviderForcesMockOnly(t *testing.T) {
	cfg := Config{
		Provider:         "stub",
		OpenAIAPIKey:     "sk-real-key",
		CohereAPIKey:     "real-key",
		TargetDimensions: 8,
	}

	r := NewClient(context.Background(), cfg, noopLogger())

	names := r.ProviderNames()
	require.Len(t, names, 1)
	assert.Equal(t, ProviderMock, names[0])
}

func TestNewClientOpenAIProviderRestrictsToOpenAI(t *testing.T) {
	cfg := Config{
		Provider:         "openai",
		OpenAIAPIKey:     "sk-real-key",
		CohereAPIKey:     "real-key",
		GoogleAPIKey:     "real-key",
		TargetDimensions: 8,
	}

	r := NewClient(context.Background(), cfg, noopLogger())

	names := r.ProviderNames()
	require.Len(t, names, 1)
	assert.Equal(t, ProviderOpenAI, names[0])
}

func TestNewClientDefaultRegistersEveryConfiguredProvider(t *testing.T) {
	cfg := Config{
		OpenAIAPIKey:     "sk-real-key",
		CohereAPIKey:     "real-key",
		TargetDimensions: 8,
	}

	r := NewClient(context.Background(), cfg, noopLogger())

	assert.Equal(t, 2, r.ProviderCount())
}

func TestNewClientNoProvidersConfiguredFallsBackToMock(t *testing.T) {
	cfg := Config{TargetDimensions: 8}

	r := NewClient(context.Background(), cfg, noopLogger())

	names := r.ProviderNames()
	require.Len(t, names, 1)
	assert.Equal(t, ProviderMock, names[0])
}
