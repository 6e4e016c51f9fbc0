package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
)

func TestEmptyRegistry(t *testing.T) {
	reg := New()
	assert.Empty(t, reg.ListProviders())
	assert.Empty(t, reg.ListModels())

	_, err := reg.GetProviderForModel("claude-sonnet-4")
	assert.Error(t, err)
}

func TestGetProviderNotFound(t *testing.T) {
	reg := New()
	_, ok := reg.GetProvider("nope")
	assert.False(t, ok)
}

func TestFromConfigBuildsOpenAICompatProviders(t *testing.T) {
	cfg := &config.AppConfig{
		Providers: []config.ProviderConfig{
			{Name: "my-groq", ProviderType: "groq", AuthType: config.AuthAPIKey, APIKey: "k"},
			{Name: "my-openrouter", ProviderType: "openrouter", AuthType: config.AuthAPIKey, APIKey: "k"},
		},
		Models: []config.ModelConfig{
			{Name: "claude-sonnet-4", Mappings: []config.ModelMapping{
				{Priority: 0, Provider: "my-groq", ActualModel: "llama-3.3-70b"},
			}},
		},
	}

	reg, err := FromConfig(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"my-groq", "my-openrouter"}, reg.ListProviders())
	assert.Equal(t, []string{"claude-sonnet-4"}, reg.ListModels())

	p, err := reg.GetProviderForModel("claude-sonnet-4")
	require.NoError(t, err)
	assert.Equal(t, "my-groq", p.Name())
}

func TestFromConfigSkipsDisabledProviders(t *testing.T) {
	disabled := false
	cfg := &config.AppConfig{
		Providers: []config.ProviderConfig{
			{Name: "off", ProviderType: "openai", Enabled: &disabled},
		},
	}
	reg, err := FromConfig(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, reg.ListProviders())
}

func TestFromConfigRejectsUnknownProviderType(t *testing.T) {
	cfg := &config.AppConfig{
		Providers: []config.ProviderConfig{{Name: "x", ProviderType: "not-a-real-provider"}},
	}
	_, err := FromConfig(context.Background(), cfg, nil, zap.NewNop())
	assert.Error(t, err)
}
