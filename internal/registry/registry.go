// Package registry builds and looks up the set of configured provider
// adapters (spec.md §4.2), including the legacy provider-type aliases that
// expand to the OpenAI-Compatible Adapter with a preset base URL.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/ccerrors"
	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/oauth"
	"github.com/elidickinson/ccmux-go/internal/provider"
	"github.com/elidickinson/ccmux-go/internal/providers/anthropic"
	"github.com/elidickinson/ccmux-go/internal/providers/gemini"
	"github.com/elidickinson/ccmux-go/internal/providers/openai"
	"github.com/elidickinson/ccmux-go/internal/tokenstore"
)

// Registry holds every configured provider adapter, plus an index from
// logical model name to the provider that should serve it by default (the
// provider of that model's first, highest-priority mapping).
type Registry struct {
	mu              sync.RWMutex
	providers       map[string]provider.Provider
	modelToProvider map[string]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		providers:       make(map[string]provider.Provider),
		modelToProvider: make(map[string]string),
	}
}

// FromConfig builds a Registry from the configured providers and model
// mappings, constructing one adapter per enabled ProviderConfig.
func FromConfig(ctx context.Context, cfg *config.AppConfig, tokens *tokenstore.Store, logger *zap.Logger) (*Registry, error) {
	reg := New()

	for _, pc := range cfg.Providers {
		if !pc.IsEnabled() {
			continue
		}
		p, err := buildProvider(ctx, pc, tokens, logger)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", pc.Name, err)
		}
		reg.providers[pc.Name] = p
	}

	for _, mc := range cfg.Models {
		if len(mc.Mappings) == 0 {
			continue
		}
		first := mc.Mappings[0]
		for _, m := range mc.Mappings[1:] {
			if m.Priority < first.Priority {
				first = m
			}
		}
		reg.modelToProvider[mc.Name] = first.Provider
	}

	return reg, nil
}

// legacyPreset describes an OpenAI-compatible hosted provider's default base
// URL and extra headers, keyed by its deprecated provider_type alias.
type legacyPreset struct {
	baseURL string
	headers map[string]string
}

var legacyPresets = map[string]legacyPreset{
	"deepinfra": {baseURL: "https://api.deepinfra.com/v1/openai"},
	"novita":    {baseURL: "https://api.novita.ai/v3/openai", headers: map[string]string{"X-Novita-Source": "ccmux"}},
	"baseten":   {baseURL: "https://inference.baseten.co/v1"},
	"together":  {baseURL: "https://api.together.xyz/v1"},
	"fireworks": {baseURL: "https://api.fireworks.ai/inference/v1"},
	"groq":      {baseURL: "https://api.groq.com/openai/v1"},
	"nebius":    {baseURL: "https://api.studio.nebius.ai/v1"},
	"cerebras":  {baseURL: "https://api.cerebras.ai/v1"},
	"moonshot":  {baseURL: "https://api.moonshot.cn/v1"},
}

func buildProvider(ctx context.Context, pc config.ProviderConfig, tokens *tokenstore.Store, logger *zap.Logger) (provider.Provider, error) {
	switch pc.ProviderType {
	case "openai":
		return openai.New(openai.Config{
			Name:    pc.Name,
			BaseURL: orDefault(pc.BaseURL, "https://api.openai.com/v1"),
			APIKey:  pc.APIKey,
			Models:  pc.Models,
			Headers: pc.Headers,
		}, logger), nil

	case "openai-codex":
		cfg := oauth.OpenAICodexPreset
		return openai.New(openai.Config{
			Name:       pc.Name,
			AuthMode:   openai.AuthOAuthCodex,
			OAuthCfg:   cfg,
			TokenStore: tokens,
			Models:     pc.Models,
		}, logger), nil

	case "openrouter":
		return openai.New(openai.Config{
			Name:    pc.Name,
			BaseURL: orDefault(pc.BaseURL, "https://openrouter.ai/api/v1"),
			APIKey:  pc.APIKey,
			Models:  pc.Models,
			Headers: mergeHeaders(map[string]string{"HTTP-Referer": "https://github.com/elidickinson/ccmux-go", "X-Title": "ccmux"}, pc.Headers),
		}, logger), nil

	case "deepinfra", "novita", "baseten", "together", "fireworks", "groq", "nebius", "cerebras", "moonshot":
		preset := legacyPresets[pc.ProviderType]
		logger.Warn("provider_type is a deprecated alias, use provider_type=\"openai\" with base_url instead",
			zap.String("provider", pc.Name), zap.String("provider_type", pc.ProviderType))
		return openai.New(openai.Config{
			Name:    pc.Name,
			BaseURL: orDefault(pc.BaseURL, preset.baseURL),
			APIKey:  pc.APIKey,
			Models:  pc.Models,
			Headers: mergeHeaders(preset.headers, pc.Headers),
		}, logger), nil

	case "anthropic":
		return anthropicProvider(pc, tokens, orDefault(pc.BaseURL, "https://api.anthropic.com"), logger)

	case "z.ai":
		return anthropicProvider(pc, tokens, orDefault(pc.BaseURL, "https://api.z.ai/api/anthropic"), logger)

	case "minimax":
		return anthropicProvider(pc, tokens, orDefault(pc.BaseURL, "https://api.minimax.chat/anthropic"), logger)

	case "zenmux":
		return anthropicProvider(pc, tokens, orDefault(pc.BaseURL, "https://zenmux.ai/api/anthropic"), logger)

	case "kimi-coding":
		return anthropicProvider(pc, tokens, orDefault(pc.BaseURL, "https://api.moonshot.cn/anthropic"), logger)

	case "gemini":
		mode := gemini.ModeAPIKey
		if pc.AuthType == config.AuthOAuth {
			mode = gemini.ModeCodeAssistOAuth
		}
		return gemini.New(ctx, gemini.Config{
			Name:   pc.Name,
			Mode:   mode,
			APIKey: pc.APIKey,
			Models: pc.Models,
		}, logger)

	case "vertex-ai":
		return gemini.New(ctx, gemini.Config{
			Name:      pc.Name,
			Mode:      gemini.ModeVertexAI,
			ProjectID: pc.ProjectID,
			Location:  pc.Location,
			Models:    pc.Models,
		}, logger)

	default:
		return nil, ccerrors.ConfigError(fmt.Sprintf("unknown provider_type: %s", pc.ProviderType))
	}
}

func anthropicProvider(pc config.ProviderConfig, tokens *tokenstore.Store, defaultBaseURL string, logger *zap.Logger) (provider.Provider, error) {
	cfg := anthropic.Config{
		Name:    pc.Name,
		BaseURL: orDefault(pc.BaseURL, defaultBaseURL),
		APIKey:  pc.APIKey,
		Models:  pc.Models,
		Headers: pc.Headers,
	}
	if pc.AuthType == config.AuthOAuth {
		cfg.AuthMode = anthropic.AuthOAuth
		cfg.OAuthCfg = oauth.AnthropicPreset
		cfg.TokenStore = tokens
	}
	return anthropic.New(cfg, logger), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func mergeHeaders(preset, override map[string]string) map[string]string {
	if len(preset) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(preset)+len(override))
	for k, v := range preset {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// GetProvider returns the adapter registered under name.
func (r *Registry) GetProvider(name string) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetProviderForModel resolves the provider that should serve modelName: the
// model-to-provider index takes priority; if modelName has no explicit
// mapping, every provider is scanned for SupportsModel.
func (r *Registry) GetProviderForModel(modelName string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.modelToProvider[modelName]; ok {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	for _, p := range r.providers {
		if p.SupportsModel(modelName) {
			return p, nil
		}
	}
	return nil, ccerrors.ModelNotSupported(modelName)
}

// ListModels returns the sorted names of every model with an explicit mapping.
func (r *Registry) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modelToProvider))
	for m := range r.modelToProvider {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ListProviders returns the sorted names of every registered provider.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
