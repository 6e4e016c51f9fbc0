// Package config loads and represents the gateway's TOML configuration file.
package config

// AppConfig is the full contents of the TOML config file (spec.md §6).
type AppConfig struct {
	Server    ServerConfig     `toml:"server"`
	Router    RouterConfig     `toml:"router"`
	Providers []ProviderConfig `toml:"providers"`
	Models    []ModelConfig    `toml:"models"`
}

// ServerConfig is the [server] table.
type ServerConfig struct {
	Host     string        `toml:"host"`
	Port     int           `toml:"port"`
	LogLevel string        `toml:"log_level"`
	Tracing  TracingConfig `toml:"tracing"`
}

// TracingConfig is the [server.tracing] table (message-tracing sink, §4.5).
type TracingConfig struct {
	Enabled          bool   `toml:"enabled"`
	Path             string `toml:"path"`
	OmitSystemPrompt bool   `toml:"omit_system_prompt"`
}

// RouterConfig is the [router] table (§3, §4.1).
type RouterConfig struct {
	Default         string       `toml:"default"`
	Background      string       `toml:"background,omitempty"`
	Think           string       `toml:"think,omitempty"`
	Websearch       string       `toml:"websearch,omitempty"`
	AutoMapRegex    string       `toml:"auto_map_regex,omitempty"`
	BackgroundRegex string       `toml:"background_regex,omitempty"`
	PromptRules     []PromptRule `toml:"prompt_rules,omitempty"`
}

// PromptRule is one entry of router.prompt_rules.
type PromptRule struct {
	Pattern    string `toml:"pattern"`
	Model      string `toml:"model"`
	StripMatch bool   `toml:"strip_match"`
}

// AuthType distinguishes API-key auth from OAuth for a provider.
type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthOAuth  AuthType = "oauth"
)

// ProviderConfig is one [[providers]] entry (§3).
type ProviderConfig struct {
	Name          string            `toml:"name"`
	ProviderType  string            `toml:"provider_type"`
	AuthType      AuthType          `toml:"auth_type"`
	APIKey        string            `toml:"api_key,omitempty"`
	OAuthProvider string            `toml:"oauth_provider,omitempty"`
	BaseURL       string            `toml:"base_url,omitempty"`
	Models        []string          `toml:"models,omitempty"`
	Enabled       *bool             `toml:"enabled,omitempty"`
	Headers       map[string]string `toml:"headers,omitempty"`
	ProjectID     string            `toml:"project_id,omitempty"`
	Location      string            `toml:"location,omitempty"`
}

// IsEnabled reports whether the provider should be instantiated; defaults to
// true when unset.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ModelConfig is one [[models]] entry: a logical model name with its ordered
// provider bindings.
type ModelConfig struct {
	Name     string         `toml:"name"`
	Mappings []ModelMapping `toml:"mappings"`
}

// ModelMapping is one (provider, actual_model) binding for a logical model.
type ModelMapping struct {
	Priority                 int    `toml:"priority"`
	Provider                 string `toml:"provider"`
	ActualModel              string `toml:"actual_model"`
	InjectContinuationPrompt bool   `toml:"inject_continuation_prompt"`
}
