// Package oauth implements the per-provider OAuth authorization-code+PKCE
// flow and token refresh described in spec.md §4.6 (C2).
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/elidickinson/ccmux-go/internal/tokenstore"
)

// Config describes one provider's OAuth endpoints and client registration.
type Config struct {
	ProviderID            string
	AuthorizationEndpoint string
	TokenEndpoint         string
	ClientID              string
	Scopes                []string
	RedirectURI           string
	UsePKCE               bool
}

// Presets for the providers spec.md §4.6 names: Anthropic, OpenAI-Codex,
// Gemini Code Assist, GitHub Copilot.
var (
	AnthropicPreset = Config{
		ProviderID:            "anthropic",
		AuthorizationEndpoint: "https://claude.ai/oauth/authorize",
		TokenEndpoint:         "https://console.anthropic.com/v1/oauth/token",
		ClientID:              "9d1c250a-e61b-44d9-88ed-5944d1962f5e",
		Scopes:                []string{"org:create_api_key", "user:profile", "user:inference"},
		RedirectURI:           "https://console.anthropic.com/oauth/code/callback",
		UsePKCE:               true,
	}
	OpenAICodexPreset = Config{
		ProviderID:            "openai-codex",
		AuthorizationEndpoint: "https://auth.openai.com/oauth/authorize",
		TokenEndpoint:         "https://auth.openai.com/oauth/token",
		ClientID:              "app_EMoamEEZ73f0CkXaXp7hrann",
		Scopes:                []string{"openid", "profile", "email", "offline_access"},
		RedirectURI:           "http://127.0.0.1:1455/auth/callback",
		UsePKCE:               true,
	}
	GeminiCodeAssistPreset = Config{
		ProviderID:            "gemini-code-assist",
		AuthorizationEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:         "https://oauth2.googleapis.com/token",
		ClientID:              "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com",
		Scopes:                []string{"https://www.googleapis.com/auth/cloud-platform"},
		RedirectURI:           "http://127.0.0.1:1455/auth/callback",
		UsePKCE:               true,
	}
	GitHubCopilotPreset = Config{
		ProviderID:            "github-copilot",
		AuthorizationEndpoint: "https://github.com/login/oauth/authorize",
		TokenEndpoint:         "https://github.com/login/oauth/access_token",
		ClientID:              "Iv1.b507a08c87ecfe98",
		Scopes:                []string{"read:user"},
		RedirectURI:           "http://127.0.0.1:1455/auth/callback",
		UsePKCE:               false,
	}
)

// AuthorizationRequest is returned to the admin UI so it can open the
// provider's consent page and later present the code_verifier back to
// Exchange.
type AuthorizationRequest struct {
	URL          string
	State        string
	CodeVerifier string
}

// BuildAuthorizationURL constructs the PKCE authorization-code request.
func BuildAuthorizationURL(cfg Config) (AuthorizationRequest, error) {
	state, err := randomURLSafe(24)
	if err != nil {
		return AuthorizationRequest{}, err
	}
	verifier, err := randomURLSafe(48)
	if err != nil {
		return AuthorizationRequest{}, err
	}

	q := url.Values{}
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(cfg.Scopes, " "))
	q.Set("state", state)
	if cfg.UsePKCE {
		sum := sha256.Sum256([]byte(verifier))
		q.Set("code_challenge", base64.RawURLEncoding.EncodeToString(sum[:]))
		q.Set("code_challenge_method", "S256")
	}

	return AuthorizationRequest{
		URL:          cfg.AuthorizationEndpoint + "?" + q.Encode(),
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Client exchanges authorization codes and refresh tokens for access tokens.
type Client struct {
	HTTP *http.Client
}

func NewClient() *Client {
	return &Client{HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Exchange trades an authorization code + PKCE verifier for an access and
// refresh token, and persists the result into store under cfg.ProviderID.
func (c *Client) Exchange(ctx context.Context, cfg Config, store *tokenstore.Store, code, codeVerifier string) (tokenstore.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", cfg.RedirectURI)
	form.Set("client_id", cfg.ClientID)
	if cfg.UsePKCE {
		form.Set("code_verifier", codeVerifier)
	}

	tr, err := c.post(ctx, cfg.TokenEndpoint, form)
	if err != nil {
		return tokenstore.Token{}, err
	}

	tok := tokenstore.Token{
		ProviderID:   cfg.ProviderID,
		AccessToken:  tokenstore.Secret(tr.AccessToken),
		RefreshToken: tokenstore.Secret(tr.RefreshToken),
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if err := store.Save(tok); err != nil {
		return tokenstore.Token{}, fmt.Errorf("persist exchanged token: %w", err)
	}
	return tok, nil
}

// Refresh exchanges the stored refresh token for a fresh access token,
// one-shot with no retry, and persists the new token.
func (c *Client) Refresh(ctx context.Context, cfg Config, store *tokenstore.Store) (tokenstore.Token, error) {
	existing, ok := store.Get(cfg.ProviderID)
	if !ok {
		return tokenstore.Token{}, fmt.Errorf("no stored token for provider %q", cfg.ProviderID)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", existing.RefreshToken.Expose())
	form.Set("client_id", cfg.ClientID)

	tr, err := c.post(ctx, cfg.TokenEndpoint, form)
	if err != nil {
		return tokenstore.Token{}, err
	}

	refreshToken := tr.RefreshToken
	if refreshToken == "" {
		refreshToken = existing.RefreshToken.Expose()
	}

	tok := tokenstore.Token{
		ProviderID:    cfg.ProviderID,
		AccessToken:   tokenstore.Secret(tr.AccessToken),
		RefreshToken:  tokenstore.Secret(refreshToken),
		ExpiresAt:     time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		EnterpriseURL: existing.EnterpriseURL,
		ProjectID:     existing.ProjectID,
	}
	if err := store.Save(tok); err != nil {
		return tokenstore.Token{}, fmt.Errorf("persist refreshed token: %w", err)
	}
	return tok, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("build oauth token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("oauth token request failed: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return tokenResponse{}, fmt.Errorf("decode oauth token response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return tokenResponse{}, fmt.Errorf("oauth token endpoint returned %d", resp.StatusCode)
	}
	return tr, nil
}

// GetAuthHeader resolves the current bearer token for cfg's provider,
// refreshing first if it is within 5 minutes of expiry (spec.md §4.6).
func GetAuthHeader(ctx context.Context, client *Client, cfg Config, store *tokenstore.Store) (string, error) {
	tok, ok := store.Get(cfg.ProviderID)
	if !ok {
		return "", fmt.Errorf("no OAuth token stored for provider %q", cfg.ProviderID)
	}
	if tok.NeedsRefresh() {
		refreshed, err := client.Refresh(ctx, cfg, store)
		if err != nil {
			return "", fmt.Errorf("refresh oauth token: %w", err)
		}
		tok = refreshed
	}
	return "Bearer " + tok.AccessToken.Expose(), nil
}

// accountIDClaims is the subset of the OpenAI Codex JWT payload carrying the
// ChatGPT account ID, nested under the "https://api.openai.com/auth" claim.
type accountIDClaims struct {
	OpenAIAuth struct {
		ChatGPTAccountID string `json:"chatgpt_account_id"`
	} `json:"https://api.openai.com/auth"`
	jwt.RegisteredClaims
}

// ExtractChatGPTAccountID decodes the unverified JWT payload of a Codex OAuth
// access token and returns its chatgpt-account-id claim (spec.md §4.3.b).
// The token's signature is not verified here: the gateway only relays the
// claim value as a header, it does not trust it for authorization decisions.
func ExtractChatGPTAccountID(accessToken string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	var claims accountIDClaims
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return "", fmt.Errorf("parse codex access token: %w", err)
	}
	if claims.OpenAIAuth.ChatGPTAccountID == "" {
		return "", fmt.Errorf("access token has no chatgpt_account_id claim")
	}
	return claims.OpenAIAuth.ChatGPTAccountID, nil
}
