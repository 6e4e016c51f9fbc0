package dispatch

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/oauth"
)

// oauthPresets maps the provider_id the admin UI sends to its preset OAuth
// configuration, mirroring the providers the registry's buildProvider
// switch knows how to authenticate via OAuth.
var oauthPresets = map[string]oauth.Config{
	"anthropic":          oauth.AnthropicPreset,
	"openai-codex":       oauth.OpenAICodexPreset,
	"gemini-code-assist": oauth.GeminiCodeAssistPreset,
	"github-copilot":     oauth.GitHubCopilotPreset,
}

// pendingAuthorizations tracks in-flight PKCE exchanges between
// oauth_authorize and oauth_exchange, keyed by state. A production
// multi-user deployment would scope this per session; the gateway runs as
// a single local user, so one process-wide map is sufficient.
type pendingAuthorizations struct {
	mu      sync.Mutex
	entries map[string]oauth.AuthorizationRequest
}

var pending = &pendingAuthorizations{entries: make(map[string]oauth.AuthorizationRequest)}

func (p *pendingAuthorizations) put(req oauth.AuthorizationRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[req.State] = req
}

func (p *pendingAuthorizations) take(state string) (oauth.AuthorizationRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.entries[state]
	if ok {
		delete(p.entries, state)
	}
	return req, ok
}

type oauthAuthorizeRequest struct {
	Provider string `json:"provider"`
}

// handleOAuthAuthorize serves POST /api/oauth/authorize: builds the
// provider's PKCE authorization URL for the admin UI to open in a browser.
func (s *State) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	var body oauthAuthorizeRequest
	if err := decodeJSONBodyLoose(w, r, &body); err != nil {
		writeError(w, s.logger, parseError("invalid request body: %v", err))
		return
	}
	cfg, ok := oauthPresets[body.Provider]
	if !ok {
		writeError(w, s.logger, parseError("unknown oauth provider: %s", body.Provider))
		return
	}

	authReq, err := oauth.BuildAuthorizationURL(cfg)
	if err != nil {
		writeError(w, s.logger, parseError("failed to build authorization url: %v", err))
		return
	}
	pending.put(authReq)

	writeJSON(w, http.StatusOK, map[string]string{"url": authReq.URL, "state": authReq.State, "code_verifier": authReq.CodeVerifier})
}

type oauthExchangeRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	State    string `json:"state"`
}

// handleOAuthExchange serves POST /api/oauth/exchange: trades an
// authorization code for tokens using the PKCE verifier recorded at
// authorize time, and persists the result to the token store.
func (s *State) handleOAuthExchange(w http.ResponseWriter, r *http.Request) {
	var body oauthExchangeRequest
	if err := decodeJSONBodyLoose(w, r, &body); err != nil {
		writeError(w, s.logger, parseError("invalid request body: %v", err))
		return
	}
	cfg, ok := oauthPresets[body.Provider]
	if !ok {
		writeError(w, s.logger, parseError("unknown oauth provider: %s", body.Provider))
		return
	}
	authReq, ok := pending.take(body.State)
	if !ok {
		writeError(w, s.logger, parseError("unknown or expired oauth state"))
		return
	}

	client := oauth.NewClient()
	tok, err := client.Exchange(r.Context(), cfg, s.Tokens, body.Code, authReq.CodeVerifier)
	if err != nil {
		writeError(w, s.logger, parseError("token exchange failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "provider": tok.ProviderID})
}

// handleOAuthCallback serves both GET /api/oauth/callback and GET
// /auth/callback (the latter is the fixed path OpenAI's Codex OAuth app
// redirects to). It renders a small page that hands the code/state back to
// the admin UI, which completes the exchange via handleOAuthExchange.
func (s *State) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		writeError(w, s.logger, parseError("oauth callback missing code parameter"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(oauthCallbackHTML(code, state)))
}

func oauthCallbackHTML(code, state string) string {
	codeJSON, _ := json.Marshal(code)
	stateJSON, _ := json.Marshal(state)
	return `<!DOCTYPE html><html><body>
<p>Authorization received. You can close this window.</p>
<script>
if (window.opener) {
  window.opener.postMessage({ type: "ccmux-oauth-callback", code: ` + string(codeJSON) + `, state: ` + string(stateJSON) + ` }, "*");
}
</script>
</body></html>`
}

// handleOAuthListTokens serves GET /api/oauth/tokens.
func (s *State) handleOAuthListTokens(w http.ResponseWriter, r *http.Request) {
	all := s.Tokens.All()
	out := make([]map[string]any, 0, len(all))
	for providerID, tok := range all {
		out = append(out, map[string]any{
			"provider_id": providerID,
			"expires_at":  tok.ExpiresAt,
			"expired":     tok.IsExpired(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type oauthProviderRequest struct {
	Provider string `json:"provider"`
}

// handleOAuthDeleteToken serves POST /api/oauth/tokens/delete.
func (s *State) handleOAuthDeleteToken(w http.ResponseWriter, r *http.Request) {
	var body oauthProviderRequest
	if err := decodeJSONBodyLoose(w, r, &body); err != nil {
		writeError(w, s.logger, parseError("invalid request body: %v", err))
		return
	}
	if err := s.Tokens.Remove(body.Provider); err != nil {
		writeError(w, s.logger, parseError("failed to remove token: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleOAuthRefreshToken serves POST /api/oauth/tokens/refresh.
func (s *State) handleOAuthRefreshToken(w http.ResponseWriter, r *http.Request) {
	var body oauthProviderRequest
	if err := decodeJSONBodyLoose(w, r, &body); err != nil {
		writeError(w, s.logger, parseError("invalid request body: %v", err))
		return
	}
	cfg, ok := oauthPresets[body.Provider]
	if !ok {
		writeError(w, s.logger, parseError("unknown oauth provider: %s", body.Provider))
		return
	}
	client := oauth.NewClient()
	tok, err := client.Refresh(r.Context(), cfg, s.Tokens)
	if err != nil {
		s.logger.Error("oauth token refresh failed", zap.String("provider", body.Provider), zap.Error(err))
		writeError(w, s.logger, parseError("token refresh failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "provider": tok.ProviderID})
}
