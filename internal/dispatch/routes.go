package dispatch

import "net/http"

// RegisterRoutes wires every gateway route onto mux: the completion
// endpoints, the admin/config surface, and the OAuth admin routes. The
// OAuth callback route is also mounted on the dedicated 127.0.0.1:1455
// listener by RegisterOAuthCallbackRoute, since OpenAI's Codex OAuth app
// only allows that exact callback address.
func (s *State) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", s.handleAdminIndex)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("POST /v1/messages/count_tokens", s.handleCountTokens)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)

	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("GET /api/models-config", s.handleModelsConfig)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handleUpdateConfig)
	mux.HandleFunc("GET /api/config/json", s.handleGetConfigJSON)
	mux.HandleFunc("POST /api/config/json", s.handleUpdateConfigJSON)
	mux.HandleFunc("POST /api/reload", s.handleReload)

	mux.HandleFunc("POST /api/oauth/authorize", s.handleOAuthAuthorize)
	mux.HandleFunc("POST /api/oauth/exchange", s.handleOAuthExchange)
	mux.HandleFunc("GET /api/oauth/callback", s.handleOAuthCallback)
	mux.HandleFunc("GET /auth/callback", s.handleOAuthCallback)
	mux.HandleFunc("GET /api/oauth/tokens", s.handleOAuthListTokens)
	mux.HandleFunc("POST /api/oauth/tokens/delete", s.handleOAuthDeleteToken)
	mux.HandleFunc("POST /api/oauth/tokens/refresh", s.handleOAuthRefreshToken)
}

// RegisterOAuthCallbackRoute wires only the /auth/callback route, for the
// secondary listener bound to 127.0.0.1:1455.
func (s *State) RegisterOAuthCallbackRoute(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/callback", s.handleOAuthCallback)
}
