package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

func testConfig(upstreamURL string) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8787},
		Router: config.RouterConfig{
			Default:         "claude-sonnet-4",
			AutoMapRegex:    `^claude-`,
			BackgroundRegex: `(?i)claude.*haiku`,
		},
		Providers: []config.ProviderConfig{
			{Name: "primary", ProviderType: "openai", AuthType: config.AuthAPIKey, APIKey: "k", BaseURL: upstreamURL},
			{Name: "backup", ProviderType: "openai", AuthType: config.AuthAPIKey, APIKey: "k", BaseURL: upstreamURL + "/broken"},
		},
		Models: []config.ModelConfig{
			{Name: "claude-sonnet-4", Mappings: []config.ModelMapping{
				{Priority: 0, Provider: "primary", ActualModel: "gpt-4o"},
				{Priority: 1, Provider: "backup", ActualModel: "gpt-4o-mini"},
			}},
		},
	}
}

func newTestState(t *testing.T, upstream *httptest.Server) *State {
	t.Helper()
	dir := t.TempDir()
	cfgPath := dir + "/config.toml"
	cfg := testConfig(upstream.URL)
	require.NoError(t, config.Save(cfgPath, cfg))

	st, err := New(context.Background(), cfg, cfgPath, nil, zap.NewNop())
	require.NoError(t, err)
	return st
}

func fakeChatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken/chat/completions" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"down"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
}

const fakeChatReply = `{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":5,"completion_tokens":3}}`

func TestHandleMessagesSucceedsOnFirstMapping(t *testing.T) {
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	body := `{"model":"claude-sonnet-4","max_tokens":100,"messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	st.handleMessages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp wire.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "claude-sonnet-4", resp.Model)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hi there", resp.Content[0].Known.Text)
}

func TestHandleMessagesFallsBackToSecondMapping(t *testing.T) {
	// No X-Provider header: the broken "backup" binding is given the lower
	// priority so it is tried first, fails with a 500, and the request
	// falls back to the healthy "primary" binding.
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	// Swap provider priorities so the broken one is tried first.
	inner := st.snapshot()
	inner.config.Models[0].Mappings[0].Priority = 1
	inner.config.Models[0].Mappings[1].Priority = 0

	body := `{"model":"claude-sonnet-4","max_tokens":100,"messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	st.handleMessages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp wire.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "claude-sonnet-4", resp.Model)
}

func TestHandleMessagesXProviderForcesMapping(t *testing.T) {
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	body := `{"model":"claude-sonnet-4","max_tokens":100,"messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Provider", "backup")
	rec := httptest.NewRecorder()

	st.handleMessages(rec, req)

	// backup points at the upstream's /broken path, which always 500s.
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleMessagesUnknownProviderHeaderIsRoutingError(t *testing.T) {
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	body := `{"model":"claude-sonnet-4","max_tokens":100,"messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Provider", "does-not-exist")
	rec := httptest.NewRecorder()

	st.handleMessages(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatCompletionsTranslatesRequestAndResponse(t *testing.T) {
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	body := `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	st.handleChatCompletions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp openAIChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "claude-sonnet-4", resp.Model)
	require.Len(t, resp.Choices, 1)
}

func TestHandleChatCompletionsRejectsStreaming(t *testing.T) {
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	body := `{"model":"claude-sonnet-4","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	st.handleChatCompletions(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	st.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReloadRebuildsRegistry(t *testing.T) {
	upstream := fakeChatServer(t, fakeChatReply)
	defer upstream.Close()
	st := newTestState(t, upstream)

	before := st.snapshot().registry
	require.NoError(t, st.Reload(context.Background()))
	after := st.snapshot().registry
	assert.NotSame(t, before, after)
}

