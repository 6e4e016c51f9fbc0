// Package openai implements the OpenAI-Compatible Adapter (spec.md §4.3.b):
// translates Anthropic-format requests to/from the OpenAI Chat Completions
// schema, with a Codex-flavored Responses API variant for ChatGPT OAuth
// credentials, and serves the hosted OpenAI-compatible presets (OpenRouter,
// DeepInfra, Novita, Together, Fireworks, Groq, Nebius, Cerebras, Moonshot,
// Baseten).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/ccerrors"
	"github.com/elidickinson/ccmux-go/internal/oauth"
	"github.com/elidickinson/ccmux-go/internal/streaming"
	"github.com/elidickinson/ccmux-go/internal/tokenstore"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

// AuthMode selects how the adapter authenticates with upstream.
type AuthMode int

const (
	AuthAPIKey AuthMode = iota
	AuthOAuthCodex
)

// Config configures one OpenAI-Compatible provider instance.
type Config struct {
	Name       string
	BaseURL    string // default https://api.openai.com/v1
	APIKey     string
	AuthMode   AuthMode
	OAuthCfg   oauth.Config
	TokenStore *tokenstore.Store
	Models     []string
	Headers    map[string]string
}

// Provider implements provider.Provider against an OpenAI-shaped API.
type Provider struct {
	cfg      Config
	client   *http.Client
	logger   *zap.Logger
	oauthCli *oauth.Client
	enc      *tiktoken.Tiktoken
}

// New constructs an OpenAI-Compatible provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Provider{
		cfg:      cfg,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   logger,
		oauthCli: oauth.NewClient(),
		enc:      enc,
	}
}

// Preset constructors for the hosted OpenAI-compatible providers spec.md
// §4.3.b names. Each reuses the Chat Completions translation with a
// provider-specific base URL and, where needed, extra identifying headers.
func preset(name, baseURL, apiKey string, headers map[string]string, logger *zap.Logger) *Provider {
	return New(Config{Name: name, BaseURL: baseURL, APIKey: apiKey, AuthMode: AuthAPIKey, Headers: headers}, logger)
}

func NewOpenRouter(apiKey string, logger *zap.Logger) *Provider {
	return preset("openrouter", "https://openrouter.ai/api/v1", apiKey,
		map[string]string{"HTTP-Referer": "https://github.com/elidickinson/ccmux-go", "X-Title": "ccmux"}, logger)
}

func NewDeepInfra(apiKey string, logger *zap.Logger) *Provider {
	return preset("deepinfra", "https://api.deepinfra.com/v1/openai", apiKey, nil, logger)
}

func NewNovita(apiKey string, logger *zap.Logger) *Provider {
	return preset("novita", "https://api.novita.ai/v3/openai", apiKey, map[string]string{"X-Novita-Source": "ccmux"}, logger)
}

func NewBaseten(apiKey string, logger *zap.Logger) *Provider {
	return preset("baseten", "https://inference.baseten.co/v1", apiKey, nil, logger)
}

func NewTogether(apiKey string, logger *zap.Logger) *Provider {
	return preset("together", "https://api.together.xyz/v1", apiKey, nil, logger)
}

func NewFireworks(apiKey string, logger *zap.Logger) *Provider {
	return preset("fireworks", "https://api.fireworks.ai/inference/v1", apiKey, nil, logger)
}

func NewGroq(apiKey string, logger *zap.Logger) *Provider {
	return preset("groq", "https://api.groq.com/openai/v1", apiKey, nil, logger)
}

func NewNebius(apiKey string, logger *zap.Logger) *Provider {
	return preset("nebius", "https://api.studio.nebius.ai/v1", apiKey, nil, logger)
}

func NewCerebras(apiKey string, logger *zap.Logger) *Provider {
	return preset("cerebras", "https://api.cerebras.ai/v1", apiKey, nil, logger)
}

func NewMoonshot(apiKey string, logger *zap.Logger) *Provider {
	return preset("moonshot", "https://api.moonshot.cn/v1", apiKey, nil, logger)
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) SupportsModel(modelName string) bool {
	if len(p.cfg.Models) == 0 {
		return true
	}
	for _, m := range p.cfg.Models {
		if m == modelName {
			return true
		}
	}
	return false
}

// isCodex reports whether this provider speaks to ChatGPT's backend via the
// Codex Responses API variant rather than plain Chat Completions.
func (p *Provider) isCodex() bool {
	return p.cfg.AuthMode == AuthOAuthCodex
}

// useResponsesAPI reports whether a request for modelName must go through
// the Codex Responses API instead of Chat Completions: OAuth credentials
// always do, API-key credentials only when the model name itself names the
// codex family.
func (p *Provider) useResponsesAPI(modelName string) bool {
	return p.isCodex() || strings.Contains(strings.ToLower(modelName), "codex")
}

// endpoint selects the Chat Completions or Codex Responses API URL per
// spec.md §4.3.b: OAuth credentials always go through the ChatGPT backend's
// /codex/responses path; API-key credentials use /chat/completions unless
// the model name itself names the codex family, in which case they use the
// plain Responses API at the configured base URL.
func (p *Provider) endpoint(modelName string) string {
	if p.isCodex() {
		return "https://chatgpt.com/backend-api/codex/responses"
	}
	base := strings.TrimRight(p.cfg.BaseURL, "/")
	if p.useResponsesAPI(modelName) {
		return base + "/responses"
	}
	return base + "/chat/completions"
}

func (p *Provider) buildHeaders(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	if p.isCodex() {
		authHeader, err := oauth.GetAuthHeader(ctx, p.oauthCli, p.cfg.OAuthCfg, p.cfg.TokenStore)
		if err != nil {
			return ccerrors.AuthError(err.Error()).WithProvider(p.cfg.Name)
		}
		req.Header.Set("Authorization", authHeader)
		req.Header.Set("OpenAI-Beta", "responses=experimental")
		req.Header.Set("originator", "codex_cli_rs")
		req.Header.Set("User-Agent", "codex_cli_rs")

		tok, ok := p.cfg.TokenStore.Get(p.cfg.OAuthCfg.ProviderID)
		if ok {
			if accountID, err := oauth.ExtractChatGPTAccountID(tok.AccessToken.Expose()); err == nil {
				req.Header.Set("chatgpt-account-id", accountID)
			}
		}
		return nil
	}

	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	return nil
}

func (p *Provider) SendMessage(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if p.useResponsesAPI(req.Model) {
		return p.sendResponsesMessage(ctx, req)
	}

	body, err := toChatRequest(req)
	if err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}
	body.Stream = false

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req.Model), bytes.NewReader(payload))
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if err := p.buildHeaders(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if resp.StatusCode >= 400 {
		return nil, ccerrors.APIError(resp.StatusCode, readErrMsg(respBody)).WithProvider(p.Name())
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	return toAnthropicResponse(&cr, req.Model)
}

// sendResponsesMessage sends a Codex Responses API request. Despite being
// the non-streaming entry point, it still asks for text/event-stream: the
// ChatGPT backend always replies as SSE. The whole body is read before
// parsing since the content-bearing event (response.completed) only appears
// once, near the end.
func (p *Provider) sendResponsesMessage(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	body := toResponsesRequest(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req.Model), bytes.NewReader(payload))
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if err := p.buildHeaders(ctx, httpReq); err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if resp.StatusCode >= 400 {
		return nil, ccerrors.APIError(resp.StatusCode, readErrMsg(respBody)).WithProvider(p.Name())
	}

	blocks, err := parseResponsesCompleted(respBody)
	if err != nil {
		return nil, ccerrors.APIError(http.StatusInternalServerError, err.Error()).WithProvider(p.Name())
	}

	return &wire.Response{
		ID:         "sse-response",
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		Model:      req.Model,
		StopReason: "end_turn",
	}, nil
}

// SendMessageStream requests an OpenAI SSE stream and translates each chunk
// into Anthropic-shaped SSE frames on the fly via streaming.TransformState.
// Codex/Responses API requests take a separate path: see
// sendResponsesMessageStream.
func (p *Provider) SendMessageStream(ctx context.Context, req *wire.Request) (io.ReadCloser, http.Header, error) {
	if p.useResponsesAPI(req.Model) {
		return p.sendResponsesMessageStream(ctx, req)
	}

	body, err := toChatRequest(req)
	if err != nil {
		return nil, nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req.Model), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if err := p.buildHeaders(ctx, httpReq); err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, nil, ccerrors.APIError(resp.StatusCode, readErrMsg(respBody)).WithProvider(p.Name())
	}

	return newTranslatingStream(resp.Body), resp.Header, nil
}

// sendResponsesMessageStream requests a Codex Responses API reply and
// presents it as an Anthropic SSE stream. The Responses API only ever
// surfaces its content in the single response.completed event near the end
// of the body, so there is no true incremental translation to perform: the
// whole body is buffered, parsed once, and replayed downstream as a
// complete message_start/.../message_stop sequence.
func (p *Provider) sendResponsesMessageStream(ctx context.Context, req *wire.Request) (io.ReadCloser, http.Header, error) {
	body := toResponsesRequest(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req.Model), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if err := p.buildHeaders(ctx, httpReq); err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if resp.StatusCode >= 400 {
		return nil, nil, ccerrors.APIError(resp.StatusCode, readErrMsg(respBody)).WithProvider(p.Name())
	}

	blocks, err := parseResponsesCompleted(respBody)
	if err != nil {
		return nil, nil, ccerrors.APIError(http.StatusInternalServerError, err.Error()).WithProvider(p.Name())
	}

	var buf bytes.Buffer
	for _, ev := range responsesEventsFromCompleted(blocks, req.Model) {
		buf.WriteString(ev.Format())
	}

	return io.NopCloser(&buf), resp.Header, nil
}

// translatingStream adapts the OpenAI SSE body into a Reader of Anthropic
// SSE bytes, pulling chunks through streaming.TransformState lazily as the
// caller reads.
type translatingStream struct {
	upstream io.ReadCloser
	sse      *streaming.Reader
	state    *streaming.TransformState
	pending  []byte
	done     bool
}

func newTranslatingStream(upstream io.ReadCloser) *translatingStream {
	return &translatingStream{
		upstream: upstream,
		sse:      streaming.NewReader(upstream),
		state:    streaming.NewTransformState(),
	}
}

func (t *translatingStream) Read(p []byte) (int, error) {
	for len(t.pending) == 0 {
		if t.done {
			return 0, io.EOF
		}
		ev, err := t.sse.Next()
		if err != nil {
			t.done = true
			for _, finalEv := range t.state.Finalize() {
				t.pending = append(t.pending, []byte(finalEv.Format())...)
			}
			if len(t.pending) == 0 {
				return 0, io.EOF
			}
			continue
		}
		if ev.Data == "[DONE]" {
			t.done = true
			for _, finalEv := range t.state.Finalize() {
				t.pending = append(t.pending, []byte(finalEv.Format())...)
			}
			continue
		}

		var chunk streaming.OpenAIChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			continue
		}
		for _, translated := range t.state.Transform(chunk) {
			t.pending = append(t.pending, []byte(translated.Format())...)
		}
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *translatingStream) Close() error {
	return t.upstream.Close()
}

// CountTokens has no upstream equivalent on OpenAI-compatible backends; it
// estimates with the cl100k_base tiktoken encoding, which is close enough
// for routing/budgeting purposes across the GPT model family.
func (p *Provider) CountTokens(ctx context.Context, req *wire.CountTokensRequest) (*wire.CountTokensResponse, error) {
	if p.enc == nil {
		return estimateCharBased(req), nil
	}

	total := 0
	if req.System != nil {
		total += len(p.enc.Encode(req.System.JoinedText(), nil, nil))
	}
	for _, m := range req.Messages {
		total += 4 // per-message role/framing overhead
		total += len(p.enc.Encode(m.Content.AsPlainText(), nil, nil))
	}
	return &wire.CountTokensResponse{InputTokens: total}, nil
}

func estimateCharBased(req *wire.CountTokensRequest) *wire.CountTokensResponse {
	chars := 0
	if req.System != nil {
		chars += len(req.System.JoinedText())
	}
	for _, m := range req.Messages {
		chars += len(m.Content.AsPlainText())
	}
	return &wire.CountTokensResponse{InputTokens: chars/4 + 1}
}

func readErrMsg(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", parsed.Error.Message, parsed.Error.Type)
	}
	return string(body)
}
