// Package anthropic implements the Anthropic-Compatible Adapter (spec.md
// §4.3.a): it talks to Anthropic-native and Anthropic-compatible backends
// (z.ai, MiniMax, Zenmux, Kimi-coding) whose wire format already matches the
// gateway's internal representation, so no request/response translation is
// needed beyond header construction and thinking-block sanitization.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/ccerrors"
	"github.com/elidickinson/ccmux-go/internal/oauth"
	"github.com/elidickinson/ccmux-go/internal/tokenstore"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

// signatureSanityThreshold is the heuristic length above which a thinking
// block's signature is trusted as genuine rather than a client-fabricated
// placeholder; shorter signatures are stripped so upstream does not reject
// the request for a malformed thinking block.
const signatureSanityThreshold = 150

// AuthMode selects how the adapter authenticates with upstream.
type AuthMode int

const (
	AuthAPIKey AuthMode = iota
	AuthOAuth
)

// Config configures one Anthropic-Compatible provider instance.
type Config struct {
	Name       string
	BaseURL    string // default https://api.anthropic.com
	APIKey     string
	AuthMode   AuthMode
	OAuthCfg   oauth.Config
	TokenStore *tokenstore.Store
	Models     []string // explicit model allowlist; empty means "any"
	Headers    map[string]string
	Beta       string // anthropic-beta header value, required for OAuth
}

// Provider implements provider.Provider against an Anthropic-shaped API.
type Provider struct {
	cfg        Config
	client     *http.Client
	logger     *zap.Logger
	oauthCli   *oauth.Client
}

// New constructs an Anthropic-Compatible provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	return &Provider{
		cfg:      cfg,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   logger,
		oauthCli: oauth.NewClient(),
	}
}

// Preset constructors for the Anthropic-compatible hosted providers spec.md
// §4.3.a names explicitly.
func NewZAI(apiKey string, logger *zap.Logger) *Provider {
	return New(Config{Name: "z.ai", BaseURL: "https://api.z.ai/api/anthropic", APIKey: apiKey, AuthMode: AuthAPIKey}, logger)
}

func NewMiniMax(apiKey string, logger *zap.Logger) *Provider {
	return New(Config{Name: "minimax", BaseURL: "https://api.minimax.chat/anthropic", APIKey: apiKey, AuthMode: AuthAPIKey}, logger)
}

func NewZenmux(apiKey string, logger *zap.Logger) *Provider {
	return New(Config{Name: "zenmux", BaseURL: "https://zenmux.ai/api/anthropic", APIKey: apiKey, AuthMode: AuthAPIKey}, logger)
}

func NewKimiCoding(apiKey string, logger *zap.Logger) *Provider {
	return New(Config{Name: "kimi-coding", BaseURL: "https://api.moonshot.cn/anthropic", APIKey: apiKey, AuthMode: AuthAPIKey}, logger)
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

func (p *Provider) buildHeaders(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	switch p.cfg.AuthMode {
	case AuthOAuth:
		authHeader, err := oauth.GetAuthHeader(ctx, p.oauthCli, p.cfg.OAuthCfg, p.cfg.TokenStore)
		if err != nil {
			return ccerrors.AuthError(err.Error()).WithProvider(p.cfg.Name)
		}
		req.Header.Set("Authorization", authHeader)
		beta := p.cfg.Beta
		if beta == "" {
			beta = "oauth-2025-04-20"
		}
		req.Header.Set("anthropic-beta", beta)
	default:
		req.Header.Set("x-api-key", p.cfg.APIKey)
	}
	req.Header.Set("anthropic-version", "2023-06-01")
	return nil
}

// sanitizeThinking strips thinking-block signatures that are too short to be
// genuine, so a client-echoed or truncated signature does not get rejected
// by upstream as malformed.
func sanitizeThinking(req *wire.Request) {
	for i := range req.Messages {
		content := req.Messages[i].Content
		if content.IsText() {
			continue
		}
		blocks := content.Blocks
		for j := range blocks {
			kb := blocks[j].Known
			if kb == nil || kb.Type != "thinking" {
				continue
			}
			if len(kb.Signature) < signatureSanityThreshold {
				kb.Signature = ""
			}
		}
	}
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *Provider) SendMessage(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	sanitizeThinking(req)
	req.Stream = nil

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}

	if resp.StatusCode >= 400 {
		return nil, ccerrors.APIError(resp.StatusCode, readErrMsg(body)).WithProvider(p.Name())
	}

	var out wire.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}
	return &out, nil
}

// SendMessageStream forwards the upstream SSE byte stream unmodified: the
// Anthropic-Compatible adapter needs no chunk translation since the wire
// format is already the gateway's native representation.
func (p *Provider) SendMessageStream(ctx context.Context, req *wire.Request) (io.ReadCloser, http.Header, error) {
	sanitizeThinking(req)
	streamTrue := true
	req.Stream = &streamTrue

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
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
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, ccerrors.APIError(resp.StatusCode, readErrMsg(body)).WithProvider(p.Name())
	}
	return resp.Body, resp.Header, nil
}

// CountTokens prefers the native count_tokens endpoint, falling back to a
// char/4 estimate if upstream does not support it.
func (p *Provider) CountTokens(ctx context.Context, req *wire.CountTokensRequest) (*wire.CountTokensResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages/count_tokens"), bytes.NewReader(payload))
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}
	if err := p.buildHeaders(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Warn("count_tokens request failed, falling back to estimate", zap.String("provider", p.Name()), zap.Error(err))
		return estimateTokens(req), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.logger.Warn("count_tokens endpoint rejected request, falling back to estimate",
			zap.String("provider", p.Name()), zap.Int("status", resp.StatusCode))
		return estimateTokens(req), nil
	}

	var out wire.CountTokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}
	return &out, nil
}

func estimateTokens(req *wire.CountTokensRequest) *wire.CountTokensResponse {
	var chars int
	if req.System != nil {
		chars += len(req.System.JoinedText())
	}
	for _, m := range req.Messages {
		chars += len(m.Content.AsPlainText())
	}
	return &wire.CountTokensResponse{InputTokens: chars / 4}
}

func readErrMsg(body []byte) string {
	var parsed struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", parsed.Error.Message, parsed.Error.Type)
	}
	return string(body)
}
