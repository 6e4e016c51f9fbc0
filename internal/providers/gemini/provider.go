// Package gemini implements the Gemini Adapter (spec.md §4.3.c): it follows
// the same Anthropic-request-in, Anthropic-response-out translation pattern
// as the OpenAI-Compatible Adapter, but against Gemini's generateContent /
// streamGenerateContent schema via the official google.golang.org/genai SDK.
// It supports API-key auth and Vertex AI with application-default
// credentials. ModeCodeAssistOAuth builds the same API-key client as
// ModeAPIKey: no OAuth token is fetched or sent.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/elidickinson/ccmux-go/internal/ccerrors"
	"github.com/elidickinson/ccmux-go/internal/streaming"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

// Mode selects which Gemini backend and credential style to use.
type Mode int

const (
	ModeAPIKey Mode = iota
	ModeCodeAssistOAuth
	ModeVertexAI
)

// Config configures one Gemini provider instance.
type Config struct {
	Name      string
	Mode      Mode
	APIKey    string
	ProjectID string
	Location  string
	Models    []string
}

// Provider implements provider.Provider against the Gemini API.
type Provider struct {
	cfg    Config
	client *genai.Client
	logger *zap.Logger
}

// New constructs a Gemini provider. It returns an error if the genai client
// cannot be created (e.g. application-default credentials not available in
// the environment); construction is not retried on a later request.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	clientCfg := &genai.ClientConfig{}
	switch cfg.Mode {
	case ModeVertexAI:
		clientCfg.Backend = genai.BackendVertexAI
		clientCfg.Project = cfg.ProjectID
		clientCfg.Location = cfg.Location
	default:
		clientCfg.Backend = genai.BackendGeminiAPI
		clientCfg.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Provider{cfg: cfg, client: client, logger: logger}, nil
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

func (p *Provider) SendMessage(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	contents, err := toGenAIContents(req.Messages)
	if err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}
	cfg := toGenAIConfig(req)

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, ccerrors.HTTPError(err).WithProvider(p.Name())
	}

	return toAnthropicResponse(resp, req.Model), nil
}

// SendMessageStream drives genai's streaming iterator in a goroutine and
// writes translated Anthropic SSE frames into an io.Pipe, so the caller sees
// the same io.ReadCloser shape as every other adapter.
func (p *Provider) SendMessageStream(ctx context.Context, req *wire.Request) (io.ReadCloser, http.Header, error) {
	contents, err := toGenAIContents(req.Messages)
	if err != nil {
		return nil, nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}
	cfg := toGenAIConfig(req)

	pr, pw := io.Pipe()

	go func() {
		state := newAnthropicEmitter(req.Model)
		var streamErr error

		stream := p.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg)
		for result, err := range stream {
			if err != nil {
				streamErr = err
				break
			}
			for _, ev := range state.consume(result) {
				if _, werr := pw.Write([]byte(ev.Format())); werr != nil {
					pw.CloseWithError(werr)
					return
				}
			}
		}

		if streamErr != nil {
			pw.CloseWithError(ccerrors.HTTPError(streamErr).WithProvider(p.Name()))
			return
		}
		for _, ev := range state.finalize() {
			if _, werr := pw.Write([]byte(ev.Format())); werr != nil {
				pw.CloseWithError(werr)
				return
			}
		}
		pw.Close()
	}()

	return pr, nil, nil
}

// CountTokens uses genai's CountTokens RPC where available, falling back to
// a char/4 estimate on error.
func (p *Provider) CountTokens(ctx context.Context, req *wire.CountTokensRequest) (*wire.CountTokensResponse, error) {
	contents, err := toGenAIContents(req.Messages)
	if err != nil {
		return nil, ccerrors.SerializationError(err).WithProvider(p.Name())
	}

	resp, err := p.client.Models.CountTokens(ctx, req.Model, contents, nil)
	if err != nil {
		p.logger.Warn("count_tokens failed, falling back to estimate", zap.String("provider", p.Name()), zap.Error(err))
		return estimateTokens(req), nil
	}
	return &wire.CountTokensResponse{InputTokens: int(resp.TotalTokens)}, nil
}

func estimateTokens(req *wire.CountTokensRequest) *wire.CountTokensResponse {
	chars := 0
	if req.System != nil {
		chars += len(req.System.JoinedText())
	}
	for _, m := range req.Messages {
		chars += len(m.Content.AsPlainText())
	}
	return &wire.CountTokensResponse{InputTokens: chars/4 + 1}
}

func toGenAIContents(messages []wire.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if msg.Content.IsText() {
			parts = append(parts, genai.NewPartFromText(msg.Content.Text))
		} else {
			for _, block := range msg.Content.Blocks {
				if block.Known == nil {
					continue
				}
				switch block.Known.Type {
				case "text":
					parts = append(parts, genai.NewPartFromText(block.Known.Text))
				case "image":
					if block.Known.Source != nil {
						data, _ := base64.StdEncoding.DecodeString(block.Known.Source.Data)
						parts = append(parts, genai.NewPartFromBytes(data, block.Known.Source.MediaType))
					}
				case "tool_use":
					args := make(map[string]any)
					_ = json.Unmarshal(block.Known.Input, &args)
					parts = append(parts, genai.NewPartFromFunctionCall(block.Known.Name, args))
				case "tool_result":
					response := map[string]any{"output": block.Known.Content.String()}
					parts = append(parts, genai.NewPartFromFunctionResponse(block.Known.ToolUseID, response))
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents, nil
}

func toGenAIConfig(req *wire.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != nil {
		cfg.SystemInstruction = genai.NewContentFromText(req.System.JoinedText(), genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.TopP != nil {
		cfg.TopP = req.TopP
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.StopSequences != nil {
		cfg.StopSequences = req.StopSequences
	}
	if len(req.Tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, t := range req.Tools {
			if t.IsWebSearch() {
				continue
			}
			var params map[string]any
			_ = json.Unmarshal(t.InputSchema, &params)
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                  t.Name,
				Description:           t.Description,
				ParametersJsonSchema:  params,
			})
		}
		if len(decls) > 0 {
			cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}
	return cfg
}

func toAnthropicResponse(resp *genai.GenerateContentResponse, requestedModel string) *wire.Response {
	out := &wire.Response{
		Type:  "message",
		Role:  "assistant",
		Model: requestedModel,
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return out
	}

	candidate := resp.Candidates[0]
	out.StopReason = mapFinishReason(string(candidate.FinishReason))
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				out.Content = append(out.Content, wire.TextBlock(part.Text, nil))
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				out.Content = append(out.Content, wire.ToolUseBlock(part.FunctionCall.ID, part.FunctionCall.Name, args))
			}
		}
	}

	if resp.UsageMetadata != nil {
		out.Usage = wire.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out
}

func mapFinishReason(reason string) string {
	switch strings.ToUpper(reason) {
	case "MAX_TOKENS":
		return "max_tokens"
	case "STOP", "":
		return "end_turn"
	default:
		return "end_turn"
	}
}
