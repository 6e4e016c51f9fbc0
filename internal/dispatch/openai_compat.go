package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/elidickinson/ccmux-go/internal/wire"
)

// openAIChatRequest is the body of an inbound POST /v1/chat/completions
// request. Clients that speak OpenAI's Chat Completions API (rather than
// Anthropic's Messages API) land here; the gateway translates to and from
// the internal wire format so the same router and provider registry serve
// both surfaces.
type openAIChatRequest struct {
	Model       string           `json:"model"`
	Messages    []openAIChatMsg  `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	TopP        *float32         `json:"top_p,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Stream      *bool            `json:"stream,omitempty"`
	Tools       []openAIChatTool `json:"tools,omitempty"`
}

type openAIChatMsg struct {
	Role       string              `json:"role"`
	Content    json.RawMessage     `json:"content,omitempty"`
	ToolCalls  []openAIChatToolUse `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

type openAIChatToolUse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason"`
	Message      openAIChatMsg `json:"message"`
}

type openAIChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIChatUsage    `json:"usage"`
}

// isStreaming reports whether the client asked for an SSE response, which
// /v1/chat/completions does not support (spec.md §4.4 limits streaming
// translation to /v1/messages).
func (r *openAIChatRequest) isStreaming() bool {
	return r.Stream != nil && *r.Stream
}

// transformOpenAIToAnthropic converts an inbound Chat Completions request
// into the gateway's canonical wire.Request, the mirror image of
// internal/providers/openai's outbound toChatRequest.
func transformOpenAIToAnthropic(req *openAIChatRequest) (*wire.Request, error) {
	out := &wire.Request{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}

	var systemParts []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			text, err := rawStringContent(m.Content)
			if err != nil {
				return nil, fmt.Errorf("decode system message: %w", err)
			}
			systemParts = append(systemParts, text)
			continue
		}

		msg, err := convertOpenAIMessage(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}
	if len(systemParts) > 0 {
		joined := systemParts[0]
		for _, p := range systemParts[1:] {
			joined += "\n" + p
		}
		sys := wire.SystemText(joined)
		out.System = &sys
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wire.Tool{
			Type:        "custom",
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	return out, nil
}

func rawStringContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", err
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p.Text
	}
	return out, nil
}

func convertOpenAIMessage(m openAIChatMsg) (wire.Message, error) {
	if m.Role == "tool" {
		content := wire.ToolResultText(mustRawStringContent(m.Content))
		return wire.Message{
			Role:    "user",
			Content: wire.BlockContent([]wire.ContentBlock{wire.ToolResultBlockOf(m.ToolCallID, content)}),
		}, nil
	}

	var blocks []wire.ContentBlock
	if len(m.ToolCalls) > 0 {
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, wire.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
		}
	}
	text, err := rawStringContent(m.Content)
	if err != nil {
		return wire.Message{}, fmt.Errorf("decode message content: %w", err)
	}
	if text != "" {
		blocks = append(blocks, wire.TextBlock(text, nil))
	}

	if len(blocks) == 0 {
		return wire.Message{Role: m.Role, Content: wire.TextContent("")}, nil
	}
	if len(blocks) == 1 && blocks[0].IsText() {
		return wire.Message{Role: m.Role, Content: wire.TextContent(blocks[0].Known.Text)}, nil
	}
	return wire.Message{Role: m.Role, Content: wire.BlockContent(blocks)}, nil
}

func mustRawStringContent(raw json.RawMessage) string {
	s, _ := rawStringContent(raw)
	return s
}

// transformAnthropicToOpenAI converts a wire.Response back into Chat
// Completions form, reporting the client's originally requested model name
// rather than whatever actual_model served the request.
func transformAnthropicToOpenAI(resp *wire.Response, requestedModel string) *openAIChatResponse {
	out := &openAIChatResponse{
		ID:     resp.ID,
		Object: "chat.completion",
		Model:  requestedModel,
		Usage: openAIChatUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	choice := openAIChatChoice{
		FinishReason: mapStopReasonToFinish(resp.StopReason),
		Message:      openAIChatMsg{Role: "assistant"},
	}

	var text string
	for _, block := range resp.Content {
		if block.Known == nil {
			continue
		}
		switch block.Known.Type {
		case "text":
			text += block.Known.Text
		case "tool_use":
			tc := openAIChatToolUse{ID: block.Known.ID, Type: "function"}
			tc.Function.Name = block.Known.Name
			tc.Function.Arguments = string(block.Known.Input)
			choice.Message.ToolCalls = append(choice.Message.ToolCalls, tc)
		}
	}
	if text != "" {
		raw, _ := json.Marshal(text)
		choice.Message.Content = raw
	}

	out.Choices = []openAIChatChoice{choice}
	return out
}

func mapStopReasonToFinish(reason string) string {
	switch reason {
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	case "stop_sequence":
		return "stop"
	default:
		return "stop"
	}
}
