package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/elidickinson/ccmux-go/internal/wire"
)

// chatMessage is one OpenAI Chat Completions message.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

// chatRequest is the OpenAI Chat Completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// chatResponse is the OpenAI Chat Completions response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// toChatRequest translates an Anthropic-format request into OpenAI Chat
// Completions form. Thinking blocks carry no OpenAI equivalent and are
// dropped; every tool_result block becomes its own "tool" message placed
// ahead of the message carrying the rest of that turn's content, matching
// upstream's ordering requirement that tool messages immediately follow the
// assistant turn they answer.
func toChatRequest(req *wire.Request) (*chatRequest, error) {
	out := &chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
	}

	if req.System != nil {
		if text := req.System.JoinedText(); text != "" {
			out.Messages = append(out.Messages, chatMessage{Role: "system", Content: text})
		}
	}

	for _, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, converted...)
	}

	for _, t := range req.Tools {
		if t.IsWebSearch() {
			continue
		}
		var ct chatTool
		ct.Type = "function"
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.InputSchema
		out.Tools = append(out.Tools, ct)
	}

	return out, nil
}

func convertMessage(msg wire.Message) ([]chatMessage, error) {
	if msg.Content.IsText() {
		return []chatMessage{{Role: msg.Role, Content: msg.Content.Text}}, nil
	}

	var toolResults []chatMessage
	var parts []chatContentPart
	var toolCalls []chatToolCall

	for _, block := range msg.Content.Blocks {
		if block.Known == nil {
			continue
		}
		kb := block.Known
		switch kb.Type {
		case "text":
			parts = append(parts, chatContentPart{Type: "text", Text: kb.Text})
		case "image":
			parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &struct {
				URL string `json:"url"`
			}{URL: imageDataURI(kb.Source)}})
		case "tool_use":
			tc := chatToolCall{ID: kb.ID, Type: "function"}
			tc.Function.Name = kb.Name
			tc.Function.Arguments = string(kb.Input)
			toolCalls = append(toolCalls, tc)
		case "tool_result":
			toolResults = append(toolResults, chatMessage{
				Role:       "tool",
				ToolCallID: kb.ToolUseID,
				Content:    kb.Content.String(),
			})
		case "thinking":
			// No OpenAI equivalent; dropped.
		}
	}

	var out []chatMessage
	// tool_result blocks are their own "tool" messages and must precede the
	// user/assistant message carrying any other content in the same turn.
	out = append(out, toolResults...)

	if len(parts) == 0 && len(toolCalls) == 0 {
		return out, nil
	}

	m := chatMessage{Role: msg.Role}
	if len(toolCalls) > 0 {
		m.ToolCalls = toolCalls
	}
	if len(parts) == 1 && parts[0].Type == "text" {
		m.Content = parts[0].Text
	} else if len(parts) > 0 {
		m.Content = parts
	}
	if m.Content != nil || len(m.ToolCalls) > 0 {
		out = append(out, m)
	}
	return out, nil
}

func imageDataURI(src *wire.ImageSource) string {
	if src == nil {
		return ""
	}
	if src.Type == "url" {
		return src.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", src.MediaType, base64.StdEncoding.EncodeToString([]byte(src.Data)))
}

// toAnthropicResponse translates an OpenAI Chat Completions response into
// Anthropic Messages form. Priority for the assistant's textual content is
// message.content, falling back to a reasoning field on models that expose
// one (o1-style), since Anthropic has no separate top-level reasoning slot
// outside thinking blocks.
func toAnthropicResponse(resp *chatResponse, requestedModel string) (*wire.Response, error) {
	out := &wire.Response{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: requestedModel,
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.StopReason = mapFinishReasonToStop(choice.FinishReason)

		text := textFromChatContent(choice.Message.Content)
		if text == "" {
			text = choice.Message.Reasoning
		}
		if text != "" {
			out.Content = append(out.Content, wire.TextBlock(text, nil))
		}
		for _, tc := range choice.Message.ToolCalls {
			out.Content = append(out.Content, wire.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
		}
	}

	if resp.Usage != nil {
		out.Usage = wire.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// textFromChatContent extracts the textual portion of an OpenAI message's
// content field, which arrives as either a plain string or a parts array.
func textFromChatContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var text string
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t == "text" {
				if s, _ := m["text"].(string); s != "" {
					text += s
				}
			}
		}
		return text
	default:
		return ""
	}
}

func mapFinishReasonToStop(reason string) string {
	switch reason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}
