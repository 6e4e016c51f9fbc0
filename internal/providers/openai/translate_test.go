package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elidickinson/ccmux-go/internal/wire"
)

func TestToChatRequestSystemAndText(t *testing.T) {
	req := &wire.Request{
		Model:     "gpt-4o",
		MaxTokens: 100,
		System:    systemText("be concise"),
		Messages: []wire.Message{
			{Role: "user", Content: wire.TextContent("hi there")},
		},
	}

	out, err := toChatRequest(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "system", out.Messages[0].Role)
	assert.Equal(t, "be concise", out.Messages[0].Content)
	assert.Equal(t, "user", out.Messages[1].Role)
	assert.Equal(t, "hi there", out.Messages[1].Content)
}

func TestToChatRequestToolResultOrdering(t *testing.T) {
	toolResult := wire.ToolResultBlockOf("call_1", wire.ToolResultText("42"))
	req := &wire.Request{
		Model: "gpt-4o",
		Messages: []wire.Message{
			{Role: "user", Content: wire.BlockContent([]wire.ContentBlock{toolResult, wire.TextBlock("thanks", nil)})},
		},
	}

	out, err := toChatRequest(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "tool", out.Messages[0].Role)
	assert.Equal(t, "call_1", out.Messages[0].ToolCallID)
	assert.Equal(t, "user", out.Messages[1].Role)
}

func TestToAnthropicResponseToolUse(t *testing.T) {
	resp := &chatResponse{
		ID: "chatcmpl-1",
		Choices: []chatChoice{{
			FinishReason: "tool_calls",
			Message: chatMessage{
				Role: "assistant",
				ToolCalls: []chatToolCall{{
					ID: "call_1",
					Function: struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					}{Name: "lookup", Arguments: `{"q":"x"}`},
				}},
			},
		}},
		Usage: &chatUsage{PromptTokens: 10, CompletionTokens: 5},
	}

	out, err := toAnthropicResponse(resp, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "tool_use", out.StopReason)
	require.Len(t, out.Content, 1)
	assert.True(t, out.Content[0].IsToolUse())
	assert.Equal(t, 10, out.Usage.InputTokens)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(out.Content[0].Known.Input, &parsed))
	assert.Equal(t, "x", parsed["q"])
}

func TestToAnthropicResponseReasoningFallback(t *testing.T) {
	resp := &chatResponse{
		ID: "chatcmpl-2",
		Choices: []chatChoice{{
			FinishReason: "stop",
			Message: chatMessage{
				Role:      "assistant",
				Reasoning: "let me think about this",
			},
		}},
	}

	out, err := toAnthropicResponse(resp, "glm-4.6")
	require.NoError(t, err)
	require.Len(t, out.Content, 1)
	assert.True(t, out.Content[0].IsText())
	assert.Equal(t, "let me think about this", out.Content[0].Known.Text)
}

func systemText(s string) *wire.SystemPrompt {
	sp := wire.SystemText(s)
	return &sp
}
