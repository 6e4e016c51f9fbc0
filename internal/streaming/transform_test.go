package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformTextDelta(t *testing.T) {
	s := NewTransformState()

	events := s.Transform(OpenAIChunk{
		ID:    "chatcmpl-1",
		Model: "gpt-4o",
		Choices: []openAIChunkChoice{
			{Delta: openAIChunkDelta{Role: "assistant"}},
		},
	})
	require.Len(t, events, 1)
	assert.Equal(t, "message_start", events[0].EventType)

	events = s.Transform(OpenAIChunk{
		Choices: []openAIChunkChoice{{Delta: openAIChunkDelta{Content: "hello"}}},
	})
	require.Len(t, events, 2)
	assert.Equal(t, "content_block_start", events[0].EventType)
	assert.Equal(t, "content_block_delta", events[1].EventType)
	assert.Contains(t, events[1].Data, "hello")

	events = s.Transform(OpenAIChunk{
		Choices: []openAIChunkChoice{{FinishReason: "stop"}},
	})
	assert.Empty(t, events)

	final := s.Finalize()
	require.GreaterOrEqual(t, len(final), 3)
	assert.Equal(t, "content_block_stop", final[0].EventType)
	last := final[len(final)-1]
	assert.Equal(t, "message_stop", last.EventType)
}

func TestTransformToolCall(t *testing.T) {
	s := NewTransformState()
	s.Transform(OpenAIChunk{ID: "id", Model: "gpt-4o"})

	events := s.Transform(OpenAIChunk{
		Choices: []openAIChunkChoice{{
			Delta: openAIChunkDelta{
				ToolCalls: []openAIChunkToolCall{{
					Index: 0,
					ID:    "call_1",
					Function: struct {
						Name      string `json:"name,omitempty"`
						Arguments string `json:"arguments,omitempty"`
					}{Name: "get_weather", Arguments: `{"city":`},
				}},
			},
		}},
	})
	require.Len(t, events, 2)
	assert.Equal(t, "content_block_start", events[0].EventType)
	assert.Contains(t, events[0].Data, "get_weather")
	assert.Equal(t, "content_block_delta", events[1].EventType)

	more := s.Transform(OpenAIChunk{
		Choices: []openAIChunkChoice{{
			Delta: openAIChunkDelta{
				ToolCalls: []openAIChunkToolCall{{
					Index: 0,
					Function: struct {
						Name      string `json:"name,omitempty"`
						Arguments string `json:"arguments,omitempty"`
					}{Arguments: `"sf"}`},
				}},
			},
		}},
	})
	require.Len(t, more, 1)
	assert.Equal(t, "content_block_delta", more[0].EventType)
}

// TestTransformToolCallNoPrecedingText covers the case where a tool call
// arrives with no text block ever opening: index 0 is reserved for text
// regardless, so the first tool block must land on index 1.
func TestTransformToolCallNoPrecedingText(t *testing.T) {
	s := NewTransformState()
	s.Transform(OpenAIChunk{ID: "id", Model: "gpt-4o"})

	events := s.Transform(OpenAIChunk{
		Choices: []openAIChunkChoice{{
			Delta: openAIChunkDelta{
				ToolCalls: []openAIChunkToolCall{{
					Index: 0,
					ID:    "call_x",
					Function: struct {
						Name      string `json:"name,omitempty"`
						Arguments string `json:"arguments,omitempty"`
					}{Name: "get_w"},
				}},
			},
		}},
	})
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Data, `"index":1`)

	args1 := s.Transform(OpenAIChunk{
		Choices: []openAIChunkChoice{{
			Delta: openAIChunkDelta{ToolCalls: []openAIChunkToolCall{{Index: 0, Function: struct {
				Name      string `json:"name,omitempty"`
				Arguments string `json:"arguments,omitempty"`
			}{Arguments: `{"loc`}}}},
		}},
	})
	require.Len(t, args1, 1)
	assert.Contains(t, args1[0].Data, `"index":1`)

	s.Transform(OpenAIChunk{Choices: []openAIChunkChoice{{FinishReason: "tool_calls"}}})

	final := s.Finalize()
	require.NotEmpty(t, final)
	assert.Equal(t, "content_block_stop", final[0].EventType)
	assert.Contains(t, final[0].Data, `"index":1`)
}
