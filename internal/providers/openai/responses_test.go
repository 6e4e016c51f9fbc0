package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elidickinson/ccmux-go/internal/wire"
)

func TestToResponsesRequestSystemAndText(t *testing.T) {
	req := &wire.Request{
		Model:  "codex-mini",
		System: systemText("be terse"),
		Messages: []wire.Message{
			{Role: "user", Content: wire.TextContent("fix the bug")},
		},
	}

	out := toResponsesRequest(req)
	assert.Equal(t, "codex-mini", out.Model)
	assert.False(t, out.Store)
	assert.True(t, out.Stream)
	assert.NotEmpty(t, out.Instructions)
	require.Len(t, out.Input, 2)
	assert.Equal(t, "user", out.Input[0].Role)
	assert.Equal(t, "be terse", out.Input[0].Content)
	assert.Equal(t, "user", out.Input[1].Role)
	assert.Equal(t, "fix the bug", out.Input[1].Content)
}

func TestToResponsesRequestJoinsTextBlocksOnly(t *testing.T) {
	req := &wire.Request{
		Model: "codex-mini",
		Messages: []wire.Message{
			{Role: "assistant", Content: wire.BlockContent([]wire.ContentBlock{
				wire.TextBlock("part one", nil),
				wire.ToolUseBlock("t1", "lookup", nil),
				wire.TextBlock("part two", nil),
			})},
		},
	}

	out := toResponsesRequest(req)
	require.Len(t, out.Input, 1)
	assert.Equal(t, "part one\npart two", out.Input[0].Content)
}

func TestParseResponsesCompletedReasoningAndMessage(t *testing.T) {
	raw := []byte("event: response.completed\n" +
		`data: {"response":{"output":[{"type":"reasoning","content":[{"text":"thinking it over"}]},{"type":"message","content":[{"text":"here's the answer"}]}]}}` +
		"\n\n")

	blocks, err := parseResponsesCompleted(raw)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.True(t, blocks[0].IsThinking())
	assert.Equal(t, "thinking it over", blocks[0].Known.Text)
	assert.True(t, blocks[1].IsText())
	assert.Equal(t, "here's the answer", blocks[1].Known.Text)
}

func TestParseResponsesCompletedNoMatchingEvent(t *testing.T) {
	raw := []byte("event: response.in_progress\ndata: {}\n\n")

	_, err := parseResponsesCompleted(raw)
	assert.Error(t, err)
}

func TestResponsesEventsFromCompletedSequence(t *testing.T) {
	blocks := []wire.ContentBlock{wire.TextBlock("hi there", nil)}
	events := responsesEventsFromCompleted(blocks, "codex-mini")

	require.Len(t, events, 6)
	assert.Equal(t, "message_start", events[0].EventType)
	assert.Equal(t, "content_block_start", events[1].EventType)
	assert.Equal(t, "content_block_delta", events[2].EventType)
	assert.Contains(t, events[2].Data, "hi there")
	assert.Equal(t, "content_block_stop", events[3].EventType)
	assert.Equal(t, "message_delta", events[4].EventType)
	assert.Equal(t, "message_stop", events[5].EventType)
}
