package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContentRoundTripText(t *testing.T) {
	in := TextContent("hello there")

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `"hello there"`, string(data))

	var out MessageContent
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.IsText())
	assert.Equal(t, "hello there", out.AsPlainText())
	assert.True(t, out.HasNonEmptyText())
}

func TestMessageContentRoundTripBlocks(t *testing.T) {
	in := BlockContent([]ContentBlock{
		TextBlock("part one", nil),
		ToolUseBlock("t1", "lookup", json.RawMessage(`{}`)),
	})

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out MessageContent
	require.NoError(t, json.Unmarshal(data, &out))
	assert.False(t, out.IsText())
	require.Len(t, out.Blocks, 2)
	assert.Equal(t, "part one", out.AsPlainText())
}

func TestMessageContentEmptyBlocksMarshalsToEmptyArray(t *testing.T) {
	data, err := json.Marshal(BlockContent(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestMessageContentHasToolResult(t *testing.T) {
	withResult := BlockContent([]ContentBlock{ToolResultBlockOf("t1", ToolResultText("ok"))})
	assert.True(t, withResult.HasToolResult())

	withoutResult := BlockContent([]ContentBlock{TextBlock("hi", nil)})
	assert.False(t, withoutResult.HasToolResult())

	assert.False(t, TextContent("plain").HasToolResult())
}

func TestMessageContentHasNonEmptyTextWhitespaceOnly(t *testing.T) {
	assert.False(t, TextContent("   \n\t").HasNonEmptyText())
}

func TestSystemPromptRoundTripText(t *testing.T) {
	in := SystemText("be concise")

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out SystemPrompt
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.IsText())
	assert.Equal(t, "be concise", out.JoinedText())
}

func TestSystemPromptRoundTripBlocks(t *testing.T) {
	raw := []byte(`[{"type":"text","text":"first"},{"type":"text","text":"second"}]`)

	var prompt SystemPrompt
	require.NoError(t, json.Unmarshal(raw, &prompt))

	assert.False(t, prompt.IsText())
	assert.Equal(t, "first\nsecond", prompt.JoinedText())

	data, err := json.Marshal(prompt)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(data))
}

func TestRequestIsStreaming(t *testing.T) {
	yes := true
	no := false

	assert.True(t, (&Request{Stream: &yes}).IsStreaming())
	assert.False(t, (&Request{Stream: &no}).IsStreaming())
	assert.False(t, (&Request{}).IsStreaming())
}

func TestToolIsWebSearch(t *testing.T) {
	assert.True(t, Tool{Type: "web_search_20250305"}.IsWebSearch())
	assert.False(t, Tool{Type: "function"}.IsWebSearch())
	assert.False(t, Tool{}.IsWebSearch())
}

func TestThinkingConfigEnabled(t *testing.T) {
	var nilCfg *ThinkingConfig
	assert.False(t, nilCfg.Enabled())

	assert.True(t, (&ThinkingConfig{Type: "enabled"}).Enabled())
	assert.False(t, (&ThinkingConfig{Type: "disabled"}).Enabled())
}
