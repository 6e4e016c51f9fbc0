package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBlockRoundTripKnownText(t *testing.T) {
	in := TextBlock("hello", json.RawMessage(`{"type":"ephemeral"}`))

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ContentBlock
	require.NoError(t, json.Unmarshal(data, &out))

	require.NotNil(t, out.Known)
	assert.Equal(t, "text", out.Known.Type)
	assert.Equal(t, "hello", out.Known.Text)
	assert.True(t, out.IsText())
	assert.True(t, out.HasCacheControl())
}

func TestContentBlockRoundTripKnownTextNoCacheControl(t *testing.T) {
	in := TextBlock("hello", nil)

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ContentBlock
	require.NoError(t, json.Unmarshal(data, &out))

	assert.False(t, out.HasCacheControl())
}

func TestContentBlockUnknownTypePassthrough(t *testing.T) {
	raw := []byte(`{"type":"redacted_thinking","data":"abc123","cache_control":{"type":"ephemeral"}}`)

	var block ContentBlock
	require.NoError(t, json.Unmarshal(raw, &block))

	assert.Nil(t, block.Known)
	assert.False(t, block.IsText())
	assert.False(t, block.IsToolUse())
	assert.True(t, block.HasCacheControl())

	out, err := json.Marshal(block)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}

func TestContentBlockUnknownTypeWithoutCacheControl(t *testing.T) {
	raw := []byte(`{"type":"redacted_thinking","data":"abc123"}`)

	var block ContentBlock
	require.NoError(t, json.Unmarshal(raw, &block))

	assert.False(t, block.HasCacheControl())
}

func TestContentBlockToolUseRoundTrip(t *testing.T) {
	in := ToolUseBlock("tool_1", "get_weather", json.RawMessage(`{"city":"nyc"}`))

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ContentBlock
	require.NoError(t, json.Unmarshal(data, &out))

	require.NotNil(t, out.Known)
	assert.True(t, out.IsToolUse())
	assert.Equal(t, "tool_1", out.Known.ID)
	assert.Equal(t, "get_weather", out.Known.Name)
}

func TestContentBlockToolResultRoundTripTextForm(t *testing.T) {
	in := ToolResultBlockOf("tool_1", ToolResultText("42 degrees"))

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ContentBlock
	require.NoError(t, json.Unmarshal(data, &out))

	require.NotNil(t, out.Known)
	assert.True(t, out.IsToolResult())
	assert.Equal(t, "tool_1", out.Known.ToolUseID)
	assert.Equal(t, "42 degrees", out.Known.Content.String())
}

func TestToolResultContentBlockFormString(t *testing.T) {
	raw := []byte(`[{"type":"text","text":"first"},{"type":"image"},{"type":"something_else"}]`)

	var content ToolResultContent
	require.NoError(t, json.Unmarshal(raw, &content))

	assert.Equal(t, "first\n[Image]\n[Unknown]", content.String())
}

func TestToolResultContentNilString(t *testing.T) {
	var content *ToolResultContent
	assert.Equal(t, "", content.String())
}
