package wire

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// KnownBlock is the parsed form of a content block whose "type" the gateway
// understands. Fields are populated according to Type; unused fields are zero.
type KnownBlock struct {
	Type string `json:"type"`

	// text
	Text         string          `json:"text,omitempty"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string              `json:"tool_use_id,omitempty"`
	Content   *ToolResultContent  `json:"content,omitempty"`

	// thinking: preserved verbatim in Raw; Text carries the "thinking" field,
	// Signature the "signature" field when present, for the sanitization pass.
	Signature string `json:"signature,omitempty"`
}

// ToolResultContent is either a plain string or an ordered block sequence.
type ToolResultContent struct {
	Text   string
	Blocks []ToolResultBlock
	isText bool
}

func ToolResultText(s string) *ToolResultContent { return &ToolResultContent{Text: s, isText: true} }

func (t ToolResultContent) MarshalJSON() ([]byte, error) {
	if t.isText {
		return json.Marshal(t.Text)
	}
	return json.Marshal(t.Blocks)
}

func (t *ToolResultContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Text = s
		t.isText = true
		return nil
	}
	var blocks []ToolResultBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	t.Blocks = blocks
	return nil
}

// String renders the tool result content as a flat string, the form OpenAI
// and other non-Anthropic-native adapters require.
func (t *ToolResultContent) String() string {
	if t == nil {
		return ""
	}
	if t.isText {
		return t.Text
	}
	out := ""
	for i, b := range t.Blocks {
		if i > 0 {
			out += "\n"
		}
		switch b.Type {
		case "text":
			out += b.Text
		case "image":
			out += "[Image]"
		default:
			out += "[Unknown]"
		}
	}
	return out
}

// ToolResultBlock is one element of a block-form tool_result content.
type ToolResultBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ContentBlock is a tagged content block with passthrough for unknown types.
//
// Known content types (text, image, tool_use, tool_result, thinking) are
// parsed structurally; anything else is retained as raw JSON so the gateway
// can forward it unmodified to Anthropic-compatible backends.
type ContentBlock struct {
	Known *KnownBlock
	Raw   json.RawMessage
}

var knownBlockTypes = map[string]bool{
	"text": true, "image": true, "tool_use": true, "tool_result": true, "thinking": true,
}

func (c ContentBlock) MarshalJSON() ([]byte, error) {
	if c.Known != nil {
		if c.Known.Type == "thinking" {
			if len(c.Raw) > 0 && gjson.GetBytes(c.Raw, "signature").String() == c.Known.Signature {
				return c.Raw, nil
			}
			return json.Marshal(struct {
				Type      string `json:"type"`
				Thinking  string `json:"thinking"`
				Signature string `json:"signature,omitempty"`
			}{c.Known.Type, c.Known.Text, c.Known.Signature})
		}
		return json.Marshal(c.Known)
	}
	return c.Raw, nil
}

func (c *ContentBlock) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && knownBlockTypes[probe.Type] {
		var kb KnownBlock
		if err := json.Unmarshal(data, &kb); err == nil {
			if kb.Type == "thinking" {
				kb.Text = gjson.GetBytes(data, "thinking").String()
				c.Raw = append(json.RawMessage(nil), data...)
			}
			c.Known = &kb
			return nil
		}
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	c.Raw = raw
	return nil
}

// TextBlock builds a text content block.
func TextBlock(text string, cacheControl json.RawMessage) ContentBlock {
	return ContentBlock{Known: &KnownBlock{Type: "text", Text: text, CacheControl: cacheControl}}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Known: &KnownBlock{Type: "tool_use", ID: id, Name: name, Input: input}}
}

// ThinkingBlock builds a thinking content block. signature is left empty for
// content synthesized by the gateway rather than returned by a provider that
// signs its own thinking blocks.
func ThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Known: &KnownBlock{Type: "thinking", Text: thinking, Signature: signature}}
}

// ToolResultBlockOf builds a tool_result content block.
func ToolResultBlockOf(toolUseID string, content *ToolResultContent) ContentBlock {
	return ContentBlock{Known: &KnownBlock{Type: "tool_result", ToolUseID: toolUseID, Content: content}}
}

// IsText reports whether this block is a known text block.
func (c ContentBlock) IsText() bool { return c.Known != nil && c.Known.Type == "text" }

// IsToolResult reports whether this block is a known tool_result block.
func (c ContentBlock) IsToolResult() bool { return c.Known != nil && c.Known.Type == "tool_result" }

// IsToolUse reports whether this block is a known tool_use block.
func (c ContentBlock) IsToolUse() bool { return c.Known != nil && c.Known.Type == "tool_use" }

// IsThinking reports whether this block is a known thinking block.
func (c ContentBlock) IsThinking() bool { return c.Known != nil && c.Known.Type == "thinking" }

// HasCacheControl reports whether this block carries a cache_control field,
// known or not. Unknown block types are inspected with gjson rather than a
// round-trip struct, since the gateway only needs this one key out of a
// shape it otherwise forwards byte-for-byte.
func (c ContentBlock) HasCacheControl() bool {
	if c.Known != nil {
		return len(c.Known.CacheControl) > 0
	}
	return gjson.GetBytes(c.Raw, "cache_control").Exists()
}
