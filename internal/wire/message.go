// Package wire defines the Anthropic Messages wire format used as the
// canonical internal request/response representation for the gateway.
package wire

import "encoding/json"

// Request is the Anthropic /v1/messages request body.
type Request struct {
	Model         string            `json:"model"`
	Messages      []Message         `json:"messages"`
	MaxTokens     int               `json:"max_tokens"`
	Thinking      *ThinkingConfig   `json:"thinking,omitempty"`
	Temperature   *float32          `json:"temperature,omitempty"`
	TopP          *float32          `json:"top_p,omitempty"`
	TopK          *int              `json:"top_k,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        *bool             `json:"stream,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	System        *SystemPrompt     `json:"system,omitempty"`
	Tools         []Tool            `json:"tools,omitempty"`
}

// IsStreaming reports whether the request asked for an SSE response.
func (r *Request) IsStreaming() bool {
	return r.Stream != nil && *r.Stream
}

// Message is one turn in the conversation.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either a plain string or an ordered sequence of blocks.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
	isText bool
}

// TextContent builds a string-form MessageContent.
func TextContent(s string) MessageContent {
	return MessageContent{Text: s, isText: true}
}

// BlockContent builds a block-sequence MessageContent.
func BlockContent(blocks []ContentBlock) MessageContent {
	return MessageContent{Blocks: blocks}
}

// IsText reports whether the content was encoded as a plain string.
func (m MessageContent) IsText() bool { return m.isText }

func (m MessageContent) MarshalJSON() ([]byte, error) {
	if m.isText {
		return json.Marshal(m.Text)
	}
	if m.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.Blocks)
}

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Text = s
		m.isText = true
		m.Blocks = nil
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	m.Blocks = blocks
	m.isText = false
	return nil
}

// AsPlainText returns the message's text if it is a string, or the
// concatenation of its text blocks otherwise. Non-text blocks are ignored.
func (m MessageContent) AsPlainText() string {
	if m.isText {
		return m.Text
	}
	out := ""
	for _, b := range m.Blocks {
		if b.Known != nil && b.Known.Type == "text" {
			out += b.Known.Text
		}
	}
	return out
}

// HasNonEmptyText reports whether the content carries any non-whitespace text.
func (m MessageContent) HasNonEmptyText() bool {
	return nonBlank(m.AsPlainText())
}

func nonBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

// HasToolResult reports whether any block is a tool_result.
func (m MessageContent) HasToolResult() bool {
	if m.isText {
		return false
	}
	for _, b := range m.Blocks {
		if b.Known != nil && b.Known.Type == "tool_result" {
			return true
		}
	}
	return false
}

// SystemPrompt is either a plain string or an ordered sequence of SystemBlock.
type SystemPrompt struct {
	Text   string
	Blocks []SystemBlock
	isText bool
}

func SystemText(s string) SystemPrompt { return SystemPrompt{Text: s, isText: true} }

func (s SystemPrompt) IsText() bool { return s.isText }

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.isText {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Blocks)
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Text = str
		s.isText = true
		s.Blocks = nil
		return nil
	}
	var blocks []SystemBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	s.Blocks = blocks
	s.isText = false
	return nil
}

// JoinedText concatenates block text with newlines, or returns the raw string.
func (s SystemPrompt) JoinedText() string {
	if s.isText {
		return s.Text
	}
	out := ""
	for i, b := range s.Blocks {
		if i > 0 {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// SystemBlock is one element of a block-form system prompt.
type SystemBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

// ImageSource describes inline or URL image data.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Tool is a function/web-search tool definition.
type Tool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// IsWebSearch reports whether this tool's type begins with "web_search".
func (t Tool) IsWebSearch() bool {
	return len(t.Type) >= len("web_search") && t.Type[:len("web_search")] == "web_search"
}

// ThinkingConfig is the Plan Mode reasoning toggle.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens *int   `json:"budget_tokens,omitempty"`
}

// Enabled reports whether thinking/reasoning mode is turned on.
func (t *ThinkingConfig) Enabled() bool {
	return t != nil && t.Type == "enabled"
}

// Usage is Anthropic token accounting.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Response mirrors the Anthropic Messages response schema.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// CountTokensRequest is the body of /v1/messages/count_tokens.
type CountTokensRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	System   *SystemPrompt `json:"system,omitempty"`
	Tools    []Tool        `json:"tools,omitempty"`
}

// CountTokensResponse is the response to a count_tokens request.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}
