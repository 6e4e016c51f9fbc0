package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/elidickinson/ccmux-go/internal/streaming"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

// codexInstructions is the system prompt ChatGPT's Codex backend expects in
// the Responses API's instructions field. The real Codex CLI embeds the
// upstream project's own prompt text at build time; this gateway carries a
// reduced stand-in tuned for the same "coding agent" persona since it isn't
// redistributing the Codex CLI's exact prompt.
const codexInstructions = `You are Codex, based on GPT-5. You are running as a coding agent in a terminal-based environment.

You are professional and direct. You make changes to the user's code or answer questions about it based on your own analysis, and you explain your reasoning clearly. When you're not sure what the user wants, ask; when the task is unambiguous, proceed.`

// responsesRequest is the OpenAI Responses API body used for Codex models,
// reached either via ChatGPT OAuth or an API key naming a codex-family model
// (spec.md §4.3.b). ChatGPT's Codex backend does not accept
// max_tokens/temperature/top_p/stop, so unlike chatRequest none of those
// fields exist here.
type responsesRequest struct {
	Model        string             `json:"model"`
	Input        []responsesMessage `json:"input"`
	Instructions string             `json:"instructions"`
	Store        bool               `json:"store"`
	Stream       bool               `json:"stream"`
}

type responsesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// toResponsesRequest builds the Codex Responses API body. Codex has no
// system role, so the system prompt is prepended as a user message; each
// Anthropic message collapses to its text blocks only, joined with "\n" —
// tool_use/tool_result/image/thinking blocks carry no equivalent here and
// are dropped.
func toResponsesRequest(req *wire.Request) *responsesRequest {
	out := &responsesRequest{
		Model:        req.Model,
		Instructions: codexInstructions,
		Store:        false,
		Stream:       true,
	}

	if req.System != nil {
		if text := req.System.JoinedText(); text != "" {
			out.Input = append(out.Input, responsesMessage{Role: "user", Content: text})
		}
	}

	for _, msg := range req.Messages {
		out.Input = append(out.Input, responsesMessage{Role: msg.Role, Content: responsesTextContent(msg.Content)})
	}

	return out
}

// responsesTextContent reduces an Anthropic message's content to its text,
// which is all the Responses API accepts per message.
func responsesTextContent(content wire.MessageContent) string {
	if content.IsText() {
		return content.Text
	}
	var parts []string
	for _, block := range content.Blocks {
		if block.IsText() {
			parts = append(parts, block.Known.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// parseResponsesCompleted scans raw Responses API SSE text for the
// "event: response.completed" frame and extracts its output items, mapping
// "reasoning" items to thinking blocks and "message" items to text blocks
// (spec.md §4.3.b). The Responses API only emits that one event with
// complete content, so both the non-streaming and streaming Codex paths
// buffer the whole body and parse it the same way.
func parseResponsesCompleted(raw []byte) ([]wire.ContentBlock, error) {
	for _, ev := range streaming.ParseEvents(string(raw)) {
		if ev.EventType != "response.completed" {
			continue
		}

		var payload struct {
			Response struct {
				Output []struct {
					Type    string `json:"type"`
					Content []struct {
						Text string `json:"text"`
					} `json:"content"`
				} `json:"output"`
			} `json:"response"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			continue
		}

		var blocks []wire.ContentBlock
		for _, item := range payload.Response.Output {
			if len(item.Content) == 0 || item.Content[0].Text == "" {
				continue
			}
			text := item.Content[0].Text
			switch item.Type {
			case "reasoning":
				blocks = append(blocks, wire.ThinkingBlock(text, ""))
			case "message":
				blocks = append(blocks, wire.TextBlock(text, nil))
			}
		}
		if len(blocks) > 0 {
			return blocks, nil
		}
	}

	return nil, fmt.Errorf("no content found in response.completed event")
}

// responsesEventsFromCompleted renders a fully-buffered Codex Responses API
// reply as a complete Anthropic SSE event sequence: the Responses API only
// ever yields its content in one shot (the response.completed event), so
// there is no meaningful per-chunk translation to do — the "stream" is one
// message_start/.../message_stop burst emitted as soon as the upstream body
// is fully read.
func responsesEventsFromCompleted(blocks []wire.ContentBlock, model string) []streaming.Event {
	var events []streaming.Event
	msgID := "msg_" + uuid.NewString()

	events = append(events, streaming.Event{
		EventType: "message_start",
		Data: fmt.Sprintf(`{"type":"message_start","message":{"id":%s,"type":"message","role":"assistant","content":[],"model":%s,"usage":{"input_tokens":0,"output_tokens":0}}}`,
			jsonStr(msgID), jsonStr(model)),
	})

	for i, block := range blocks {
		blockType := "text"
		text := ""
		if block.Known != nil {
			blockType = block.Known.Type
			text = block.Known.Text
		}
		events = append(events, streaming.Event{
			EventType: "content_block_start",
			Data:      fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":%s,"text":""}}`, i, jsonStr(blockType)),
		})
		deltaType := "text_delta"
		deltaField := "text"
		if blockType == "thinking" {
			deltaType = "thinking_delta"
			deltaField = "thinking"
		}
		events = append(events, streaming.Event{
			EventType: "content_block_delta",
			Data:      fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":%s,"%s":%s}}`, i, jsonStr(deltaType), deltaField, jsonStr(text)),
		})
		events = append(events, streaming.Event{
			EventType: "content_block_stop",
			Data:      fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, i),
		})
	}

	events = append(events, streaming.Event{
		EventType: "message_delta",
		Data:      `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":0}}`,
	})
	events = append(events, streaming.Event{
		EventType: "message_stop",
		Data:      `{"type":"message_stop"}`,
	})

	return events
}

func jsonStr(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
