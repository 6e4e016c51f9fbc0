package gemini

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/elidickinson/ccmux-go/internal/streaming"
)

// anthropicEmitter tracks content-block bookkeeping across a Gemini
// streamGenerateContent session, translating each arriving chunk into
// Anthropic SSE events. Gemini delivers each function call complete in a
// single chunk rather than incrementally, so each tool_use block opens and
// closes within the same consume() call.
type anthropicEmitter struct {
	model      string
	started    bool
	nextIndex  int
	textOpen   bool
	textIndex  int
	inputTok   int
	outputTok  int
	stopReason string
	stopped    bool
}

func newAnthropicEmitter(model string) *anthropicEmitter {
	return &anthropicEmitter{model: model}
}

func (e *anthropicEmitter) consume(resp *genai.GenerateContentResponse) []streaming.Event {
	var events []streaming.Event

	if !e.started {
		e.started = true
		events = append(events, streaming.Event{
			EventType: "message_start",
			Data: fmt.Sprintf(`{"type":"message_start","message":{"id":%s,"type":"message","role":"assistant","content":[],"model":%s,"usage":{"input_tokens":0,"output_tokens":0}}}`,
				jsonStr("msg_"+shortID(resp)), jsonStr(e.model)),
		})
	}

	if resp.UsageMetadata != nil {
		e.inputTok = int(resp.UsageMetadata.PromptTokenCount)
		e.outputTok = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 {
		return events
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason != "" {
		e.stopReason = mapFinishReason(string(candidate.FinishReason))
	}
	if candidate.Content == nil {
		return events
	}

	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			if !e.textOpen {
				e.textIndex = e.nextIndex
				e.nextIndex++
				e.textOpen = true
				events = append(events, streaming.Event{
					EventType: "content_block_start",
					Data:      fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, e.textIndex),
				})
			}
			events = append(events, streaming.Event{
				EventType: "content_block_delta",
				Data: fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%s}}`,
					e.textIndex, jsonStr(part.Text)),
			})
		}
		if part.FunctionCall != nil {
			if e.textOpen {
				events = append(events, e.closeBlock(e.textIndex))
				e.textOpen = false
			}
			idx := e.nextIndex
			e.nextIndex++
			args, _ := json.Marshal(part.FunctionCall.Args)
			events = append(events, streaming.Event{
				EventType: "content_block_start",
				Data: fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":%s,"name":%s,"input":{}}}`,
					idx, jsonStr(part.FunctionCall.ID), jsonStr(part.FunctionCall.Name)),
			})
			events = append(events, streaming.Event{
				EventType: "content_block_delta",
				Data: fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%s}}`,
					idx, jsonStr(string(args))),
			})
			events = append(events, e.closeBlock(idx))
		}
	}

	return events
}

func (e *anthropicEmitter) finalize() []streaming.Event {
	if e.stopped {
		return nil
	}
	e.stopped = true

	var events []streaming.Event
	if e.textOpen {
		events = append(events, e.closeBlock(e.textIndex))
		e.textOpen = false
	}

	stopReason := e.stopReason
	if stopReason == "" {
		stopReason = "end_turn"
	}
	events = append(events, streaming.Event{
		EventType: "message_delta",
		Data: fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":%s,"stop_sequence":null},"usage":{"output_tokens":%d}}`,
			jsonStr(stopReason), e.outputTok),
	})
	events = append(events, streaming.Event{EventType: "message_stop", Data: `{"type":"message_stop"}`})
	return events
}

func (e *anthropicEmitter) closeBlock(index int) streaming.Event {
	return streaming.Event{
		EventType: "content_block_stop",
		Data:      fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index),
	}
}

func jsonStr(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func shortID(resp *genai.GenerateContentResponse) string {
	if resp.ResponseID != "" {
		return resp.ResponseID
	}
	return "stream"
}
