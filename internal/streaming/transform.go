package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// OpenAIChunk is one line of an OpenAI Chat Completions streaming response.
type OpenAIChunk struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []openAIChunkChoice `json:"choices"`
	Usage   *openAIChunkUsage  `json:"usage,omitempty"`
}

type openAIChunkChoice struct {
	Index        int             `json:"index"`
	Delta        openAIChunkDelta `json:"delta"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type openAIChunkDelta struct {
	Role      string              `json:"role,omitempty"`
	Content   string              `json:"content,omitempty"`
	Reasoning string              `json:"reasoning,omitempty"`
	ToolCalls []openAIChunkToolCall `json:"tool_calls,omitempty"`
}

type openAIChunkToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openAIChunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// finishReasonMap translates OpenAI's finish_reason vocabulary to
// Anthropic's stop_reason vocabulary.
var finishReasonMap = map[string]string{
	"stop":           "end_turn",
	"length":         "max_tokens",
	"tool_calls":     "tool_use",
	"content_filter": "stop_sequence",
}

func mapFinishReason(r string) string {
	if mapped, ok := finishReasonMap[r]; ok {
		return mapped
	}
	return "end_turn"
}

// TransformState accumulates per-stream context needed to translate a
// sequence of OpenAI chunks into a well-formed sequence of Anthropic SSE
// events: block-index bookkeeping for text vs. each tool call, and running
// usage totals.
type TransformState struct {
	messageID   string
	model       string
	started     bool
	textOpen    bool
	nextIndex   int          // next free block index; 0 is reserved for the text block
	toolBlocks  map[int]int  // OpenAI tool_call index -> Anthropic block index
	toolOpened  map[int]bool
	inputTokens int
	outputTok   int
	stopReason  string
	stopped     bool
}

// NewTransformState starts a fresh translation session. nextIndex starts at
// 1 because index 0 is reserved for the text block regardless of whether
// text ever arrives: a tool call with no preceding text still starts at 1.
func NewTransformState() *TransformState {
	return &TransformState{
		nextIndex:  1,
		toolBlocks: make(map[int]int),
		toolOpened: make(map[int]bool),
	}
}

// Transform consumes one OpenAI chunk and returns the Anthropic SSE events
// it produces, in order.
func (s *TransformState) Transform(chunk OpenAIChunk) []Event {
	var events []Event

	if !s.started {
		s.started = true
		s.messageID = chunk.ID
		if s.messageID == "" {
			s.messageID = "msg_" + uuid.NewString()
		}
		s.model = chunk.Model
		events = append(events, s.messageStartEvent())
	}

	for _, choice := range chunk.Choices {
		events = append(events, s.transformDelta(choice.Delta)...)
		if choice.FinishReason != "" {
			s.stopReason = mapFinishReason(choice.FinishReason)
		}
	}

	if chunk.Usage != nil {
		s.inputTokens = chunk.Usage.PromptTokens
		s.outputTok = chunk.Usage.CompletionTokens
	}

	return events
}

// textBlockIndex is the index of the single text content block. It is
// always 0, whether the text comes from delta.Content or delta.Reasoning
// (reasoning-capable models like GLM/Cerebras stream chain-of-thought
// through the same field, folded into the same text block).
const textBlockIndex = 0

func (s *TransformState) transformDelta(delta openAIChunkDelta) []Event {
	var events []Event

	text := delta.Content
	if text == "" {
		text = delta.Reasoning
	}
	if text != "" {
		if !s.textOpen {
			s.textOpen = true
			events = append(events, s.contentBlockStartEvent(textBlockIndex, `{"type":"text","text":""}`))
		}
		events = append(events, s.contentBlockDeltaEvent(textBlockIndex, fmt.Sprintf(`{"type":"text_delta","text":%s}`, jsonString(text))))
	}

	for _, tc := range delta.ToolCalls {
		blockIdx, known := s.toolBlocks[tc.Index]
		if !known {
			if s.textOpen {
				events = append(events, s.contentBlockStopEvent(textBlockIndex))
				s.textOpen = false
			}
			if tc.ID == "" || tc.Function.Name == "" {
				continue
			}
			blockIdx = s.nextIndex
			s.nextIndex++
			s.toolBlocks[tc.Index] = blockIdx
			events = append(events, s.contentBlockStartEvent(blockIdx,
				fmt.Sprintf(`{"type":"tool_use","id":%s,"name":%s,"input":{}}`, jsonString(tc.ID), jsonString(tc.Function.Name))))
			s.toolOpened[tc.Index] = true
			known = true
		}
		if known && tc.Function.Arguments != "" {
			events = append(events, s.contentBlockDeltaEvent(blockIdx,
				fmt.Sprintf(`{"type":"input_json_delta","partial_json":%s}`, jsonString(tc.Function.Arguments))))
		}
	}

	return events
}

// Finalize closes any still-open content blocks and emits message_delta and
// message_stop, called once the upstream stream reaches EOF.
func (s *TransformState) Finalize() []Event {
	if s.stopped {
		return nil
	}
	s.stopped = true

	var events []Event
	if s.textOpen {
		events = append(events, s.contentBlockStopEvent(textBlockIndex))
		s.textOpen = false
	}
	for _, idx := range s.toolBlocks {
		events = append(events, s.contentBlockStopEvent(idx))
	}

	stopReason := s.stopReason
	if stopReason == "" {
		stopReason = "end_turn"
	}

	events = append(events, Event{
		EventType: "message_delta",
		Data: fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":%s,"stop_sequence":null},"usage":{"output_tokens":%d}}`,
			jsonString(stopReason), s.outputTok),
	})
	events = append(events, Event{
		EventType: "message_stop",
		Data:      `{"type":"message_stop"}`,
	})
	return events
}

func (s *TransformState) messageStartEvent() Event {
	return Event{
		EventType: "message_start",
		Data: fmt.Sprintf(`{"type":"message_start","message":{"id":%s,"type":"message","role":"assistant","content":[],"model":%s,"usage":{"input_tokens":%d,"output_tokens":0}}}`,
			jsonString(s.messageID), jsonString(s.model), s.inputTokens),
	}
}

func (s *TransformState) contentBlockStartEvent(index int, block string) Event {
	return Event{
		EventType: "content_block_start",
		Data:      fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":%s}`, index, block),
	}
}

func (s *TransformState) contentBlockDeltaEvent(index int, delta string) Event {
	return Event{
		EventType: "content_block_delta",
		Data:      fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":%s}`, index, delta),
	}
}

func (s *TransformState) contentBlockStopEvent(index int) Event {
	return Event{
		EventType: "content_block_stop",
		Data:      fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index),
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
