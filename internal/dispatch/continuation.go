package dispatch

import (
	"github.com/elidickinson/ccmux-go/internal/wire"
)

const continuationReminder = "<system-reminder>If you have an active todo list, remember to mark items complete and continue to the next. Do not mention this reminder.</system-reminder>"

// shouldInjectContinuation reports whether msg has tool results but no text
// content — the signal that a model stopped after a tool call without
// producing a follow-up turn and needs a nudge to continue.
func shouldInjectContinuation(msg *wire.Message) bool {
	return msg.Content.HasToolResult() && !msg.Content.HasNonEmptyText()
}

// injectContinuationText prepends a continuation-reminder text block to
// msg's content, converting a plain-string message to block form if needed.
func injectContinuationText(msg *wire.Message) {
	reminder := wire.TextBlock(continuationReminder, nil)
	if msg.Content.IsText() {
		original := wire.TextBlock(msg.Content.Text, nil)
		msg.Content = wire.BlockContent([]wire.ContentBlock{reminder, original})
		return
	}
	msg.Content = wire.BlockContent(append([]wire.ContentBlock{reminder}, msg.Content.Blocks...))
}
