// Package streaming implements Server-Sent Events framing and the stateful
// OpenAI-chunk-to-Anthropic-SSE-event translation used by the
// OpenAI-Compatible Adapter's streaming path (spec.md §4.4).
package streaming

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Event is one parsed SSE frame.
type Event struct {
	EventType string
	Data      string
}

// Format renders the event back to wire form: "event: <t>\ndata: <d>\n\n".
func (e Event) Format() string {
	var b strings.Builder
	if e.EventType != "" {
		fmt.Fprintf(&b, "event: %s\n", e.EventType)
	}
	fmt.Fprintf(&b, "data: %s\n\n", e.Data)
	return b.String()
}

// ParseEvents splits a raw SSE byte blob into its constituent events. Each
// event is separated from the next by a blank line; "event:" and "data:"
// lines are recognized, everything else is ignored.
func ParseEvents(raw string) []Event {
	var events []Event
	var cur Event
	var hasData bool

	flush := func() {
		if hasData {
			events = append(events, cur)
		}
		cur = Event{}
		hasData = false
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			cur.EventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			data = strings.TrimPrefix(data, " ")
			if hasData {
				cur.Data += "\n" + data
			} else {
				cur.Data = data
			}
			hasData = true
		}
	}
	flush()
	return events
}

// maxBufferBytes caps how much unterminated data Reader accumulates before
// giving up on finding a boundary and flushing what it has, so a malformed
// upstream that never sends a blank line can't grow memory unbounded.
const maxBufferBytes = 10 * 1024

// Reader incrementally decodes SSE events from an underlying byte stream,
// buffering partial frames until a "\n\n" boundary appears.
type Reader struct {
	src   *bufio.Reader
	buf   strings.Builder
	queue []Event
}

// NewReader wraps body as an SSE event source.
func NewReader(body io.Reader) *Reader {
	return &Reader{src: bufio.NewReaderSize(body, 4096)}
}

// Next returns the next parsed event, reading and buffering from the
// underlying stream as needed. io.EOF is returned once the stream ends and
// no buffered events remain.
func (r *Reader) Next() (Event, error) {
	for len(r.queue) == 0 {
		chunk := make([]byte, 4096)
		n, err := r.src.Read(chunk)
		if n > 0 {
			r.buf.Write(chunk[:n])
			r.drainComplete()
		}
		if err != nil {
			if err == io.EOF {
				// Flush whatever trailing event never got its closing blank
				// line.
				if r.buf.Len() > 0 {
					r.queue = append(r.queue, ParseEvents(r.buf.String())...)
					r.buf.Reset()
				}
				if len(r.queue) == 0 {
					return Event{}, io.EOF
				}
				break
			}
			return Event{}, err
		}
		if r.buf.Len() > maxBufferBytes && len(r.queue) == 0 {
			r.queue = append(r.queue, ParseEvents(r.buf.String())...)
			r.buf.Reset()
		}
	}
	ev := r.queue[0]
	r.queue = r.queue[1:]
	return ev, nil
}

// drainComplete extracts every fully-terminated event ("...\n\n") out of the
// accumulated buffer, leaving any trailing partial frame in place.
func (r *Reader) drainComplete() {
	content := r.buf.String()
	idx := strings.LastIndex(content, "\n\n")
	if idx == -1 {
		return
	}
	complete := content[:idx+2]
	rest := content[idx+2:]
	r.queue = append(r.queue, ParseEvents(complete)...)
	r.buf.Reset()
	r.buf.WriteString(rest)
}
