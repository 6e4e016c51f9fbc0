package streaming

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventsSingle(t *testing.T) {
	events := ParseEvents("event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "message_start", events[0].EventType)
	assert.Equal(t, `{"type":"message_start"}`, events[0].Data)
}

func TestParseEventsMultiple(t *testing.T) {
	raw := "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n"
	events := ParseEvents(raw)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].EventType)
	assert.Equal(t, "1", events[0].Data)
	assert.Equal(t, "b", events[1].EventType)
	assert.Equal(t, "2", events[1].Data)
}

func TestParseEventsNoEventType(t *testing.T) {
	events := ParseEvents("data: [DONE]\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "", events[0].EventType)
	assert.Equal(t, "[DONE]", events[0].Data)
}

func TestReaderBuffersPartialFrames(t *testing.T) {
	body := &chunkedReader{chunks: []string{"event: a\ndata: 1\n\ne", "vent: b\ndata: 2\n\n"}}
	r := NewReader(body)

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", first.EventType)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", second.EventType)

	_, err = r.Next()
	assert.Error(t, err)
}

// chunkedReader replays a fixed sequence of byte chunks, one per Read call.
type chunkedReader struct {
	chunks []string
	i      int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.i >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.i])
	c.i++
	return n, nil
}

