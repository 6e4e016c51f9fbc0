package tracing

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	tr := New(config.TracingConfig{Enabled: false}, zap.NewNop())
	assert.False(t, tr.IsEnabled())
	assert.Equal(t, "", tr.NewTraceID())

	tr.TraceRequest("id", &wire.Request{Model: "m"}, "p", "default", false)
	tr.TraceError("id", "boom")
}

func TestEnabledTracerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")

	tr := New(config.TracingConfig{Enabled: true, Path: path}, zap.NewNop())
	require.True(t, tr.IsEnabled())

	id := tr.NewTraceID()
	assert.Len(t, id, 8)

	req := &wire.Request{Model: "claude-opus-4", Messages: []wire.Message{{Role: "user", Content: wire.TextContent("hi")}}}
	tr.TraceRequest(id, req, "anthropic", "default", false)

	resp := &wire.Response{Model: "claude-opus-4", Usage: wire.Usage{InputTokens: 10, OutputTokens: 5}}
	tr.TraceResponse(id, resp, 120*time.Millisecond)

	tr.TraceError(id, "upstream failed")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)

	var reqLine map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &reqLine))
	assert.Equal(t, "req", reqLine["dir"])
	assert.Equal(t, "claude-opus-4", reqLine["model"])

	var errLine map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &errLine))
	assert.Equal(t, "err", errLine["dir"])
	assert.Equal(t, "upstream failed", errLine["error"])
}
