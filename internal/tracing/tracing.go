// Package tracing implements the message-tracing JSONL sink (spec.md §4.5):
// one line per request/response/error, correlated by a short trace ID,
// gated entirely by configuration so a disabled tracer costs nothing.
package tracing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

// Tracer writes trace entries to a JSONL file when enabled, and is a silent
// no-op otherwise so call sites never need to branch on config.Enabled.
type Tracer struct {
	cfg  config.TracingConfig
	mu   sync.Mutex
	file *os.File
}

type requestTrace struct {
	TS        time.Time       `json:"ts"`
	Dir       string          `json:"dir"`
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Provider  string          `json:"provider"`
	RouteType string          `json:"route_type"`
	IsStream  bool            `json:"is_stream"`
	Messages  json.RawMessage `json:"messages"`
	System    json.RawMessage `json:"system,omitempty"`
}

type responseTrace struct {
	TS           time.Time       `json:"ts"`
	Dir          string          `json:"dir"`
	ID           string          `json:"id"`
	LatencyMS    int64           `json:"latency_ms"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Content      json.RawMessage `json:"content"`
}

type errorTrace struct {
	TS    time.Time `json:"ts"`
	Dir   string    `json:"dir"`
	ID    string    `json:"id"`
	Error string    `json:"error"`
}

// New builds a Tracer from config, opening the trace file for append if
// tracing is enabled. A failure to open the file degrades to a disabled
// tracer rather than failing startup.
func New(cfg config.TracingConfig, logger *zap.Logger) *Tracer {
	if !cfg.Enabled {
		return &Tracer{cfg: cfg}
	}

	path := expandTilde(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Error("failed to create tracing directory", zap.Error(err))
		return &Tracer{cfg: cfg}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Error("failed to open trace file", zap.Error(err))
		return &Tracer{cfg: cfg}
	}
	logger.Info("message tracing enabled", zap.String("path", path))
	return &Tracer{cfg: cfg, file: f}
}

// IsEnabled reports whether this tracer writes anything.
func (t *Tracer) IsEnabled() bool { return t.file != nil }

// NewTraceID returns a fresh 8-character trace ID, or the empty string when
// tracing is disabled (callers thread this through unconditionally).
func (t *Tracer) NewTraceID() string {
	if !t.IsEnabled() {
		return ""
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// TraceRequest logs an incoming request, honoring OmitSystemPrompt.
func (t *Tracer) TraceRequest(id string, req *wire.Request, provider, routeType string, isStream bool) {
	if !t.IsEnabled() {
		return
	}
	messages, _ := json.Marshal(req.Messages)
	var system json.RawMessage
	if req.System != nil && !t.cfg.OmitSystemPrompt {
		system, _ = json.Marshal(req.System)
	}
	t.write(requestTrace{
		TS: time.Now().UTC(), Dir: "req", ID: id,
		Model: req.Model, Provider: provider, RouteType: routeType, IsStream: isStream,
		Messages: messages, System: system,
	})
}

// TraceResponse logs a completed response and its latency.
func (t *Tracer) TraceResponse(id string, resp *wire.Response, latency time.Duration) {
	if !t.IsEnabled() {
		return
	}
	content, _ := json.Marshal(resp.Content)
	t.write(responseTrace{
		TS: time.Now().UTC(), Dir: "res", ID: id,
		LatencyMS:    latency.Milliseconds(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Content:      content,
	})
}

// TraceError logs a request that failed before producing a response.
func (t *Tracer) TraceError(id, errMsg string) {
	if !t.IsEnabled() {
		return
	}
	t.write(errorTrace{TS: time.Now().UTC(), Dir: "err", ID: id, Error: errMsg})
}

func (t *Tracer) write(entry any) {
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.Write(append(line, '\n'))
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
