package streaming

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// LoggingReader wraps a Reader of already-Anthropic-formatted SSE events,
// passing them through unchanged while tracking timing and token counters
// for one summary log line emitted when the stream ends.
type LoggingReader struct {
	inner    *Reader
	logger   *zap.Logger
	provider string
	model    string

	start         time.Time
	firstTokenAt  time.Time
	gotFirstToken bool
	summarized    bool

	inputTokens      int
	cacheCreation    int
	cacheRead        int
	outputTokens     int
}

// NewLoggingReader wraps inner with observability logging.
func NewLoggingReader(inner *Reader, logger *zap.Logger, provider, model string) *LoggingReader {
	return &LoggingReader{inner: inner, logger: logger, provider: provider, model: model, start: time.Now()}
}

// Next passes through to the wrapped Reader, updating counters from
// recognized Anthropic event payloads as they go by.
func (l *LoggingReader) Next() (Event, error) {
	ev, err := l.inner.Next()
	if err != nil {
		if ev.Data == "" {
			l.logSummary()
		}
		return ev, err
	}

	switch ev.EventType {
	case "message_start":
		var parsed struct {
			Message struct {
				Usage struct {
					InputTokens              int `json:"input_tokens"`
					CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
					CacheReadInputTokens     int `json:"cache_read_input_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if json.Unmarshal([]byte(ev.Data), &parsed) == nil {
			l.inputTokens = parsed.Message.Usage.InputTokens
			l.cacheCreation = parsed.Message.Usage.CacheCreationInputTokens
			l.cacheRead = parsed.Message.Usage.CacheReadInputTokens
		}
	case "content_block_delta":
		if !l.gotFirstToken {
			l.gotFirstToken = true
			l.firstTokenAt = time.Now()
		}
	case "message_delta":
		var parsed struct {
			Usage struct {
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if json.Unmarshal([]byte(ev.Data), &parsed) == nil && parsed.Usage.OutputTokens > 0 {
			l.outputTokens = parsed.Usage.OutputTokens
		}
	case "message_stop":
		l.logSummary()
	}

	return ev, nil
}

func (l *LoggingReader) logSummary() {
	if l.summarized {
		return
	}
	l.summarized = true
	totalMs := time.Since(l.start).Milliseconds()
	var ttftMs int64
	if l.gotFirstToken {
		ttftMs = l.firstTokenAt.Sub(l.start).Milliseconds()
	}

	var toksPerSec float64
	if totalMs > 0 {
		toksPerSec = float64(l.outputTokens) / (float64(totalMs) / 1000.0)
	}

	totalCacheable := l.inputTokens + l.cacheCreation + l.cacheRead
	cachePct := 0
	if totalCacheable > 0 {
		cachePct = (l.cacheRead * 100) / totalCacheable
	}

	l.logger.Info("stream completed",
		zap.String("provider", l.provider),
		zap.String("model", l.model),
		zap.Int64("total_time_ms", totalMs),
		zap.Int64("ttft_ms", ttftMs),
		zap.Int("input_tokens", l.inputTokens),
		zap.Int("output_tokens", l.outputTokens),
		zap.Float64("tokens_per_sec", toksPerSec),
		zap.Int("cache_read_pct", cachePct),
	)
}
