// Package provider defines the adapter interface every upstream LLM backend
// implements, so the registry and dispatcher can treat Anthropic-native,
// OpenAI-compatible, and Gemini backends uniformly (spec.md §4.3).
package provider

import (
	"context"
	"io"
	"net/http"

	"github.com/elidickinson/ccmux-go/internal/wire"
)

// Provider dispatches Anthropic Messages-format requests to one upstream
// backend, translating wire formats as needed.
type Provider interface {
	// Name is the adapter's configured identifier, used in error messages
	// and routing-info logging.
	Name() string

	// SupportsModel reports whether this provider can serve modelName.
	SupportsModel(modelName string) bool

	// SendMessage performs a synchronous (non-streaming) completion.
	SendMessage(ctx context.Context, req *wire.Request) (*wire.Response, error)

	// SendMessageStream performs a streaming completion. The returned
	// ReadCloser yields already Anthropic-formatted SSE bytes
	// ("event: ...\ndata: ...\n\n" frames) ready to relay verbatim to the
	// client. The returned Header carries any upstream response headers
	// (notably anthropic-ratelimit-*) that should ride along on the
	// downstream streaming response; it may be nil when the adapter has no
	// raw upstream headers to forward (e.g. SDK-mediated backends).
	SendMessageStream(ctx context.Context, req *wire.Request) (io.ReadCloser, http.Header, error)

	// CountTokens estimates token usage for req without generating a
	// completion.
	CountTokens(ctx context.Context, req *wire.CountTokensRequest) (*wire.CountTokensResponse, error)
}
